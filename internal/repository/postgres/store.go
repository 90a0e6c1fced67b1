package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/repository"
)

// NewStore wires every Postgres-backed repository onto one pool.
func NewStore(pool *pgxpool.Pool) *repository.Store {
	return &repository.Store{
		Workspaces: NewWorkspaceStore(pool),
		Users:      NewUserStore(pool),
		Channels:   NewChannelStore(pool),
		Members:    NewMembershipStore(pool),
		Messages:   NewMessageStore(pool),
		Reactions:  NewReactionStore(pool),
		ReadStatus: NewReadStatusStore(pool),
	}
}
