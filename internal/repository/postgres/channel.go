package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
)

const channelColumns = `id, workspace_id, name, type, dm_key, created_by, created_at`

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func scanChannel(row pgx.Row) (*models.Channel, error) {
	var (
		ch  models.Channel
		typ string
	)
	if err := row.Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &typ, &ch.DMKey, &ch.CreatedBy, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Type = models.ChannelType(typ)
	return &ch, nil
}

// Create inserts the channel and its OWNER row in one transaction.
func (s *ChannelStore) Create(ctx context.Context, in models.Channel) (*models.Channel, error) {
	var ch *models.Channel
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ch, err = scanChannel(tx.QueryRow(ctx, `
			INSERT INTO channels (id, workspace_id, name, type, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING `+channelColumns,
			uuid.New(), in.WorkspaceID, in.Name, string(in.Type), in.CreatedBy,
		))
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO channel_members (channel_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`,
			ch.ID, ch.CreatedBy, string(models.RoleOwner), ch.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert channel owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := scanChannel(s.pool.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE id = $1`, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) ListForUser(ctx context.Context, workspaceID, userID uuid.UUID) ([]models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels c
		WHERE c.workspace_id = $1
		  AND (c.type = 'PUBLIC' OR EXISTS (
		      SELECT 1 FROM channel_members m
		      WHERE m.channel_id = c.id AND m.user_id = $2))
		ORDER BY c.created_at DESC, c.id DESC`

	rows, err := s.pool.Query(ctx, query, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

// GetOrCreateDM leans on the partial unique index over (workspace_id,
// dm_key). A concurrent insert for the same pair blocks on the index until
// the winner commits, then falls through to DO NOTHING and reads the
// winner's row. Both participants are inserted only by the creating call.
func (s *ChannelStore) GetOrCreateDM(ctx context.Context, workspaceID, a, b uuid.UUID) (*models.Channel, bool, error) {
	key := models.DMKey(a, b)

	var (
		ch      *models.Channel
		created bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ch, err = scanChannel(tx.QueryRow(ctx, `
			INSERT INTO channels (id, workspace_id, name, type, dm_key, created_by, created_at)
			VALUES ($1, $2, $3, 'DM', $3, $4, now())
			ON CONFLICT (workspace_id, dm_key) WHERE dm_key IS NOT NULL DO NOTHING
			RETURNING `+channelColumns,
			uuid.New(), workspaceID, key, a,
		))
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			ch, err = scanChannel(tx.QueryRow(ctx, `
				SELECT `+channelColumns+`
				FROM channels
				WHERE workspace_id = $1 AND dm_key = $2`, workspaceID, key))
			if err != nil {
				return fmt.Errorf("get dm channel: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("insert dm channel: %w", err)
		}

		created = true
		for _, userID := range []uuid.UUID{a, b} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO channel_members (channel_id, user_id, role, joined_at)
				VALUES ($1, $2, $3, $4)`,
				ch.ID, userID, string(models.RoleMember), ch.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert dm member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return ch, created, nil
}
