package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func scanMember(row pgx.Row) (*models.ChannelMember, error) {
	var (
		m    models.ChannelMember
		role string
	)
	if err := row.Scan(&m.ChannelID, &m.UserID, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	return &m, nil
}

func (s *MembershipStore) Get(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members
		WHERE channel_id = $1 AND user_id = $2`, channelID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) List(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	return listMembers(ctx, s.pool, channelID, false)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listMembers(ctx context.Context, q querier, channelID uuid.UUID, lock bool) ([]models.ChannelMember, error) {
	query := `
		SELECT channel_id, user_id, role, joined_at
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY joined_at, user_id`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.ChannelMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Add is ON CONFLICT DO NOTHING so joining twice is not an error; the
// affected row count tells the caller which case it hit.
func (s *MembershipStore) Add(ctx context.Context, m models.ChannelMember) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (channel_id, user_id) DO NOTHING`,
		m.ChannelID, m.UserID, string(m.Role))
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Apply holds FOR UPDATE locks on every member row of the channel while
// check runs, so two admins demoting each other serialize and the second
// sees the first one's result.
func (s *MembershipStore) Apply(ctx context.Context, mut repository.MemberMutation, check repository.MemberCheck) (*models.ChannelMember, error) {
	var out *models.ChannelMember
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		snapshot, err := listMembers(ctx, tx, mut.ChannelID, true)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(snapshot); err != nil {
				return err
			}
		}

		var row pgx.Row
		if mut.Remove {
			row = tx.QueryRow(ctx, `
				DELETE FROM channel_members
				WHERE channel_id = $1 AND user_id = $2
				RETURNING channel_id, user_id, role, joined_at`,
				mut.ChannelID, mut.UserID)
		} else {
			row = tx.QueryRow(ctx, `
				UPDATE channel_members SET role = $3
				WHERE channel_id = $1 AND user_id = $2
				RETURNING channel_id, user_id, role, joined_at`,
				mut.ChannelID, mut.UserID, string(mut.NewRole))
		}
		out, err = scanMember(row)
		if errors.Is(err, pgx.ErrNoRows) {
			out = nil
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply member change: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
