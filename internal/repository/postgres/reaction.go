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

type ReactionStore struct {
	pool *pgxpool.Pool
}

func NewReactionStore(pool *pgxpool.Pool) *ReactionStore {
	return &ReactionStore{pool: pool}
}

func scanReaction(row pgx.Row) (*models.MessageReaction, error) {
	var r models.MessageReaction
	if err := row.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// Add returns the existing row when (message, user, emoji) is already
// present; the UNIQUE constraint makes the check race-free.
func (s *ReactionStore) Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) (*models.MessageReaction, bool, error) {
	r, err := scanReaction(s.pool.QueryRow(ctx, `
		INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
		RETURNING id, message_id, user_id, emoji, created_at`,
		uuid.New(), messageID, userID, emoji))
	if err == nil {
		return r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert reaction: %w", err)
	}

	r, err = scanReaction(s.pool.QueryRow(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji))
	if err != nil {
		return nil, false, fmt.Errorf("get existing reaction: %w", err)
	}
	return r, false, nil
}

func (s *ReactionStore) GetByID(ctx context.Context, reactionID uuid.UUID) (*models.MessageReaction, error) {
	r, err := scanReaction(s.pool.QueryRow(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE id = $1`, reactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reaction: %w", err)
	}
	return r, nil
}

func (s *ReactionStore) DeleteOwned(ctx context.Context, reactionID, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM message_reactions
		WHERE id = $1 AND user_id = $2`, reactionID, userID)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ReactionStore) ListByMessage(ctx context.Context, messageID int64) ([]models.MessageReaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	reactions := make([]models.MessageReaction, 0)
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return reactions, nil
}
