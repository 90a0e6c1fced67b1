package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
)

type ReadStatusStore struct {
	pool *pgxpool.Pool
}

func NewReadStatusStore(pool *pgxpool.Pool) *ReadStatusStore {
	return &ReadStatusStore{pool: pool}
}

func (s *ReadStatusStore) Upsert(ctx context.Context, messageID int64, userID uuid.UUID, markedUnread bool, readAt time.Time) (*models.MessageReadStatus, error) {
	var rs models.MessageReadStatus
	err := s.pool.QueryRow(ctx, `
		INSERT INTO message_read_status (message_id, user_id, marked_unread, read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET marked_unread = EXCLUDED.marked_unread, read_at = EXCLUDED.read_at
		RETURNING message_id, user_id, marked_unread, read_at`,
		messageID, userID, markedUnread, readAt,
	).Scan(&rs.MessageID, &rs.UserID, &rs.MarkedUnread, &rs.ReadAt)
	if err != nil {
		return nil, fmt.Errorf("upsert read status: %w", err)
	}
	rs.ReadAt = rs.ReadAt.UTC()
	return &rs, nil
}

func (s *ReadStatusStore) Get(ctx context.Context, messageID int64, userID uuid.UUID) (*models.MessageReadStatus, error) {
	var rs models.MessageReadStatus
	err := s.pool.QueryRow(ctx, `
		SELECT message_id, user_id, marked_unread, read_at
		FROM message_read_status
		WHERE message_id = $1 AND user_id = $2`, messageID, userID,
	).Scan(&rs.MessageID, &rs.UserID, &rs.MarkedUnread, &rs.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get read status: %w", err)
	}
	rs.ReadAt = rs.ReadAt.UTC()
	return &rs, nil
}
