package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

const messageColumns = `id, channel_id, author_id, content, type, thread_id, is_pinned, is_edited, attachments, forwarded_from_id, created_at, updated_at`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg    models.Message
		typ    string
		attach []byte
	)
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.AuthorID,
		&msg.Content,
		&typ,
		&msg.ThreadID,
		&msg.IsPinned,
		&msg.IsEdited,
		&attach,
		&msg.ForwardedFromID,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(typ)
	if len(attach) > 0 {
		msg.Attachments = json.RawMessage(attach)
	}
	return &msg, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()
	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// jsonArg sends attachments as JSON text, or SQL NULL when absent.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

const insertMessage = `
	INSERT INTO messages (channel_id, author_id, content, type, thread_id, attachments, forwarded_from_id)
	VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	RETURNING ` + messageColumns

// insertViewerMessage inserts nothing unless the author can view the
// channel. FOR SHARE waits out a concurrent member removal, which holds
// the row FOR UPDATE.
const insertViewerMessage = `
	INSERT INTO messages (channel_id, author_id, content, type, thread_id, attachments, forwarded_from_id)
	SELECT $1, $2, $3, $4, $5, $6::jsonb, $7
	FROM channels c
	WHERE c.id = $1
	  AND (
	    EXISTS (SELECT 1 FROM channel_members cm
	            WHERE cm.channel_id = c.id AND cm.user_id = $2
	            FOR SHARE)
	    OR (c.type = 'PUBLIC' AND EXISTS (
	            SELECT 1 FROM workspace_members wm
	            WHERE wm.workspace_id = c.workspace_id AND wm.user_id = $2))
	  )
	RETURNING ` + messageColumns

func insertArgs(m repository.NewMessage) []any {
	return []any{m.ChannelID, m.AuthorID, m.Content, string(m.Type), m.ThreadID, jsonArg(m.Attachments), m.ForwardedFromID}
}

// Create lets Postgres assign the bigserial id and the clock_timestamp()
// created_at; RETURNING hands both back.
func (s *MessageStore) Create(ctx context.Context, m repository.NewMessage) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, insertMessage, insertArgs(m)...))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// CreateBatch queues every insert into one pgx.Batch inside a transaction.
func (s *MessageStore) CreateBatch(ctx context.Context, ms []repository.NewMessage) ([]models.Message, error) {
	out := make([]models.Message, 0, len(ms))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range ms {
			query := insertMessage
			if m.RequireViewer {
				query = insertViewerMessage
			}
			batch.Queue(query, insertArgs(m)...)
		}
		br := tx.SendBatch(ctx, batch)
		for _, m := range ms {
			msg, err := scanMessage(br.QueryRow())
			if err != nil {
				br.Close()
				if m.RequireViewer && errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("insert message batch: channel %s: %w", m.ChannelID, repository.ErrNotViewer)
				}
				return fmt.Errorf("insert message batch: %w", err)
			}
			out = append(out, *msg)
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages
		SET content = $2, is_edited = true, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING `+messageColumns, messageID, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID int64, pinned bool) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages
		SET is_pinned = $2
		WHERE id = $1
		RETURNING `+messageColumns, messageID, pinned))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pin message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List pages through roots or one thread, newest first.
//
// The cursor is inclusive and compares on the (created_at, id) tuple, so
// messages sharing a timestamp are neither skipped nor repeated. If the
// cursor message has since been deleted there is no tuple to compare
// against; ids still grow with insertion order, so id <= cursor is used.
func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter) ([]models.Message, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	where := []string{"channel_id = $1"}
	args := []any{f.ChannelID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ThreadID == nil {
		where = append(where, "thread_id IS NULL")
	} else {
		where = append(where, "thread_id = "+arg(*f.ThreadID))
	}

	if f.Cursor != nil {
		var (
			cursorChannel uuid.UUID
			cursorThread  *int64
			cursorAt      time.Time
		)
		err := s.pool.QueryRow(ctx, `
			SELECT channel_id, thread_id, created_at
			FROM messages
			WHERE id = $1`, *f.Cursor).Scan(&cursorChannel, &cursorThread, &cursorAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			where = append(where, "id <= "+arg(*f.Cursor))
		case err != nil:
			return nil, fmt.Errorf("load cursor: %w", err)
		default:
			if cursorChannel != f.ChannelID || !sameThread(cursorThread, f.ThreadID) {
				return nil, repository.ErrInvalidCursor
			}
			where = append(where, fmt.Sprintf("(created_at, id) <= (%s, %s)", arg(cursorAt), arg(*f.Cursor)))
		}
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT ` + arg(f.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectMessages(rows)
}

func sameThread(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *MessageStore) ListPinned(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel_id = $1 AND is_pinned
		ORDER BY created_at DESC, id DESC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list pinned messages: %w", err)
	}
	return collectMessages(rows)
}
