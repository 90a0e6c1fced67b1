// Package search keeps a Meilisearch index of message content in step
// with the message store. Querying the index is another service's job.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lalith-99/huddle/internal/models"
	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const IndexUID = "huddle_messages"

// Document is the indexed shape of a message.
type Document struct {
	ID        int64  `json:"id"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	ThreadID  *int64 `json:"thread_id"`
	CreatedAt int64  `json:"created_at"`
}

func documentFor(m models.Message) Document {
	return Document{
		ID:        m.ID,
		ChannelID: m.ChannelID.String(),
		AuthorID:  m.AuthorID.String(),
		Content:   m.Content,
		ThreadID:  m.ThreadID,
		CreatedAt: m.CreatedAt.Unix(),
	}
}

// Indexer is a realtime.Publisher that mirrors message events into the
// index. The two funcs are the only index operations it needs.
type Indexer struct {
	add    func(docs []Document) error
	remove func(id string) error
	logger *zap.Logger
}

// NewMeiliIndexer connects to Meilisearch and makes sure the index exists.
// An unreachable server is logged, not fatal: writes will fail and be
// dropped by the dispatcher until it comes back.
func NewMeiliIndexer(url, apiKey string, logger *zap.Logger) *Indexer {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		if _, err := client.CreateIndex(&meili.IndexConfig{
			Uid:        IndexUID,
			PrimaryKey: "id",
		}); err != nil {
			logger.Debug("create index (may already exist)", zap.String("index", IndexUID), zap.Error(err))
		}
		filterable := []interface{}{"channel_id", "author_id", "thread_id"}
		if _, err := client.Index(IndexUID).UpdateFilterableAttributes(&filterable); err != nil {
			logger.Warn("update filterable attributes", zap.String("index", IndexUID), zap.Error(err))
		}
	}

	index := client.Index(IndexUID)
	return &Indexer{
		add: func(docs []Document) error {
			_, err := index.AddDocuments(docs, nil)
			return err
		},
		remove: func(id string) error {
			_, err := index.DeleteDocument(id, nil)
			return err
		},
		logger: logger,
	}
}

func (ix *Indexer) Name() string { return "search" }

// Publish ignores every event that does not change message content.
func (ix *Indexer) Publish(_ context.Context, ev models.Event) error {
	switch ev.Kind {
	case models.EventMessageCreated, models.EventMessageUpdated:
		msg, ok := asMessage(ev.Payload)
		if !ok {
			return fmt.Errorf("index %s: unexpected payload %T", ev.Kind, ev.Payload)
		}
		if err := ix.add([]Document{documentFor(msg)}); err != nil {
			return fmt.Errorf("index message %d: %w", msg.ID, err)
		}
	case models.EventMessageDeleted:
		del, ok := ev.Payload.(models.MessageDeleted)
		if !ok {
			return fmt.Errorf("index %s: unexpected payload %T", ev.Kind, ev.Payload)
		}
		if err := ix.remove(strconv.FormatInt(del.ID, 10)); err != nil {
			return fmt.Errorf("unindex message %d: %w", del.ID, err)
		}
	}
	return nil
}

func asMessage(payload any) (models.Message, bool) {
	switch p := payload.(type) {
	case models.Message:
		return p, true
	case *models.Message:
		if p != nil {
			return *p, true
		}
	}
	return models.Message{}, false
}
