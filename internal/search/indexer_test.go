package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"go.uber.org/zap"
)

type fakeIndex struct {
	docs    map[int64]Document
	removed []string
	fail    error
}

func newTestIndexer(f *fakeIndex) *Indexer {
	return &Indexer{
		add: func(docs []Document) error {
			if f.fail != nil {
				return f.fail
			}
			for _, d := range docs {
				f.docs[d.ID] = d
			}
			return nil
		},
		remove: func(id string) error {
			f.removed = append(f.removed, id)
			return f.fail
		},
		logger: zap.NewNop(),
	}
}

func TestIndexerMirrorsMessageEvents(t *testing.T) {
	f := &fakeIndex{docs: map[int64]Document{}}
	ix := newTestIndexer(f)
	ctx := context.Background()
	ch := uuid.New()
	msg := models.Message{ID: 9, ChannelID: ch, AuthorID: uuid.New(), Content: "hello", CreatedAt: time.Unix(1700000000, 0)}

	if err := ix.Publish(ctx, models.Event{Kind: models.EventMessageCreated, ChannelID: ch, Payload: msg}); err != nil {
		t.Fatalf("created: %v", err)
	}
	msg.Content = "hello, edited"
	if err := ix.Publish(ctx, models.Event{Kind: models.EventMessageUpdated, ChannelID: ch, Payload: &msg}); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if got := f.docs[9]; got.Content != "hello, edited" || got.ChannelID != ch.String() || got.CreatedAt != 1700000000 {
		t.Fatalf("indexed doc = %+v", got)
	}

	if err := ix.Publish(ctx, models.Event{Kind: models.EventMessageDeleted, ChannelID: ch, Payload: models.MessageDeleted{ID: 9, ChannelID: ch}}); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(f.removed) != 1 || f.removed[0] != "9" {
		t.Fatalf("removed = %v", f.removed)
	}
}

func TestIndexerIgnoresOtherEvents(t *testing.T) {
	f := &fakeIndex{docs: map[int64]Document{}, fail: errors.New("should not be called")}
	ix := newTestIndexer(f)
	for _, kind := range []models.EventKind{models.EventReactionAdded, models.EventMemberJoined, models.EventMessagePinned} {
		if err := ix.Publish(context.Background(), models.Event{Kind: kind}); err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
	}
}

func TestIndexerReportsFailures(t *testing.T) {
	f := &fakeIndex{docs: map[int64]Document{}, fail: errors.New("503")}
	ix := newTestIndexer(f)
	err := ix.Publish(context.Background(), models.Event{Kind: models.EventMessageCreated, Payload: models.Message{ID: 1}})
	if err == nil {
		t.Fatal("expected the index error to surface to the dispatcher")
	}
	if err := ix.Publish(context.Background(), models.Event{Kind: models.EventMessageCreated, Payload: "junk"}); err == nil {
		t.Fatal("expected a payload type error")
	}
}
