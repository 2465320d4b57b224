package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"otogi-bangmap/pkg/otogi"
)

func TestDriverPublishesDecodedUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 2)
	updates <- Update{
		ID:         "tg:100:7",
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Chat:       otogi.Conversation{ID: "100", Title: "邦邦", Type: otogi.ConversationTypeGroup},
		Actor:      otogi.Actor{ID: "42", Username: "kasumi", DisplayName: "Kasumi"},
		Message:    otogi.Article{ID: "7", ReplyToID: "6", Text: "邦邦地图 粤"},
	}
	close(updates)

	dispatcher := &recordingDispatcher{}
	driver, err := NewDriver(ChannelSource{Updates: updates}, WithName("tg-main"))
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}
	if err := driver.Start(context.Background(), dispatcher); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	events := dispatcher.snapshot()
	if len(events) != 1 {
		t.Fatalf("published = %d, want 1", len(events))
	}
	event := events[0]
	if event.Kind != otogi.EventKindArticleCreated {
		t.Fatalf("kind = %q, want %q", event.Kind, otogi.EventKindArticleCreated)
	}
	if event.Source != (otogi.EventSource{Platform: DriverPlatform, ID: "tg-main"}) {
		t.Fatalf("source = %+v, want telegram/tg-main", event.Source)
	}
	if event.Conversation.ID != "100" || event.Conversation.Type != otogi.ConversationTypeGroup {
		t.Fatalf("conversation = %+v, want group 100", event.Conversation)
	}
	if event.Article == nil || event.Article.Text != "邦邦地图 粤" || event.Article.ReplyToID != "6" {
		t.Fatalf("article = %+v, want text and reply id", event.Article)
	}
	if event.Actor.Username != "kasumi" {
		t.Fatalf("actor username = %q, want %q", event.Actor.Username, "kasumi")
	}
}

func TestDriverReportsFailuresWithoutStopping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		update     Update
		publishErr error
		wantErr    error
	}{
		{
			name:    "invalid update",
			update:  Update{ID: "tg:missing-chat", Message: otogi.Article{ID: "1", Text: "hi"}},
			wantErr: otogi.ErrInvalidEvent,
		},
		{
			name: "publish failure",
			update: Update{
				ID:      "tg:1:1",
				Chat:    otogi.Conversation{ID: "1", Type: otogi.ConversationTypePrivate},
				Message: otogi.Article{ID: "1", Text: "hi"},
			},
			publishErr: errors.New("bus full"),
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			updates := make(chan Update, 1)
			updates <- testCase.update
			close(updates)

			var (
				mu       sync.Mutex
				reported []error
			)
			driver, err := NewDriver(
				ChannelSource{Updates: updates},
				WithErrorHandler(func(_ context.Context, err error) {
					mu.Lock()
					defer mu.Unlock()
					reported = append(reported, err)
				}),
			)
			if err != nil {
				t.Fatalf("new driver failed: %v", err)
			}
			dispatcher := &recordingDispatcher{err: testCase.publishErr}
			if err := driver.Start(context.Background(), dispatcher); err != nil {
				t.Fatalf("start failed: %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			if len(reported) != 1 {
				t.Fatalf("reported = %d, want 1", len(reported))
			}
			want := testCase.wantErr
			if want == nil {
				want = testCase.publishErr
			}
			if !errors.Is(reported[0], want) {
				t.Fatalf("reported error = %v, want %v", reported[0], want)
			}
		})
	}
}

func TestDriverStampsMissingOccurredAt(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	event, err := decodeUpdate(Update{
		ID:      "tg:1:1",
		Chat:    otogi.Conversation{ID: "1", Type: otogi.ConversationTypePrivate},
		Message: otogi.Article{ID: "1", Text: "hi"},
	}, otogi.EventSource{Platform: DriverPlatform, ID: "tg"}, func() time.Time { return fixed })
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !event.OccurredAt.Equal(fixed) {
		t.Fatalf("occurred_at = %v, want %v", event.OccurredAt, fixed)
	}
}

func TestDriverStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	driver, err := NewDriver(ChannelSource{Updates: make(chan Update)})
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- driver.Start(ctx, &recordingDispatcher{})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after cancel")
	}
}

func TestNewDriverRejectsNilSource(t *testing.T) {
	t.Parallel()

	if _, err := NewDriver(nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	err    error
	events []*otogi.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event *otogi.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)

	return nil
}

func (d *recordingDispatcher) snapshot() []*otogi.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*otogi.Event(nil), d.events...)
}
