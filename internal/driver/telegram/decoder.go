package telegram

import (
	"fmt"
	"time"

	"otogi-bangmap/pkg/otogi"
)

// decodeUpdate wraps one Telegram message in a validated article.created event.
// Updates without a timestamp are stamped with now.
func decodeUpdate(update Update, source otogi.EventSource, now func() time.Time) (*otogi.Event, error) {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now().UTC()
	}
	article := update.Message

	event := &otogi.Event{
		ID:           update.ID,
		Kind:         otogi.EventKindArticleCreated,
		OccurredAt:   occurredAt,
		Platform:     source.Platform,
		Source:       source,
		Conversation: update.Chat,
		Actor:        update.Actor,
		Article:      &article,
		Metadata:     update.Metadata,
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode telegram update %s: %w", update.ID, err)
	}

	return event, nil
}
