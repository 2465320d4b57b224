package telegram

import (
	"context"
	"fmt"
	"time"

	"otogi-bangmap/pkg/otogi"
)

// Update is one inbound Telegram text message, already resolved against the
// users and chats attached to its update batch.
type Update struct {
	ID         string
	OccurredAt time.Time
	Chat       otogi.Conversation
	Actor      otogi.Actor
	Message    otogi.Article
	Metadata   map[string]string
}

// UpdateHandler consumes one mapped update.
type UpdateHandler func(ctx context.Context, update Update) error

// UpdateSource streams mapped updates into the driver.
type UpdateSource interface {
	// Consume runs until ctx is done or the source fails.
	Consume(ctx context.Context, handler UpdateHandler) error
}

// ChannelSource feeds updates from a channel. It is used by tests and local tooling.
type ChannelSource struct {
	Updates <-chan Update
}

// Consume forwards updates until the channel closes or ctx is done.
func (s ChannelSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("channel source: nil handler")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-s.Updates:
			if !ok {
				return nil
			}
			if err := handler(ctx, update); err != nil {
				return fmt.Errorf("channel source handle update %s: %w", update.ID, err)
			}
		}
	}
}
