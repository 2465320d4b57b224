package telegram

import (
	"context"
	"fmt"
)

// gotdRunner runs a connected, authorized gotd session for the duration of fn.
type gotdRunner interface {
	Run(ctx context.Context, fn func(runCtx context.Context) error) error
}

// GotdSource is the UpdateSource backed by a live gotd session.
type GotdSource struct {
	client  gotdRunner
	updates *GotdUpdateChannel
	mapper  *gotdMessageMapper
}

func newGotdSource(client gotdRunner, updates *GotdUpdateChannel, mapper *gotdMessageMapper) (*GotdSource, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("new gotd source: nil client")
	case updates == nil:
		return nil, fmt.Errorf("new gotd source: nil update channel")
	case mapper == nil:
		return nil, fmt.Errorf("new gotd source: nil mapper")
	}

	return &GotdSource{client: client, updates: updates, mapper: mapper}, nil
}

// Consume runs the session and hands every mapped text message to handler.
func (s *GotdSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("consume gotd updates: nil handler")
	}

	err := s.client.Run(ctx, func(runCtx context.Context) error {
		stream := s.updates.stream()
		for {
			select {
			case <-runCtx.Done():
				return nil
			case envelope := <-stream:
				update, accepted, err := s.mapSafely(envelope)
				if err != nil {
					return fmt.Errorf("map gotd update: %w", err)
				}
				if !accepted {
					continue
				}
				if err := handler(runCtx, update); err != nil {
					return fmt.Errorf("consume gotd update %s: %w", update.ID, err)
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consume gotd updates: %w", err)
	}

	return nil
}

func (s *GotdSource) mapSafely(envelope gotdEnvelope) (update Update, accepted bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("map %s panic: %v", envelope.updateClass, recovered)
		}
	}()

	update, accepted = s.mapper.mapEnvelope(envelope)

	return update, accepted, nil
}
