package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"otogi-bangmap/pkg/otogi"
)

const defaultPublishTimeout = 2 * time.Second

type driverConfig struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
	clock          func() time.Time
}

// DriverOption configures a Driver.
type DriverOption func(*driverConfig)

// WithName sets the driver instance id. It is also used as the event source id.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout bounds each Publish call into the kernel.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler receives per-update failures that do not stop the driver.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// Driver publishes Telegram messages as neutral events.
type Driver struct {
	cfg    driverConfig
	source UpdateSource
}

// NewDriver creates a Telegram driver reading from source.
func NewDriver(source UpdateSource, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new telegram driver: nil source")
	}

	cfg := driverConfig{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
		clock:          time.Now,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{cfg: cfg, source: source}, nil
}

// Name returns the driver instance id.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start consumes updates until ctx is cancelled.
func (d *Driver) Start(ctx context.Context, dispatcher otogi.EventDispatcher) error {
	if dispatcher == nil {
		return fmt.Errorf("start telegram driver: nil dispatcher")
	}

	err := d.source.Consume(ctx, func(handlerCtx context.Context, update Update) error {
		d.handleUpdate(handlerCtx, update, dispatcher)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("start telegram driver: consume updates: %w", err)
	}

	return nil
}

// handleUpdate reports failures through the error handler; they never stop Start.
func (d *Driver) handleUpdate(ctx context.Context, update Update, dispatcher otogi.EventDispatcher) {
	event, err := decodeUpdate(update, otogi.EventSource{Platform: DriverPlatform, ID: d.cfg.name}, d.cfg.clock)
	if err != nil {
		d.cfg.onAsyncError(ctx, err)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.publishTimeout)
	defer cancel()
	if err := dispatcher.Publish(publishCtx, event); err != nil {
		d.cfg.onAsyncError(ctx, fmt.Errorf("publish telegram update %s: %w", update.ID, err))
	}
}

// Shutdown is a no-op; the gotd session ends with the Start context.
func (d *Driver) Shutdown(_ context.Context) error {
	return nil
}
