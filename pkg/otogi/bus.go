package otogi

import (
	"context"
	"time"
)

// BackpressurePolicy selects what a full subscription queue does with a new event.
type BackpressurePolicy string

const (
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock waits for queue space or for the publisher context to end.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec tunes one subscription. Zero fields take the kernel defaults.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
}

// NewDefaultSubscriptionSpec returns a spec carrying only a name.
func NewDefaultSubscriptionSpec(name string) SubscriptionSpec {
	return SubscriptionSpec{Name: name}
}

// Subscription is a live registration on an EventBus.
type Subscription interface {
	Name() string
	Close(ctx context.Context) error
}

// EventBus fans published events out to filtered, buffered subscribers.
type EventBus interface {
	EventDispatcher
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	// Close stops every subscription and rejects later publishes.
	Close(ctx context.Context) error
}
