package otogi

import "errors"

// Event and subscription errors.
var (
	ErrInvalidEvent        = errors.New("otogi: invalid event")
	ErrInvalidSubscription = errors.New("otogi: invalid subscription")
	ErrSubscriptionClosed  = errors.New("otogi: subscription closed")
	// ErrEventDropped is returned to publishers when a drop-newest subscription is full.
	ErrEventDropped = errors.New("otogi: event dropped due to backpressure")
)

// Registration errors.
var (
	ErrServiceAlreadyRegistered = errors.New("otogi: service already registered")
	ErrServiceNotFound          = errors.New("otogi: service not found")
	ErrModuleAlreadyRegistered  = errors.New("otogi: module already registered")
	ErrDriverAlreadyRegistered  = errors.New("otogi: driver already registered")
)

// Outbound errors.
var (
	ErrInvalidOutboundRequest = errors.New("otogi: invalid outbound request")
	// ErrOutboundUnsupported means no configured sink can deliver the request.
	ErrOutboundUnsupported = errors.New("otogi: outbound operation unsupported")
)
