package otogi

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// OutboundOperation names the dispatcher call that failed.
type OutboundOperation string

const OutboundOperationSendMessage OutboundOperation = "send_message"

// OutboundErrorKind tells callers whether retrying can help.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited failures may carry RetryAfter.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	OutboundErrorKindTemporary   OutboundErrorKind = "temporary"
	OutboundErrorKindPermanent   OutboundErrorKind = "permanent"
	OutboundErrorKindUnknown     OutboundErrorKind = "unknown"
)

// OutboundError is returned by sink dispatchers when the platform rejects a
// request. Code and Type hold the platform's own status when it gives one,
// such as 420 and FLOOD_WAIT on Telegram.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	Code       int
	Type       string
	Cause      error
}

// Error renders the non-empty fields as key=value pairs followed by the cause.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("outbound error")
	sep := ": "
	field := func(key, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		b.WriteString(sep)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		sep = " "
	}
	field("operation", string(e.Operation))
	field("kind", string(e.Kind))
	field("platform", string(e.Platform))
	field("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		field("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		field("code", strconv.Itoa(e.Code))
	}
	field("type", e.Type)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError finds an *OutboundError in err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if !errors.As(err, &outboundErr) {
		return nil, false
	}

	return outboundErr, true
}

// AsOutboundRateLimit reports whether err is a rate-limit failure and how long
// the platform asked to wait. The duration is zero when no hint was given.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	if outboundErr, ok := AsOutboundError(err); ok && outboundErr.Kind == OutboundErrorKindRateLimited {
		return outboundErr.RetryAfter, true
	}

	return 0, false
}
