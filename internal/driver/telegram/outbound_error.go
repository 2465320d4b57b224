package telegram

import (
	"errors"
	"strings"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/tgerr"
)

// classifyOutboundError wraps a Telegram RPC failure in *otogi.OutboundError.
// Request validation errors pass through unchanged.
func classifyOutboundError(operation otogi.OutboundOperation, sink otogi.EventSink, err error) error {
	if err == nil || errors.Is(err, otogi.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &otogi.OutboundError{
		Operation: operation,
		Kind:      otogi.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}
	if rpcErr, ok := tgerr.As(err); ok {
		outboundErr.Code = rpcErr.Code
		outboundErr.Type = rpcErr.Type
		outboundErr.Kind = rpcErrorKind(rpcErr)
	}
	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = otogi.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
	}

	return outboundErr
}

func rpcErrorKind(rpcErr *tgerr.Error) otogi.OutboundErrorKind {
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(strings.ToUpper(rpcErr.Type), "FLOOD") {
		return otogi.OutboundErrorKindRateLimited
	}

	switch {
	case rpcErr.Code == 303 || rpcErr.Code >= 500:
		return otogi.OutboundErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code <= 406:
		return otogi.OutboundErrorKindPermanent
	default:
		return otogi.OutboundErrorKindUnknown
	}
}
