package otogi

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestOutboundErrorString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *OutboundError
		want string
	}{
		{name: "nil", want: "<nil>"},
		{name: "empty", err: &OutboundError{}, want: "outbound error"},
		{
			name: "all fields",
			err: &OutboundError{
				Operation:  OutboundOperationSendMessage,
				Kind:       OutboundErrorKindRateLimited,
				Platform:   PlatformTelegram,
				SinkID:     "tg-main",
				RetryAfter: 5 * time.Second,
				Code:       420,
				Type:       "FLOOD_WAIT",
				Cause:      errors.New("rpc error"),
			},
			want: "outbound error: operation=send_message kind=rate_limited platform=telegram sink_id=tg-main retry_after=5s code=420 type=FLOOD_WAIT: rpc error",
		},
		{
			name: "cause only",
			err:  &OutboundError{Cause: errors.New("boom")},
			want: "outbound error: boom",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.err.Error(); got != testCase.want {
				t.Fatalf("Error() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestAsOutboundErrorThroughWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("rpc failed")
	err := fmt.Errorf("bangmap send reply: %w", &OutboundError{Kind: OutboundErrorKindTemporary, Cause: cause})

	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.Kind != OutboundErrorKindTemporary {
		t.Fatalf("AsOutboundError() = %v, %v, want temporary error", outboundErr, ok)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true")
	}
	if _, ok := AsOutboundError(cause); ok {
		t.Fatal("AsOutboundError(plain) = true, want false")
	}
}

func TestAsOutboundRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		wantDelay time.Duration
		wantOK    bool
	}{
		{name: "plain error", err: errors.New("plain")},
		{name: "permanent", err: &OutboundError{Kind: OutboundErrorKindPermanent}},
		{
			name:      "wrapped flood wait",
			err:       fmt.Errorf("wrapped: %w", &OutboundError{Kind: OutboundErrorKindRateLimited, RetryAfter: 7 * time.Second}),
			wantDelay: 7 * time.Second,
			wantOK:    true,
		},
		{name: "no hint", err: &OutboundError{Kind: OutboundErrorKindRateLimited}, wantOK: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			delay, ok := AsOutboundRateLimit(testCase.err)
			if ok != testCase.wantOK || delay != testCase.wantDelay {
				t.Fatalf("AsOutboundRateLimit() = %s, %v, want %s, %v", delay, ok, testCase.wantDelay, testCase.wantOK)
			}
		})
	}
}
