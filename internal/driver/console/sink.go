package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"otogi-bangmap/pkg/otogi"
)

// SinkDispatcher prints outbound messages to a writer.
type SinkDispatcher struct {
	mu     sync.Mutex
	out    io.Writer
	nextID int
}

// NewSinkDispatcher creates a dispatcher writing to out, or stdout when out is nil.
func NewSinkDispatcher(out io.Writer) *SinkDispatcher {
	if out == nil {
		out = os.Stdout
	}

	return &SinkDispatcher{out: out}
}

// SendMessage prints request.Text prefixed with the reply reference, if any.
func (d *SinkDispatcher) SendMessage(
	_ context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("console send message: %w", err)
	}
	if sink := request.Target.Sink; sink != nil && sink.Platform != "" && sink.Platform != DriverPlatform {
		return nil, fmt.Errorf("console send message: %w: platform %s", otogi.ErrOutboundUnsupported, sink.Platform)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := "out-" + strconv.Itoa(d.nextID)

	var builder strings.Builder
	builder.WriteString("[" + request.Target.Conversation.ID)
	if request.ReplyToMessageID != "" {
		builder.WriteString(" ↩ " + request.ReplyToMessageID)
	}
	builder.WriteString("] ")
	builder.WriteString(request.Text)
	builder.WriteString("\n")
	if _, err := io.WriteString(d.out, builder.String()); err != nil {
		return nil, fmt.Errorf("console send message: %w", err)
	}

	return &otogi.OutboundMessage{ID: id, Target: request.Target}, nil
}

var _ otogi.SinkDispatcher = (*SinkDispatcher)(nil)
