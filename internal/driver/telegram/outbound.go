package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

const defaultOutboundTimeout = 3 * time.Second

// OutboundOption configures a SinkDispatcher.
type OutboundOption func(*SinkDispatcher)

// WithOutboundTimeout bounds each send RPC.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(d *SinkDispatcher) {
		if timeout > 0 {
			d.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger sets the logger for sent messages.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(d *SinkDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSinkRef sets the sink identity reported in outbound errors.
func WithSinkRef(ref otogi.EventSink) OutboundOption {
	return func(d *SinkDispatcher) {
		d.sink = ref
		if d.sink.Platform == "" {
			d.sink.Platform = DriverPlatform
		}
	}
}

// textSender is the single RPC the dispatcher needs.
type textSender interface {
	sendText(ctx context.Context, peer tg.InputPeerClass, request otogi.SendMessageRequest) (int, error)
}

// SinkDispatcher sends replies into Telegram conversations seen by the driver.
type SinkDispatcher struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	sink       otogi.EventSink
	peers      *PeerCache
	sender     textSender
}

// NewSinkDispatcher creates a dispatcher that sends through the raw gotd API.
func NewSinkDispatcher(api *tg.Client, peers *PeerCache, options ...OutboundOption) (*SinkDispatcher, error) {
	if api == nil {
		return nil, fmt.Errorf("new telegram sink dispatcher: nil api")
	}

	return newSinkDispatcher(gotdTextSender{api: api, random: crypto.DefaultRand()}, peers, options...)
}

func newSinkDispatcher(sender textSender, peers *PeerCache, options ...OutboundOption) (*SinkDispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("new telegram sink dispatcher: nil sender")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram sink dispatcher: nil peer cache")
	}

	dispatcher := &SinkDispatcher{
		rpcTimeout: defaultOutboundTimeout,
		logger:     slog.Default(),
		sink:       otogi.EventSink{Platform: DriverPlatform},
		peers:      peers,
		sender:     sender,
	}
	for _, option := range options {
		option(dispatcher)
	}

	return dispatcher, nil
}

// SendMessage posts request.Text to the target conversation.
func (d *SinkDispatcher) SendMessage(
	ctx context.Context,
	request otogi.SendMessageRequest,
) (*otogi.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("telegram send message: %w", err)
	}
	if sink := request.Target.Sink; sink != nil && sink.Platform != "" && sink.Platform != DriverPlatform {
		return nil, fmt.Errorf("telegram send message: %w: platform %s", otogi.ErrOutboundUnsupported, sink.Platform)
	}
	peer, err := d.peers.Resolve(request.Target.Conversation)
	if err != nil {
		return nil, fmt.Errorf("telegram send message: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
	defer cancel()
	id, err := d.sender.sendText(rpcCtx, peer, request)
	if err != nil {
		return nil, fmt.Errorf(
			"telegram send message to %s: %w",
			request.Target.Conversation.ID,
			classifyOutboundError(otogi.OutboundOperationSendMessage, d.sink, err),
		)
	}

	d.logger.DebugContext(ctx, "telegram message sent",
		"sink", d.sink.ID,
		"conversation", request.Target.Conversation.ID,
		"message_id", id,
		"reply_to_message_id", request.ReplyToMessageID,
	)

	return &otogi.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

type gotdTextSender struct {
	api    *tg.Client
	random io.Reader
}

func (s gotdTextSender) sendText(
	ctx context.Context,
	peer tg.InputPeerClass,
	request otogi.SendMessageRequest,
) (int, error) {
	sendRequest, err := buildSendMessageRequest(peer, request, s.random)
	if err != nil {
		return 0, err
	}
	updates, err := s.api.MessagesSendMessage(ctx, sendRequest)
	if err != nil {
		return 0, fmt.Errorf("messages.sendMessage: %w", err)
	}
	id, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return id, nil
}

func buildSendMessageRequest(
	peer tg.InputPeerClass,
	request otogi.SendMessageRequest,
	random io.Reader,
) (*tg.MessagesSendMessageRequest, error) {
	randomID, err := crypto.RandInt64(random)
	if err != nil {
		return nil, fmt.Errorf("random id: %w", err)
	}

	sendRequest := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   request.Text,
		NoWebpage: request.DisableLinkPreview,
		Silent:    request.Silent,
		RandomID:  randomID,
	}
	if request.ReplyToMessageID != "" {
		replyID, err := parseMessageID(request.ReplyToMessageID)
		if err != nil {
			return nil, err
		}
		sendRequest.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyID}
	}

	return sendRequest, nil
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id %q", otogi.ErrInvalidOutboundRequest, raw)
	}

	return value, nil
}

var _ otogi.SinkDispatcher = (*SinkDispatcher)(nil)
