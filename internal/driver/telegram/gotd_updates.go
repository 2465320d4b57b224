package telegram

import (
	"context"
	"fmt"
	"time"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 256

// gotdEnvelope is one message-bearing update plus the entities from its batch.
type gotdEnvelope struct {
	message     tg.MessageClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
}

type gotdChatInfo struct {
	title     string
	kind      otogi.ConversationType
	inputPeer tg.InputPeerClass
}

// GotdUpdateChannel implements gotd's telegram.UpdateHandler and exposes the
// flattened message updates as a channel.
type GotdUpdateChannel struct {
	updates chan gotdEnvelope
}

// NewGotdUpdateChannel creates a channel with the given buffer.
func NewGotdUpdateChannel(buffer int) *GotdUpdateChannel {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{updates: make(chan gotdEnvelope, buffer)}
}

// Handle flattens one gotd update container. Non-message updates are dropped.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, envelope := range batch {
		select {
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates: %w", ctx.Err())
		case s.updates <- envelope:
		}
	}

	return nil
}

func (s *GotdUpdateChannel) stream() <-chan gotdEnvelope {
	return s.updates
}

func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdatesCombined:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdateShort:
		return flattenGotdBatch([]tg.UpdateClass{typed.Update}, typed.Date, nil, nil), nil
	case *tg.UpdateShortMessage:
		message := &tg.Message{
			ID:      typed.ID,
			PeerID:  &tg.PeerUser{UserID: typed.UserID},
			Date:    typed.Date,
			Message: typed.Message,
		}
		message.SetFromID(&tg.PeerUser{UserID: typed.UserID})
		if replyTo, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(replyTo)
		}
		return []gotdEnvelope{{
			message:     message,
			occurredAt:  unixToTimeUTC(typed.Date),
			updateClass: typed.TypeName(),
		}}, nil
	case *tg.UpdateShortChatMessage:
		message := &tg.Message{
			ID:      typed.ID,
			PeerID:  &tg.PeerChat{ChatID: typed.ChatID},
			Date:    typed.Date,
			Message: typed.Message,
		}
		message.SetFromID(&tg.PeerUser{UserID: typed.FromID})
		if replyTo, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(replyTo)
		}
		return []gotdEnvelope{{
			message:     message,
			occurredAt:  unixToTimeUTC(typed.Date),
			updateClass: typed.TypeName(),
		}}, nil
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func flattenGotdBatch(
	updates []tg.UpdateClass,
	date int,
	users []tg.UserClass,
	chats []tg.ChatClass,
) []gotdEnvelope {
	occurredAt := unixToTimeUTC(date)
	usersByID := indexGotdUsers(users)
	chatsByID := indexGotdChats(chats)

	batch := make([]gotdEnvelope, 0, len(updates))
	for _, update := range updates {
		var message tg.MessageClass
		switch typed := update.(type) {
		case *tg.UpdateNewMessage:
			message = typed.Message
		case *tg.UpdateNewChannelMessage:
			message = typed.Message
		default:
			continue
		}
		batch = append(batch, gotdEnvelope{
			message:     message,
			occurredAt:  occurredAt,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
		})
	}

	return batch
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		if notEmpty, ok := user.AsNotEmpty(); ok && notEmpty != nil {
			out[notEmpty.ID] = notEmpty
		}
	}

	return out
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	if len(chats) == 0 {
		return nil
	}

	out := make(map[int64]gotdChatInfo, len(chats))
	for _, chat := range chats {
		switch typed := chat.(type) {
		case *tg.Chat:
			out[typed.ID] = gotdChatInfo{title: typed.Title, kind: otogi.ConversationTypeGroup, inputPeer: typed.AsInputPeer()}
		case *tg.ChatForbidden:
			out[typed.ID] = gotdChatInfo{title: typed.Title, kind: otogi.ConversationTypeGroup, inputPeer: &tg.InputPeerChat{ChatID: typed.ID}}
		case *tg.Channel:
			out[typed.ID] = gotdChatInfo{title: typed.Title, kind: channelKind(typed.Megagroup), inputPeer: typed.AsInputPeer()}
		case *tg.ChannelForbidden:
			out[typed.ID] = gotdChatInfo{
				title: typed.Title,
				kind:  channelKind(typed.Megagroup),
				inputPeer: &tg.InputPeerChannel{
					ChannelID:  typed.ID,
					AccessHash: typed.AccessHash,
				},
			}
		}
	}

	return out
}

// channelKind maps megagroups to group conversations; broadcast channels stay channels.
func channelKind(megagroup bool) otogi.ConversationType {
	if megagroup {
		return otogi.ConversationTypeGroup
	}

	return otogi.ConversationTypeChannel
}

func unixToTimeUTC(value int) time.Time {
	if value <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(value), 0).UTC()
}
