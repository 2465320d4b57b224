package telegram

import (
	"strconv"
	"strings"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/tg"
)

const gotdUnknownActorID = "unknown"

// gotdMessageMapper converts gotd text messages into Updates and feeds the peer cache.
type gotdMessageMapper struct {
	peers *PeerCache
	// ignoreOutgoing skips messages sent by this account, including its own replies.
	ignoreOutgoing bool
}

func (m *gotdMessageMapper) mapEnvelope(envelope gotdEnvelope) (Update, bool) {
	m.peers.RememberEnvelope(envelope)

	message, ok := envelope.message.(*tg.Message)
	if !ok || message == nil {
		return Update{}, false
	}
	if m.ignoreOutgoing && message.Out {
		return Update{}, false
	}
	if strings.TrimSpace(message.Message) == "" {
		return Update{}, false
	}

	chat := resolveChat(message.PeerID, envelope)
	fromID, _ := message.GetFromID()
	actor := resolveActor(fromID, envelope)
	if actor.ID == gotdUnknownActorID {
		actor = resolveActor(message.PeerID, envelope)
	}
	m.peers.RememberConversation(chat, resolveInputPeer(message.PeerID, envelope))

	payload := otogi.Article{
		ID:   strconv.Itoa(message.ID),
		Text: message.Message,
	}
	if replyTo, ok := message.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			if id, ok := header.GetReplyToMsgID(); ok {
				payload.ReplyToID = strconv.Itoa(id)
			}
			if id, ok := header.GetReplyToTopID(); ok {
				payload.ThreadID = strconv.Itoa(id)
			}
		}
	}

	occurredAt := unixToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}

	return Update{
		ID:         "tg:" + chat.ID + ":" + payload.ID,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
		Metadata:   map[string]string{"gotd_update": envelope.updateClass},
	}, true
}

func resolveChat(peer tg.PeerClass, envelope gotdEnvelope) otogi.Conversation {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		actor := resolveUser(typed.UserID, envelope)
		return otogi.Conversation{ID: actor.ID, Type: otogi.ConversationTypePrivate, Title: actor.DisplayName}
	case *tg.PeerChat:
		return resolveGroupLike(typed.ChatID, otogi.ConversationTypeGroup, envelope)
	case *tg.PeerChannel:
		return resolveGroupLike(typed.ChannelID, otogi.ConversationTypeChannel, envelope)
	default:
		return otogi.Conversation{}
	}
}

func resolveGroupLike(id int64, fallback otogi.ConversationType, envelope gotdEnvelope) otogi.Conversation {
	chat := otogi.Conversation{ID: strconv.FormatInt(id, 10), Type: fallback}
	if info, ok := envelope.chatsByID[id]; ok {
		chat.Title = info.title
		chat.Type = info.kind
	}

	return chat
}

func resolveActor(peer tg.PeerClass, envelope gotdEnvelope) otogi.Actor {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return resolveUser(typed.UserID, envelope)
	case *tg.PeerChat:
		return otogi.Actor{ID: strconv.FormatInt(typed.ChatID, 10), DisplayName: envelope.chatsByID[typed.ChatID].title}
	case *tg.PeerChannel:
		return otogi.Actor{ID: strconv.FormatInt(typed.ChannelID, 10), DisplayName: envelope.chatsByID[typed.ChannelID].title}
	default:
		return otogi.Actor{ID: gotdUnknownActorID}
	}
}

func resolveUser(userID int64, envelope gotdEnvelope) otogi.Actor {
	if userID == 0 {
		return otogi.Actor{ID: gotdUnknownActorID}
	}
	id := strconv.FormatInt(userID, 10)
	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return otogi.Actor{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()
	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = id
	}

	return otogi.Actor{ID: id, Username: username, DisplayName: displayName, IsBot: user.Bot}
}

func resolveInputPeer(peer tg.PeerClass, envelope gotdEnvelope) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user, ok := envelope.usersByID[typed.UserID]; ok && user != nil {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: typed.ChatID}
	case *tg.PeerChannel:
		if info, ok := envelope.chatsByID[typed.ChannelID]; ok {
			return info.inputPeer
		}
	}

	return nil
}
