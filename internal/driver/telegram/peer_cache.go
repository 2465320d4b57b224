package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"otogi-bangmap/pkg/otogi"

	"github.com/gotd/td/tg"
)

// PeerCache maps neutral conversations back to Telegram input peers.
//
// Entries are learned from inbound updates; a bot can only reply where it has
// already seen a message.
type PeerCache struct {
	mu             sync.RWMutex
	byConversation map[string]tg.InputPeerClass
}

// NewPeerCache creates an empty cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{byConversation: make(map[string]tg.InputPeerClass)}
}

// RememberEnvelope stores peers for every user and chat attached to envelope.
func (c *PeerCache) RememberEnvelope(envelope gotdEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		c.storeLocked(otogi.ConversationTypePrivate, strconv.FormatInt(userID, 10), user.AsInputPeer())
	}
	for chatID, chat := range envelope.chatsByID {
		c.storeLocked(chat.kind, strconv.FormatInt(chatID, 10), chat.inputPeer)
	}
}

// RememberConversation stores one explicit mapping.
func (c *PeerCache) RememberConversation(chat otogi.Conversation, peer tg.InputPeerClass) {
	if c == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(chat.Type, chat.ID, peer)
}

// storeLocked indexes megagroup peers under both the group and channel types.
func (c *PeerCache) storeLocked(kind otogi.ConversationType, id string, peer tg.InputPeerClass) {
	if peer == nil {
		return
	}
	c.byConversation[conversationKey(kind, id)] = cloneInputPeer(peer)
	if _, isChannel := peer.(*tg.InputPeerChannel); isChannel && kind == otogi.ConversationTypeGroup {
		c.byConversation[conversationKey(otogi.ConversationTypeChannel, id)] = cloneInputPeer(peer)
	}
}

// Resolve returns the input peer for conversation.
func (c *PeerCache) Resolve(conversation otogi.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := []string{conversationKey(conversation.Type, conversation.ID)}
	switch conversation.Type {
	case otogi.ConversationTypeGroup:
		keys = append(keys, conversationKey(otogi.ConversationTypeChannel, conversation.ID))
	case otogi.ConversationTypeChannel:
		keys = append(keys, conversationKey(otogi.ConversationTypeGroup, conversation.ID))
	}
	for _, key := range keys {
		if peer, ok := c.byConversation[key]; ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: conversation %s/%s not seen", conversation.Type, conversation.ID)
}

func conversationKey(kind otogi.ConversationType, id string) string {
	return string(kind) + ":" + id
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		clone := *typed
		return &clone
	case *tg.InputPeerChat:
		clone := *typed
		return &clone
	case *tg.InputPeerChannel:
		clone := *typed
		return &clone
	default:
		return peer
	}
}
