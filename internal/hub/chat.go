package hub

import (
	"log"

	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/ratelimit"
	"github.com/classcast/livehub/internal/store"
)

// conversationEntry is one row of the unified conversation list: the room,
// the counterpart profile for private rooms, and the most recent message.
type conversationEntry struct {
	Room          store.Room  `json:"room"`
	Counterpart   *store.User `json:"counterpart,omitempty"`
	LatestMessage *store.Chat `json:"latestMessage,omitempty"`
}

// DirectMessage persists a direct chat message and delivers it. The canonical
// stored row is echoed back to the sender and pushed to the receiver's
// channel when online; an offline receiver with a device token gets a push
// notification instead.
func (h *Hub) DirectMessage(c Channel, msg interface{}) {
	m, ok := msg.(protocol.DirectMessageMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	senderID := c.UserID()

	if err := ValidateMessage(m.Message); err != nil {
		_ = c.WriteMessage(protocol.NewErrorMessage(err.Error()))
		return
	}
	if m.ReceiverID == "" || m.ReceiverID == senderID {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyReceiverUnknown))
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	if h.limiter != nil {
		allowed, _ := h.limiter.Allow(ctx, senderID, ratelimit.RuleMessage)
		if !allowed {
			_ = c.WriteMessage(protocol.NewErrorMessage(replyRateLimited))
			return
		}
	}

	receiver, err := h.store.UserByID(ctx, m.ReceiverID)
	if err != nil {
		log.Printf("hub: lookup receiver=%s: %v", m.ReceiverID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if receiver == nil {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyReceiverUnknown))
		return
	}

	room, err := h.store.FindOrCreatePrivateRoom(ctx, senderID, m.ReceiverID)
	if err != nil {
		log.Printf("hub: resolve private room sender=%s receiver=%s: %v", senderID, m.ReceiverID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	chat, err := h.store.CreateChat(ctx, room.ID, senderID, m.ReceiverID, m.Message, m.TimerID)
	if err != nil {
		log.Printf("hub: persist chat room=%s sender=%s: %v", room.ID, senderID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	delivered := h.sendToUser(m.ReceiverID, protocol.EventMessage, chat)
	sendEvent(c, protocol.EventMessage, chat)
	metrics.MessagesTotal.WithLabelValues("direct").Inc()

	if !delivered && h.notifier != nil && receiver.DeviceToken != "" {
		h.notifier.Send(receiver.DeviceToken, c.Name(), m.Message, m.ReceiverID)
	}
}

// FetchChats returns the full private history with a counterpart, oldest
// first, and marks every message addressed to the requester as read. A pair
// that never exchanged a message gets an empty list.
func (h *Hub) FetchChats(c Channel, msg interface{}) {
	m, ok := msg.(protocol.FetchChatsMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	room, err := h.store.FindPrivateRoom(ctx, userID, m.ReceiverID)
	if err != nil {
		log.Printf("hub: find private room user=%s receiver=%s: %v", userID, m.ReceiverID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if room == nil {
		sendEvent(c, protocol.EventFetchChats, []store.Chat{})
		return
	}

	chats, err := h.store.ListChatsByRoom(ctx, room.ID)
	if err != nil {
		log.Printf("hub: list chats room=%s: %v", room.ID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}

	if err := h.store.MarkChatsRead(ctx, room.ID, userID); err != nil {
		log.Printf("hub: mark chats read room=%s user=%s: %v", room.ID, userID, err)
	}

	sendEvent(c, protocol.EventFetchChats, chats)
}

// UnreadMessages returns the unread messages from a counterpart together
// with their count, without marking them read. When nothing is unread the
// client gets the dedicated no-unread reply.
func (h *Hub) UnreadMessages(c Channel, msg interface{}) {
	m, ok := msg.(protocol.UnreadMessagesMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	room, err := h.store.FindPrivateRoom(ctx, userID, m.ReceiverID)
	if err != nil {
		log.Printf("hub: find private room user=%s receiver=%s: %v", userID, m.ReceiverID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	var chats []store.Chat
	if room != nil {
		chats, err = h.store.ListUnreadChats(ctx, room.ID, userID)
		if err != nil {
			log.Printf("hub: list unread room=%s user=%s: %v", room.ID, userID, err)
			_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
			return
		}
	}

	if len(chats) == 0 {
		sendEvent(c, protocol.EventNoUnreadMessages, protocol.UnreadData{
			Messages: []store.Chat{},
			Count:    0,
		})
		return
	}

	sendEvent(c, protocol.EventUnreadMessages, protocol.UnreadData{
		Messages: chats,
		Count:    len(chats),
	})
}

// OnlineUsers returns the profiles of every currently authenticated user.
func (h *Hub) OnlineUsers(c Channel, msg interface{}) {
	ctx, cancel := storeCtx()
	defer cancel()

	users, err := h.store.UsersByIDs(ctx, h.registry.UserIDs())
	if err != nil {
		log.Printf("hub: load online profiles: %v", err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if users == nil {
		users = []store.User{}
	}

	sendEvent(c, protocol.EventOnlineUsers, users)
}

// MessageList returns the requester's unified conversation list: every
// private and group room they belong to, newest activity first, each with
// the counterpart profile (private rooms only) and the latest message.
func (h *Hub) MessageList(c Channel, msg interface{}) {
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	rooms, err := h.store.ListRoomsOf(ctx, userID)
	if err != nil {
		log.Printf("hub: list rooms user=%s: %v", userID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	entries := make([]conversationEntry, 0, len(rooms))
	for _, room := range rooms {
		entry := conversationEntry{Room: room}

		if room.Type == store.RoomTypePrivate {
			counterpartID := room.SenderID
			if counterpartID == userID {
				counterpartID = room.ReceiverID
			}
			counterpart, err := h.store.UserByID(ctx, counterpartID)
			if err != nil {
				log.Printf("hub: load counterpart user=%s: %v", counterpartID, err)
				_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
				return
			}
			entry.Counterpart = counterpart
		}

		latest, err := h.store.LatestChat(ctx, room.ID)
		if err != nil {
			log.Printf("hub: latest chat room=%s: %v", room.ID, err)
			_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
			return
		}
		entry.LatestMessage = latest

		entries = append(entries, entry)
	}

	sendEvent(c, protocol.EventMessageList, entries)
}
