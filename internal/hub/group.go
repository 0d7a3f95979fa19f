package hub

import (
	"log"

	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/ratelimit"
	"github.com/classcast/livehub/internal/store"
)

// CreateGroup creates a group room holding the creator plus the listed
// members. The creator gets the groupCreated reply; every other member that
// is currently online is told they were added.
func (h *Hub) CreateGroup(c Channel, msg interface{}) {
	m, ok := msg.(protocol.CreateGroupMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	creatorID := c.UserID()

	if len(m.MemberIDs) == 0 {
		_ = c.WriteMessage(protocol.NewErrorMessage("Group needs at least one member"))
		return
	}

	// Dedup and make sure the creator is always a member.
	seen := map[string]struct{}{creatorID: {}}
	members := []string{creatorID}
	for _, id := range m.MemberIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	ctx, cancel := storeCtx()
	defer cancel()

	room, err := h.store.CreateGroupRoom(ctx, m.Name, members)
	if err != nil {
		log.Printf("hub: create group creator=%s: %v", creatorID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	sendEvent(c, protocol.EventGroupCreated, room)

	for _, id := range members {
		if id == creatorID {
			continue
		}
		h.sendToUser(id, protocol.EventAddedToGroup, room)
	}

	log.Printf("hub: group created room=%s creator=%s members=%d", room.ID, creatorID, len(members))
}

// GroupMessage persists a message to a group room and fans it out to every
// member. Only listed members may send.
func (h *Hub) GroupMessage(c Channel, msg interface{}) {
	m, ok := msg.(protocol.GroupMessageMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	senderID := c.UserID()

	if err := ValidateMessage(m.Message); err != nil {
		_ = c.WriteMessage(protocol.NewErrorMessage(err.Error()))
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	if h.limiter != nil {
		allowed, _ := h.limiter.Allow(ctx, senderID, ratelimit.RuleGroupMessage)
		if !allowed {
			_ = c.WriteMessage(protocol.NewErrorMessage(replyRateLimited))
			return
		}
	}

	member, err := h.store.IsGroupMember(ctx, m.RoomID, senderID)
	if err != nil {
		log.Printf("hub: group membership room=%s user=%s: %v", m.RoomID, senderID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if !member {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotGroupMember))
		return
	}

	chat, err := h.store.CreateChat(ctx, m.RoomID, senderID, "", m.Message, "")
	if err != nil {
		log.Printf("hub: persist group chat room=%s sender=%s: %v", m.RoomID, senderID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	memberIDs, err := h.store.GroupMemberIDs(ctx, m.RoomID)
	if err != nil {
		log.Printf("hub: group members room=%s: %v", m.RoomID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	sendEvent(c, protocol.EventGroupMessage, chat)
	for _, id := range memberIDs {
		if id == senderID {
			continue
		}
		h.sendToUser(id, protocol.EventGroupMessage, chat)
	}
	metrics.MessagesTotal.WithLabelValues("group").Inc()
}

// FetchGroupChats returns the full history of a group room, oldest first.
// Only listed members may fetch.
func (h *Hub) FetchGroupChats(c Channel, msg interface{}) {
	m, ok := msg.(protocol.FetchGroupChatsMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	member, err := h.store.IsGroupMember(ctx, m.RoomID, userID)
	if err != nil {
		log.Printf("hub: group membership room=%s user=%s: %v", m.RoomID, userID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if !member {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotGroupMember))
		return
	}

	chats, err := h.store.ListChatsByRoom(ctx, m.RoomID)
	if err != nil {
		log.Printf("hub: list group chats room=%s: %v", m.RoomID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}

	sendEvent(c, protocol.EventFetchGroupChats, chats)
}

// GroupList returns the group rooms the requester belongs to, newest
// activity first.
func (h *Hub) GroupList(c Channel, msg interface{}) {
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	rooms, err := h.store.ListGroupRoomsOf(ctx, userID)
	if err != nil {
		log.Printf("hub: list groups user=%s: %v", userID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if rooms == nil {
		rooms = []store.Room{}
	}

	sendEvent(c, protocol.EventGroupList, rooms)
}
