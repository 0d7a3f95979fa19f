package hub

import (
	"log"

	"github.com/classcast/livehub/internal/auth"
	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/store"
)

// StartLive creates a live session with the caller as author and first
// participant. Restricted to the host role. Every online viewer hears the
// liveStarted broadcast; offline viewers with a device token get a push
// notification.
func (h *Hub) StartLive(c Channel, msg interface{}) {
	m, ok := msg.(protocol.StartLiveMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	if c.Role() != string(auth.RoleHost) {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotHost))
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	lr, err := h.store.CreateLiveRoom(ctx, userID, m.Title, m.Description)
	if err != nil {
		log.Printf("hub: create live room author=%s: %v", userID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	h.rooms.Create(lr.ID, userID)
	if err := h.store.AddCurrentParticipant(ctx, userID, lr.ID); err != nil {
		log.Printf("hub: add current participant user=%s room=%s: %v", userID, lr.ID, err)
	}
	if err := h.store.AddTotalParticipant(ctx, userID, lr.ID); err != nil {
		log.Printf("hub: add total participant user=%s room=%s: %v", userID, lr.ID, err)
	}

	sendEvent(c, protocol.EventLiveStarted, lr)

	for _, id := range h.registry.UserIDsByRole(auth.RoleViewer) {
		h.sendToUser(id, protocol.EventLiveStarted, lr)
	}

	if h.notifier != nil {
		h.notifyOfflineViewers(lr)
	}

	metrics.LiveRooms.Set(float64(h.rooms.Count()))
	log.Printf("hub: live started room=%s author=%s", lr.ID, userID)
}

// notifyOfflineViewers pushes a live-start notification to every viewer that
// has a device token but no active channel. Store failures only cost the
// notifications; the session is already running.
func (h *Hub) notifyOfflineViewers(lr *store.LiveRoom) {
	ctx, cancel := storeCtx()
	defer cancel()

	viewers, err := h.store.UsersByRole(ctx, string(auth.RoleViewer))
	if err != nil {
		log.Printf("hub: load viewers for live notification room=%s: %v", lr.ID, err)
		return
	}

	for _, v := range viewers {
		if v.DeviceToken == "" {
			continue
		}
		if _, online := h.registry.Get(v.ID); online {
			continue
		}
		h.notifier.Send(v.DeviceToken, "Live now", lr.Title, v.ID)
	}
}

// JoinLive adds the caller to a running live session: in-memory membership
// for the signaling relay, plus the present-now and historical participant
// rows. The joiner gets the session row back; everyone already in the room
// hears userJoinedLive.
func (h *Hub) JoinLive(c Channel, msg interface{}) {
	m, ok := msg.(protocol.JoinLiveMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	lr, err := h.store.LiveRoomByID(ctx, m.RoomID)
	if err != nil {
		log.Printf("hub: live room lookup room=%s: %v", m.RoomID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if lr == nil || !lr.IsLive {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyLiveNotFound))
		return
	}

	// Broadcast before adding the joiner so they don't hear their own join.
	for _, member := range h.rooms.Members(m.RoomID) {
		h.sendToUser(member, protocol.EventUserJoinedLive, protocol.RoomUserEventData{
			UserID: userID,
			RoomID: m.RoomID,
		})
	}

	h.rooms.Join(m.RoomID, userID)
	if err := h.store.AddCurrentParticipant(ctx, userID, m.RoomID); err != nil {
		log.Printf("hub: add current participant user=%s room=%s: %v", userID, m.RoomID, err)
	}
	if err := h.store.AddTotalParticipant(ctx, userID, m.RoomID); err != nil {
		log.Printf("hub: add total participant user=%s room=%s: %v", userID, m.RoomID, err)
	}

	sendEvent(c, protocol.EventJoinedLive, lr)
	metrics.LiveRooms.Set(float64(h.rooms.Count()))
}

// LeaveLive removes the caller from a live session without ending it. The
// remaining members hear userLeftLive.
func (h *Hub) LeaveLive(c Channel, msg interface{}) {
	m, ok := msg.(protocol.LeaveLiveMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	if !h.rooms.Leave(m.RoomID, userID) {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotInLive))
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()
	if err := h.store.RemoveCurrentParticipant(ctx, userID, m.RoomID); err != nil {
		log.Printf("hub: remove current participant user=%s room=%s: %v", userID, m.RoomID, err)
	}

	sendEvent(c, protocol.EventLeftLive, protocol.RoomEventData{RoomID: m.RoomID})

	for _, member := range h.rooms.Members(m.RoomID) {
		h.sendToUser(member, protocol.EventUserLeftLive, protocol.RoomUserEventData{
			UserID: userID,
			RoomID: m.RoomID,
		})
	}

	metrics.LiveRooms.Set(float64(h.rooms.Count()))
}

// EndLive ends a live session. Only the author may end it, and only once:
// the session row flips to ended, every present-now participant row is
// dropped, and every member (author included) hears liveEnded.
func (h *Hub) EndLive(c Channel, msg interface{}) {
	m, ok := msg.(protocol.EndLiveMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	ctx, cancel := storeCtx()
	defer cancel()

	lr, err := h.store.LiveRoomByID(ctx, m.RoomID)
	if err != nil {
		log.Printf("hub: live room lookup room=%s: %v", m.RoomID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}
	if lr == nil {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyLiveNotFound))
		return
	}
	if lr.AuthorID != userID {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotLiveAuthor))
		return
	}
	if !lr.IsLive {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyLiveEnded))
		return
	}

	if err := h.store.EndLiveRoom(ctx, m.RoomID); err != nil {
		log.Printf("hub: end live room=%s: %v", m.RoomID, err)
		_ = c.WriteMessage(protocol.NewErrorMessage(replyInternalError))
		return
	}

	members := h.rooms.Members(m.RoomID)
	h.rooms.Remove(m.RoomID)

	if err := h.store.RemoveAllCurrentParticipants(ctx, m.RoomID); err != nil {
		log.Printf("hub: clear participants room=%s: %v", m.RoomID, err)
	}

	ended := protocol.RoomEventData{RoomID: m.RoomID, Title: lr.Title}
	sendEvent(c, protocol.EventLiveEnded, ended)
	for _, member := range members {
		if member == userID {
			continue
		}
		h.sendToUser(member, protocol.EventLiveEnded, ended)
	}

	metrics.LiveRooms.Set(float64(h.rooms.Count()))
	log.Printf("hub: live ended room=%s author=%s", m.RoomID, userID)
}
