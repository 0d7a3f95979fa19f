// Package hub implements the event handlers behind the WebSocket protocol:
// authentication, direct and group chat, the live-session lifecycle, and the
// signaling relay. The hub owns no I/O loop of its own — the ws dispatcher
// decodes frames and calls into it, and the server's disconnect callback runs
// the teardown.
package hub

import (
	"context"
	"log"
	"time"

	"github.com/classcast/livehub/internal/auth"
	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/ratelimit"
	"github.com/classcast/livehub/internal/registry"
	"github.com/classcast/livehub/internal/store"
)

// Error reply texts sent to clients. Store failures are never echoed
// verbatim; clients get the generic reply and the detail goes to the log.
const (
	replyInvalidToken    = "Invalid token"
	replyExpiredToken    = "Token expired"
	replyInternalError   = "Internal server error"
	replyRateLimited     = "Rate limit exceeded"
	replyReceiverUnknown = "Receiver not found"
	replyNotGroupMember  = "Not a member of this group"
	replyLiveNotFound    = "Live session not found"
	replyLiveEnded       = "Live session already ended"
	replyNotLiveAuthor   = "Only the author can end the live session"
	replyNotHost         = "Only hosts can start a live session"
	replyNotInLive       = "Not in live session"
	replySessionReplaced = "Session replaced by a newer connection"
)

// storeTimeout bounds every database round trip triggered by one event.
const storeTimeout = 5 * time.Second

// Channel is the connection surface the hub needs: identity state plus the
// write/close pair. ws.Connection implements it; tests use fakes.
type Channel interface {
	registry.Channel
	ChannelID() string
	ChannelPath() string
	UserID() string
	Role() string
	Name() string
	SetIdentity(userID, role, name string)
}

// RecordStore is the durable storage surface the hub depends on, implemented
// by store.Store.
type RecordStore interface {
	UserByID(ctx context.Context, id string) (*store.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]store.User, error)
	UsersByRole(ctx context.Context, role string) ([]store.User, error)

	FindPrivateRoom(ctx context.Context, userA, userB string) (*store.Room, error)
	FindOrCreatePrivateRoom(ctx context.Context, senderID, receiverID string) (*store.Room, error)
	CreateGroupRoom(ctx context.Context, name string, memberIDs []string) (*store.Room, error)
	IsGroupMember(ctx context.Context, roomID, userID string) (bool, error)
	GroupMemberIDs(ctx context.Context, roomID string) ([]string, error)
	ListRoomsOf(ctx context.Context, userID string) ([]store.Room, error)
	ListGroupRoomsOf(ctx context.Context, userID string) ([]store.Room, error)

	CreateChat(ctx context.Context, roomID, senderID, receiverID, message, timerID string) (*store.Chat, error)
	ListChatsByRoom(ctx context.Context, roomID string) ([]store.Chat, error)
	MarkChatsRead(ctx context.Context, roomID, receiverID string) error
	ListUnreadChats(ctx context.Context, roomID, receiverID string) ([]store.Chat, error)
	LatestChat(ctx context.Context, roomID string) (*store.Chat, error)

	CreateLiveRoom(ctx context.Context, authorID, title, description string) (*store.LiveRoom, error)
	LiveRoomByID(ctx context.Context, id string) (*store.LiveRoom, error)
	EndLiveRoom(ctx context.Context, id string) error
	AddCurrentParticipant(ctx context.Context, userID, liveRoomID string) error
	RemoveCurrentParticipant(ctx context.Context, userID, liveRoomID string) error
	RemoveAllCurrentParticipants(ctx context.Context, liveRoomID string) error
	AddTotalParticipant(ctx context.Context, userID, liveRoomID string) error
}

// TokenVerifier validates bearer tokens, implemented by auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// Broadcaster fans a frame out to every open channel, authenticated or not.
// ws.ConnectionManager implements it.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Notifier delivers best-effort push notifications. notify.Notifier
// implements it.
type Notifier interface {
	Send(token, title, body, userID string)
}

// Presence mirrors online state in Redis. presence.Store implements it.
type Presence interface {
	Set(ctx context.Context, userID, path, role string) error
	Refresh(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error
}

// Limiter throttles per-user actions. ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Config wires the hub's collaborators. Notifier, Presence, and Limiter are
// optional: a nil value disables that concern.
type Config struct {
	Store    RecordStore
	Verifier TokenVerifier
	Registry *registry.Registry
	Rooms    *registry.RoomDirectory
	Conns    Broadcaster
	Notifier Notifier
	Presence Presence
	Limiter  Limiter
}

// Hub holds the shared state behind every event handler.
type Hub struct {
	store    RecordStore
	verifier TokenVerifier
	registry *registry.Registry
	rooms    *registry.RoomDirectory
	conns    Broadcaster
	notifier Notifier
	presence Presence
	limiter  Limiter
}

// New creates a Hub from its collaborators.
func New(cfg Config) *Hub {
	return &Hub{
		store:    cfg.Store,
		verifier: cfg.Verifier,
		registry: cfg.Registry,
		rooms:    cfg.Rooms,
		conns:    cfg.Conns,
		notifier: cfg.Notifier,
		presence: cfg.Presence,
		limiter:  cfg.Limiter,
	}
}

// storeCtx returns the context used for one event's database work.
func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// sendEvent marshals and writes a data-carrying frame to one channel. Write
// and marshal failures are logged, not returned: delivery is best effort and
// dead peers are reclaimed by their own read path.
func sendEvent(c Channel, event string, data interface{}) {
	frame, err := protocol.NewEventMessage(event, data)
	if err != nil {
		log.Printf("hub: marshal %s frame: %v", event, err)
		return
	}
	_ = c.WriteMessage(frame)
}

// sendToUser delivers a data-carrying frame to a user's registered channel,
// if any. Returns false when the user is offline.
func (h *Hub) sendToUser(userID, event string, data interface{}) bool {
	frame, err := protocol.NewEventMessage(event, data)
	if err != nil {
		log.Printf("hub: marshal %s frame: %v", event, err)
		return false
	}
	if h.registry.Send(userID, frame) {
		metrics.BroadcastsTotal.Inc()
		return true
	}
	return false
}

// Teardown runs the disconnect procedure for a channel: registry eviction,
// live-room cleanup with departure broadcasts, the offline status broadcast,
// and the presence mirror delete. Unauthenticated channels have no shared
// state and need none of it.
//
// If the registry entry no longer points at this channel, a takeover already
// replaced it: the user is still online on the successor, so every shared
// structure stays untouched.
func (h *Hub) Teardown(c Channel) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	if !h.registry.Remove(userID, c) {
		log.Printf("hub: teardown skipped, channel superseded user=%s channel=%s", userID, c.ChannelID())
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()

	for _, roomID := range h.rooms.RoomsOf(userID) {
		h.rooms.Leave(roomID, userID)
		if err := h.store.RemoveCurrentParticipant(ctx, userID, roomID); err != nil {
			log.Printf("hub: teardown participant cleanup user=%s room=%s: %v", userID, roomID, err)
		}
		for _, member := range h.rooms.Members(roomID) {
			h.sendToUser(member, protocol.EventUserLeftLive, protocol.RoomUserEventData{
				UserID: userID,
				RoomID: roomID,
			})
		}
	}

	status, err := protocol.NewEventMessage(protocol.EventUserStatus, protocol.UserStatusData{
		UserID:   userID,
		IsOnline: false,
	})
	if err == nil {
		h.conns.Broadcast(status)
	}

	if h.presence != nil {
		if err := h.presence.Delete(ctx, userID); err != nil {
			log.Printf("hub: presence delete user=%s: %v", userID, err)
		}
	}

	metrics.AuthenticatedUsers.Set(float64(h.registry.Count()))
	metrics.LiveRooms.Set(float64(h.rooms.Count()))

	log.Printf("hub: user disconnected user=%s channel=%s", userID, c.ChannelID())
}

// RefreshPresence extends the presence TTL for an authenticated channel. The
// heartbeat calls it for every channel that survives a sweep.
func (h *Hub) RefreshPresence(c Channel) {
	if h.presence == nil {
		return
	}
	userID := c.UserID()
	if userID == "" {
		return
	}
	ctx, cancel := storeCtx()
	defer cancel()
	if err := h.presence.Refresh(ctx, userID); err != nil {
		log.Printf("hub: presence refresh user=%s: %v", userID, err)
	}
}
