// Package protocol defines the WebSocket event types and structures exchanged
// between clients and the hub. Every frame, both directions, is a JSON
// envelope carrying an "event" discriminator alongside the event's fields.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventAuthenticate    = "authenticate"
	EventMessage         = "message"
	EventFetchChats      = "fetchChats"
	EventUnreadMessages  = "unReadMessages"
	EventOnlineUsers     = "onlineUsers"
	EventMessageList     = "messageList"
	EventCreateGroup     = "createGroup"
	EventGroupMessage    = "groupMessage"
	EventFetchGroupChats = "fetchGroupChats"
	EventGroupList       = "groupList"
	EventStartLive       = "startLive"
	EventJoinLive        = "joinLive"
	EventLeaveLive       = "leaveLive"
	EventEndLive         = "endLive"
	EventLiveOffer       = "liveOffer"
	EventLiveAnswer      = "liveAnswer"
	EventLiveIce         = "liveIce"
)

// Server -> Client events.
const (
	EventInfo             = "info"
	EventError            = "error"
	EventAuthenticated    = "authenticated"
	EventActiveHosts      = "activeHosts"
	EventActiveViewers    = "activeViewers"
	EventUserStatus       = "userStatus"
	EventNoUnreadMessages = "noUnreadMessages"
	EventGroupCreated     = "groupCreated"
	EventAddedToGroup     = "addedToGroup"
	EventLiveStarted      = "liveStarted"
	EventJoinedLive       = "joinedLive"
	EventUserJoinedLive   = "userJoinedLive"
	EventLeftLive         = "leftLive"
	EventUserLeftLive     = "userLeftLive"
	EventLiveEnded        = "liveEnded"
)

// ErrUnknownEvent is returned by ParseClientEvent for a syntactically valid
// frame whose event is not part of the client vocabulary. The dispatcher
// distinguishes this from malformed JSON when building the error reply.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the event discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event name and the raw JSON frame for deferred parsing
// into a concrete struct.
type Envelope struct {
	Event string          `json:"event"`
	Raw   json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "event" field so that the rest of the
// frame can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	e.Event = partial.Event
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// AuthenticateMsg carries the bearer token issued out of band. It is the only
// event accepted on an unauthenticated channel.
type AuthenticateMsg struct {
	Event string `json:"event"`
	Token string `json:"token"`
}

// DirectMessageMsg is a direct chat message addressed to a single user.
type DirectMessageMsg struct {
	Event      string `json:"event"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	TimerID    string `json:"timerId,omitempty"`
}

// FetchChatsMsg requests the full history with a counterpart. Fetching marks
// every message addressed to the requester as read.
type FetchChatsMsg struct {
	Event      string `json:"event"`
	ReceiverID string `json:"receiverId"`
}

// UnreadMessagesMsg requests the unread messages from a counterpart together
// with their count, without marking them read.
type UnreadMessagesMsg struct {
	Event      string `json:"event"`
	ReceiverID string `json:"receiverId"`
}

// OnlineUsersMsg requests the profiles of every currently connected user.
type OnlineUsersMsg struct {
	Event string `json:"event"`
}

// MessageListMsg requests the unified conversation list: for every private or
// group room the requester belongs to, the counterpart (or room metadata) and
// the latest message.
type MessageListMsg struct {
	Event string `json:"event"`
}

// CreateGroupMsg creates a group room with the given members. The creator is
// always included.
type CreateGroupMsg struct {
	Event     string   `json:"event"`
	Name      string   `json:"name,omitempty"`
	MemberIDs []string `json:"memberIds"`
}

// GroupMessageMsg is a chat message addressed to a group room.
type GroupMessageMsg struct {
	Event   string `json:"event"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// FetchGroupChatsMsg requests the full history of a group room.
type FetchGroupChatsMsg struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

// GroupListMsg requests the group rooms the requester belongs to.
type GroupListMsg struct {
	Event string `json:"event"`
}

// StartLiveMsg starts a live session. Restricted to the HOST role.
type StartLiveMsg struct {
	Event       string `json:"event"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// JoinLiveMsg joins a running live session.
type JoinLiveMsg struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

// LeaveLiveMsg leaves a live session without ending it.
type LeaveLiveMsg struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

// EndLiveMsg ends a live session. Restricted to the session author.
type EndLiveMsg struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}

// SignalMsg carries a WebRTC signaling payload (offer, answer, or ICE
// candidate, depending on the event). Payloads are relayed verbatim and never
// interpreted, so they stay raw JSON.
type SignalMsg struct {
	Event     string          `json:"event"`
	RoomID    string          `json:"roomId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ---------------------------------------------------------------------------
// Server -> Client payload structs
// ---------------------------------------------------------------------------

// AuthenticatedData confirms a successful authentication.
type AuthenticatedData struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// UserStatusData is broadcast to all channels when a user comes online or
// goes offline.
type UserStatusData struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// RoomEventData identifies a live room in lifecycle replies and broadcasts.
type RoomEventData struct {
	RoomID string `json:"roomId"`
	Title  string `json:"title,omitempty"`
}

// RoomUserEventData identifies a user acting inside a live room.
type RoomUserEventData struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// SignalData is a relayed signaling payload tagged with the sender.
type SignalData struct {
	FromUserID string          `json:"fromUserId"`
	RoomID     string          `json:"roomId"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// UnreadData pairs the unread messages from a counterpart with their count.
type UnreadData struct {
	Messages interface{} `json:"messages"`
	Count    int         `json:"count"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientEvent parses a raw WebSocket frame into a typed client event.
// It returns the event name, the decoded struct, and any error encountered.
// Unknown events are reported with ErrUnknownEvent so the caller can reply
// with the right error message.
func ParseClientEvent(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse frame: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Event {
	case EventAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventMessage:
		var m DirectMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventFetchChats:
		var m FetchChatsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventUnreadMessages:
		var m UnreadMessagesMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventOnlineUsers:
		var m OnlineUsersMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventMessageList:
		var m MessageListMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventCreateGroup:
		var m CreateGroupMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventGroupMessage:
		var m GroupMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventFetchGroupChats:
		var m FetchGroupChatsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventGroupList:
		var m GroupListMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventStartLive:
		var m StartLiveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventJoinLive:
		var m JoinLiveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventLeaveLive:
		var m LeaveLiveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventEndLive:
		var m EndLiveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case EventLiveOffer, EventLiveAnswer, EventLiveIce:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Event, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	if err != nil {
		return env.Event, nil, fmt.Errorf("protocol: failed to decode %q frame: %w", env.Event, err)
	}
	return env.Event, msg, nil
}

// NewEventMessage builds the JSON bytes for a server frame carrying a data
// payload: {"event": ..., "data": ...}.
func NewEventMessage(event string, data interface{}) ([]byte, error) {
	out, err := json.Marshal(struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q frame: %w", event, err)
	}
	return out, nil
}

// NewErrorMessage builds the JSON bytes for an error frame:
// {"event":"error","message":...}.
func NewErrorMessage(message string) []byte {
	out, _ := json.Marshal(struct {
		Event   string `json:"event"`
		Message string `json:"message"`
	}{Event: EventError, Message: message})
	return out
}

// NewInfoMessage builds the JSON bytes for an informational frame.
func NewInfoMessage(message string) []byte {
	out, _ := json.Marshal(struct {
		Event   string `json:"event"`
		Message string `json:"message"`
	}{Event: EventInfo, Message: message})
	return out
}
