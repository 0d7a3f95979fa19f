package hub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/store"
)

func TestDirectMessagePersistsAndDelivers(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER"})
	sender := env.connect("u1", "VIEWER")
	receiver := env.connect("u2", "VIEWER")

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{
		ReceiverID: "u2",
		Message:    "hello there",
		TimerID:    "t1",
	})

	// Exactly one room and one chat row.
	if len(env.store.rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(env.store.rooms))
	}
	echo := findFrame(t, sender.frames, protocol.EventMessage)
	var chat store.Chat
	if err := json.Unmarshal(echo.Data, &chat); err != nil {
		t.Fatalf("bad echo payload: %v", err)
	}
	if chat.SenderID != "u1" || chat.ReceiverID != "u2" || chat.Message != "hello there" || chat.TimerID != "t1" {
		t.Errorf("unexpected chat row: %+v", chat)
	}
	if chat.ID == "" {
		t.Error("echo must carry the stored row with its generated id")
	}

	delivered := findFrame(t, receiver.frames, protocol.EventMessage)
	if string(delivered.Data) != string(echo.Data) {
		t.Error("receiver and sender must see the same stored row")
	}

	if len(env.notifier.sent) != 0 {
		t.Error("no push notification for an online receiver")
	}
}

func TestDirectMessageReusesRoom(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u1", Role: "VIEWER"})
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER"})
	a := env.connect("u1", "VIEWER")
	b := env.connect("u2", "VIEWER")

	env.hub.DirectMessage(a, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "ping"})
	env.hub.DirectMessage(b, protocol.DirectMessageMsg{ReceiverID: "u1", Message: "pong"})

	if len(env.store.rooms) != 1 {
		t.Errorf("both directions must share one room, got %d", len(env.store.rooms))
	}
}

func TestDirectMessageOfflineReceiverGetsPush(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER", DeviceToken: "tok-2"})
	sender := env.connect("u1", "VIEWER")

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "hi"})

	if len(env.notifier.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(env.notifier.sent))
	}
	push := env.notifier.sent[0]
	if push.token != "tok-2" || push.userID != "u2" || push.body != "hi" {
		t.Errorf("unexpected push: %+v", push)
	}
}

func TestDirectMessageUnknownReceiver(t *testing.T) {
	env := newTestEnv()
	sender := env.connect("u1", "VIEWER")

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{ReceiverID: "ghost", Message: "hi"})

	f := lastFrame(t, sender)
	if f.Event != protocol.EventError || f.Message != replyReceiverUnknown {
		t.Errorf("expected receiver-not-found error, got %+v", f)
	}
}

func TestDirectMessageValidation(t *testing.T) {
	env := newTestEnv()
	sender := env.connect("u1", "VIEWER")

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "   "})
	if f := lastFrame(t, sender); f.Event != protocol.EventError || f.Message != "Message is empty" {
		t.Errorf("expected empty-message error, got %+v", f)
	}

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{
		ReceiverID: "u2",
		Message:    strings.Repeat("x", MaxMessageLength+1),
	})
	if f := lastFrame(t, sender); f.Event != protocol.EventError || f.Message != "Message too long" {
		t.Errorf("expected too-long error, got %+v", f)
	}

	if len(env.store.chats) != 0 {
		t.Error("invalid messages must not be persisted")
	}
}

func TestDirectMessageRateLimited(t *testing.T) {
	env := newTestEnv()
	env.hub.limiter = &fakeLimiter{allowed: false}
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER"})
	sender := env.connect("u1", "VIEWER")

	env.hub.DirectMessage(sender, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "hi"})

	if f := lastFrame(t, sender); f.Event != protocol.EventError || f.Message != replyRateLimited {
		t.Errorf("expected rate-limit error, got %+v", f)
	}
	if len(env.store.chats) != 0 {
		t.Error("rate-limited messages must not be persisted")
	}
}

func TestFetchChatsMarksRead(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER"})
	a := env.connect("u1", "VIEWER")
	b := env.connect("u2", "VIEWER")

	env.hub.DirectMessage(a, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "first"})
	env.hub.DirectMessage(a, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "second"})

	env.hub.FetchChats(b, protocol.FetchChatsMsg{ReceiverID: "u1"})

	f := findFrame(t, b.frames, protocol.EventFetchChats)
	var chats []store.Chat
	if err := json.Unmarshal(f.Data, &chats); err != nil {
		t.Fatalf("bad history payload: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].Message != "first" || chats[1].Message != "second" {
		t.Errorf("history out of order: %+v", chats)
	}

	// Messages addressed to the fetcher are now read.
	for _, roomChats := range env.store.chats {
		for _, c := range roomChats {
			if c.ReceiverID == "u2" && !c.IsRead {
				t.Errorf("chat %s not marked read", c.ID)
			}
		}
	}

	// A follow-up unread query finds nothing.
	env.hub.UnreadMessages(b, protocol.UnreadMessagesMsg{ReceiverID: "u1"})
	findFrame(t, b.frames, protocol.EventNoUnreadMessages)
}

func TestFetchChatsNoHistory(t *testing.T) {
	env := newTestEnv()
	a := env.connect("u1", "VIEWER")

	env.hub.FetchChats(a, protocol.FetchChatsMsg{ReceiverID: "stranger"})

	f := findFrame(t, a.frames, protocol.EventFetchChats)
	if string(f.Data) != "[]" {
		t.Errorf("expected empty list, got %s", f.Data)
	}
}

func TestUnreadMessages(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER"})
	a := env.connect("u1", "VIEWER")
	b := env.connect("u2", "VIEWER")

	env.hub.DirectMessage(a, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "unseen"})

	env.hub.UnreadMessages(b, protocol.UnreadMessagesMsg{ReceiverID: "u1"})

	f := findFrame(t, b.frames, protocol.EventUnreadMessages)
	var data struct {
		Messages []store.Chat `json:"messages"`
		Count    int          `json:"count"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("bad unread payload: %v", err)
	}
	if data.Count != 1 || len(data.Messages) != 1 || data.Messages[0].Message != "unseen" {
		t.Errorf("unexpected unread payload: %+v", data)
	}

	// Peeking must not mark anything read.
	for _, roomChats := range env.store.chats {
		for _, c := range roomChats {
			if c.IsRead {
				t.Error("unread peek must not mark messages read")
			}
		}
	}
}

func TestUnreadMessagesNone(t *testing.T) {
	env := newTestEnv()
	b := env.connect("u2", "VIEWER")

	env.hub.UnreadMessages(b, protocol.UnreadMessagesMsg{ReceiverID: "u1"})

	f := findFrame(t, b.frames, protocol.EventNoUnreadMessages)
	var data struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if data.Count != 0 {
		t.Errorf("expected count 0, got %d", data.Count)
	}
}

func TestOnlineUsers(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u1", Role: "VIEWER"})
	env.store.addUser(store.User{ID: "u2", Role: "HOST"})
	a := env.connect("u1", "VIEWER")
	env.connect("u2", "HOST")

	env.hub.OnlineUsers(a, protocol.OnlineUsersMsg{})

	f := findFrame(t, a.frames, protocol.EventOnlineUsers)
	var users []store.User
	if err := json.Unmarshal(f.Data, &users); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected 2 online users, got %d", len(users))
	}
}

func TestMessageList(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "u1", Role: "VIEWER", Username: "one"})
	env.store.addUser(store.User{ID: "u2", Role: "VIEWER", Username: "two"})
	a := env.connect("u1", "VIEWER")

	env.hub.DirectMessage(a, protocol.DirectMessageMsg{ReceiverID: "u2", Message: "latest"})
	env.store.CreateGroupRoom(context.Background(), "study", []string{"u1", "u3"})

	env.hub.MessageList(a, protocol.MessageListMsg{})

	f := findFrame(t, a.frames, protocol.EventMessageList)
	var entries []struct {
		Room          store.Room  `json:"room"`
		Counterpart   *store.User `json:"counterpart"`
		LatestMessage *store.Chat `json:"latestMessage"`
	}
	if err := json.Unmarshal(f.Data, &entries); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(entries))
	}

	for _, e := range entries {
		switch e.Room.Type {
		case store.RoomTypePrivate:
			if e.Counterpart == nil || e.Counterpart.ID != "u2" {
				t.Errorf("private entry missing counterpart: %+v", e)
			}
			if e.LatestMessage == nil || e.LatestMessage.Message != "latest" {
				t.Errorf("private entry missing latest message: %+v", e)
			}
		case store.RoomTypeGroup:
			if e.Counterpart != nil {
				t.Error("group entries carry no counterpart")
			}
		}
	}
}

func TestCreateGroupIncludesCreator(t *testing.T) {
	env := newTestEnv()
	creator := env.connect("u1", "VIEWER")
	member := env.connect("u2", "VIEWER")

	env.hub.CreateGroup(creator, protocol.CreateGroupMsg{
		Name:      "study",
		MemberIDs: []string{"u2", "u2", "u3"},
	})

	created := findFrame(t, creator.frames, protocol.EventGroupCreated)
	var room store.Room
	if err := json.Unmarshal(created.Data, &room); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if room.Name != "study" || room.Type != store.RoomTypeGroup {
		t.Errorf("unexpected room: %+v", room)
	}

	members := env.store.groupMembers[room.ID]
	if !members["u1"] || !members["u2"] || !members["u3"] || len(members) != 3 {
		t.Errorf("unexpected membership: %v", members)
	}

	// Online members (not the creator) hear they were added.
	if !hasFrame(t, member.frames, protocol.EventAddedToGroup) {
		t.Error("online member must hear addedToGroup")
	}
}

func TestCreateGroupNeedsMembers(t *testing.T) {
	env := newTestEnv()
	creator := env.connect("u1", "VIEWER")

	env.hub.CreateGroup(creator, protocol.CreateGroupMsg{Name: "empty"})

	if f := lastFrame(t, creator); f.Event != protocol.EventError {
		t.Errorf("expected error, got %+v", f)
	}
	if len(env.store.rooms) != 0 {
		t.Error("no room must be created")
	}
}

func TestGroupMessageFanOut(t *testing.T) {
	env := newTestEnv()
	sender := env.connect("u1", "VIEWER")
	other := env.connect("u2", "VIEWER")
	room, _ := env.store.CreateGroupRoom(context.Background(), "study", []string{"u1", "u2", "u3"})

	env.hub.GroupMessage(sender, protocol.GroupMessageMsg{RoomID: room.ID, Message: "hi all"})

	echo := findFrame(t, sender.frames, protocol.EventGroupMessage)
	delivered := findFrame(t, other.frames, protocol.EventGroupMessage)
	if string(echo.Data) != string(delivered.Data) {
		t.Error("all members must see the same stored row")
	}

	var chat store.Chat
	if err := json.Unmarshal(echo.Data, &chat); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if chat.RoomID != room.ID || chat.SenderID != "u1" || chat.ReceiverID != "" {
		t.Errorf("unexpected group chat row: %+v", chat)
	}
}

func TestGroupMessageNonMemberRejected(t *testing.T) {
	env := newTestEnv()
	outsider := env.connect("u9", "VIEWER")
	room, _ := env.store.CreateGroupRoom(context.Background(), "study", []string{"u1", "u2"})

	env.hub.GroupMessage(outsider, protocol.GroupMessageMsg{RoomID: room.ID, Message: "let me in"})

	if f := lastFrame(t, outsider); f.Event != protocol.EventError || f.Message != replyNotGroupMember {
		t.Errorf("expected membership error, got %+v", f)
	}
	if len(env.store.chats[room.ID]) != 0 {
		t.Error("non-member messages must not be persisted")
	}
}

func TestFetchGroupChatsNonMemberRejected(t *testing.T) {
	env := newTestEnv()
	outsider := env.connect("u9", "VIEWER")
	room, _ := env.store.CreateGroupRoom(context.Background(), "study", []string{"u1"})

	env.hub.FetchGroupChats(outsider, protocol.FetchGroupChatsMsg{RoomID: room.ID})

	if f := lastFrame(t, outsider); f.Event != protocol.EventError || f.Message != replyNotGroupMember {
		t.Errorf("expected membership error, got %+v", f)
	}
}

func TestGroupList(t *testing.T) {
	env := newTestEnv()
	a := env.connect("u1", "VIEWER")
	env.store.CreateGroupRoom(context.Background(), "mine", []string{"u1"})
	env.store.CreateGroupRoom(context.Background(), "other", []string{"u2"})

	env.hub.GroupList(a, protocol.GroupListMsg{})

	f := findFrame(t, a.frames, protocol.EventGroupList)
	var rooms []store.Room
	if err := json.Unmarshal(f.Data, &rooms); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "mine" {
		t.Errorf("unexpected group list: %+v", rooms)
	}
}
