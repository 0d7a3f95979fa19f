package hub

import (
	"encoding/json"
	"testing"

	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/store"
)

// startLive is a helper that starts a session as the given host channel and
// returns the created room id.
func startLive(t *testing.T, env *testEnv, host *fakeChannel) string {
	t.Helper()
	env.hub.StartLive(host, protocol.StartLiveMsg{Title: "lesson"})
	f := findFrame(t, host.frames, protocol.EventLiveStarted)
	var lr store.LiveRoom
	if err := json.Unmarshal(f.Data, &lr); err != nil {
		t.Fatalf("bad liveStarted payload: %v", err)
	}
	return lr.ID
}

func TestStartLiveRequiresHost(t *testing.T) {
	env := newTestEnv()
	viewer := env.connect("v1", "VIEWER")

	env.hub.StartLive(viewer, protocol.StartLiveMsg{Title: "nope"})

	if f := lastFrame(t, viewer); f.Event != protocol.EventError || f.Message != replyNotHost {
		t.Errorf("expected host-only error, got %+v", f)
	}
	if len(env.store.liveRooms) != 0 {
		t.Error("no session must be created")
	}
}

func TestStartLive(t *testing.T) {
	env := newTestEnv()
	env.store.addUser(store.User{ID: "h1", Role: "HOST"})
	env.store.addUser(store.User{ID: "v1", Role: "VIEWER"})
	env.store.addUser(store.User{ID: "v2", Role: "VIEWER", DeviceToken: "tok-v2"})
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	// v2 stays offline.

	roomID := startLive(t, env, host)

	lr := env.store.liveRooms[roomID]
	if !lr.IsLive || lr.AuthorID != "h1" || lr.Title != "lesson" {
		t.Errorf("unexpected session row: %+v", lr)
	}

	// Author is the first participant, both present-now and historical.
	if !env.store.current[roomID]["h1"] {
		t.Error("author must have a present-now row")
	}
	if !env.store.total[roomID]["h1"] {
		t.Error("author must have a historical row")
	}
	if !env.rooms.Has(roomID, "h1") {
		t.Error("author must be in the room directory")
	}

	// Online viewers hear the broadcast; the offline one gets a push.
	if !hasFrame(t, viewer.frames, protocol.EventLiveStarted) {
		t.Error("online viewer must hear liveStarted")
	}
	if len(env.notifier.sent) != 1 || env.notifier.sent[0].userID != "v2" {
		t.Errorf("expected one push to the offline viewer, got %+v", env.notifier.sent)
	}
}

func TestJoinLive(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)

	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	joined := findFrame(t, viewer.frames, protocol.EventJoinedLive)
	var lr store.LiveRoom
	if err := json.Unmarshal(joined.Data, &lr); err != nil {
		t.Fatalf("bad joinedLive payload: %v", err)
	}
	if lr.ID != roomID {
		t.Errorf("unexpected session in reply: %+v", lr)
	}

	if !env.rooms.Has(roomID, "v1") {
		t.Error("joiner must be in the room directory")
	}
	if !env.store.current[roomID]["v1"] || !env.store.total[roomID]["v1"] {
		t.Error("joiner must have both participant rows")
	}

	// Existing members hear the join; the joiner does not hear their own.
	if !hasFrame(t, host.frames, protocol.EventUserJoinedLive) {
		t.Error("existing member must hear userJoinedLive")
	}
	if hasFrame(t, viewer.frames, protocol.EventUserJoinedLive) {
		t.Error("joiner must not hear their own join")
	}
}

func TestJoinLiveRepeatIsStable(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)

	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})
	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	if len(env.store.current[roomID]) != 2 {
		t.Errorf("expected 2 present-now rows, got %d", len(env.store.current[roomID]))
	}
	if len(env.store.total[roomID]) != 2 {
		t.Errorf("expected 2 historical rows, got %d", len(env.store.total[roomID]))
	}
}

func TestJoinLiveUnknownRoom(t *testing.T) {
	env := newTestEnv()
	viewer := env.connect("v1", "VIEWER")

	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: "ghost"})

	if f := lastFrame(t, viewer); f.Event != protocol.EventError || f.Message != replyLiveNotFound {
		t.Errorf("expected not-found error, got %+v", f)
	}
}

func TestJoinLiveEndedRoom(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)
	env.hub.EndLive(host, protocol.EndLiveMsg{RoomID: roomID})

	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	if f := lastFrame(t, viewer); f.Event != protocol.EventError || f.Message != replyLiveNotFound {
		t.Errorf("ended sessions must look not-found, got %+v", f)
	}
}

func TestLeaveLive(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)
	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	env.hub.LeaveLive(viewer, protocol.LeaveLiveMsg{RoomID: roomID})

	if env.rooms.Has(roomID, "v1") {
		t.Error("leaver must be out of the room directory")
	}
	if env.store.current[roomID]["v1"] {
		t.Error("present-now row must be gone")
	}
	if !env.store.total[roomID]["v1"] {
		t.Error("historical row must survive leave")
	}

	if !hasFrame(t, viewer.frames, protocol.EventLeftLive) {
		t.Error("leaver must get the leftLive reply")
	}
	if !hasFrame(t, host.frames, protocol.EventUserLeftLive) {
		t.Error("remaining member must hear userLeftLive")
	}

	// The session itself keeps running.
	if !env.store.liveRooms[roomID].IsLive {
		t.Error("session must stay live after a leave")
	}
}

func TestLeaveLiveNotMember(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	outsider := env.connect("v9", "VIEWER")
	roomID := startLive(t, env, host)

	env.hub.LeaveLive(outsider, protocol.LeaveLiveMsg{RoomID: roomID})

	if f := lastFrame(t, outsider); f.Event != protocol.EventError || f.Message != replyNotInLive {
		t.Errorf("expected not-in-live error, got %+v", f)
	}
}

func TestEndLive(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)
	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	env.hub.EndLive(host, protocol.EndLiveMsg{RoomID: roomID})

	lr := env.store.liveRooms[roomID]
	if lr.IsLive || lr.EndedAt == nil {
		t.Errorf("session must be ended with a timestamp: %+v", lr)
	}
	if len(env.store.current[roomID]) != 0 {
		t.Error("all present-now rows must be dropped")
	}
	if len(env.store.total[roomID]) != 2 {
		t.Error("historical rows must survive the end")
	}
	if env.rooms.Count() != 0 {
		t.Error("room directory entry must be dropped")
	}

	if !hasFrame(t, host.frames, protocol.EventLiveEnded) {
		t.Error("author must hear liveEnded")
	}
	if !hasFrame(t, viewer.frames, protocol.EventLiveEnded) {
		t.Error("member must hear liveEnded")
	}
}

func TestEndLiveNonAuthorRejected(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)
	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	env.hub.EndLive(viewer, protocol.EndLiveMsg{RoomID: roomID})

	if f := lastFrame(t, viewer); f.Event != protocol.EventError || f.Message != replyNotLiveAuthor {
		t.Errorf("expected author-only error, got %+v", f)
	}
	if !env.store.liveRooms[roomID].IsLive {
		t.Error("session must stay live")
	}
}

func TestEndLiveTwice(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	roomID := startLive(t, env, host)

	env.hub.EndLive(host, protocol.EndLiveMsg{RoomID: roomID})
	env.hub.EndLive(host, protocol.EndLiveMsg{RoomID: roomID})

	if f := lastFrame(t, host); f.Event != protocol.EventError || f.Message != replyLiveEnded {
		t.Errorf("expected already-ended error, got %+v", f)
	}
}

func TestSignalRelay(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	viewer := env.connect("v1", "VIEWER")
	roomID := startLive(t, env, host)
	env.hub.JoinLive(viewer, protocol.JoinLiveMsg{RoomID: roomID})

	env.hub.Signal(viewer, protocol.SignalMsg{
		Event:  protocol.EventLiveOffer,
		RoomID: roomID,
		Offer:  json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	f := findFrame(t, host.frames, protocol.EventLiveOffer)
	var data protocol.SignalData
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("bad signal payload: %v", err)
	}
	if data.FromUserID != "v1" || data.RoomID != roomID {
		t.Errorf("unexpected signal envelope: %+v", data)
	}
	if string(data.Offer) != `{"type":"offer","sdp":"v=0"}` {
		t.Errorf("offer payload must be relayed verbatim, got %s", data.Offer)
	}

	// The sender must not hear their own signal.
	if hasFrame(t, viewer.frames, protocol.EventLiveOffer) {
		t.Error("sender must not receive their own signal")
	}
}

func TestSignalNonMemberRejected(t *testing.T) {
	env := newTestEnv()
	host := env.connect("h1", "HOST")
	outsider := env.connect("v9", "VIEWER")
	roomID := startLive(t, env, host)

	env.hub.Signal(outsider, protocol.SignalMsg{
		Event:  protocol.EventLiveIce,
		RoomID: roomID,
	})

	if f := lastFrame(t, outsider); f.Event != protocol.EventError || f.Message != replyNotInLive {
		t.Errorf("expected not-in-live error, got %+v", f)
	}
	if hasFrame(t, host.frames, protocol.EventLiveIce) {
		t.Error("nothing must be relayed for a non-member")
	}
}
