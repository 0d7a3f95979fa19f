package registry

import (
	"sort"
	"testing"
)

func TestRoomCreateAndMembers(t *testing.T) {
	d := NewRoomDirectory()
	d.Create("r1", "author")

	if !d.Has("r1", "author") {
		t.Fatal("author must be a member after create")
	}
	if members := d.Members("r1"); len(members) != 1 || members[0] != "author" {
		t.Errorf("unexpected members: %v", members)
	}
	if d.Count() != 1 {
		t.Errorf("expected 1 room, got %d", d.Count())
	}
}

func TestRoomJoinAndLeave(t *testing.T) {
	d := NewRoomDirectory()
	d.Create("r1", "author")
	d.Join("r1", "viewer")

	if !d.Has("r1", "viewer") {
		t.Fatal("viewer must be a member after join")
	}

	if !d.Leave("r1", "viewer") {
		t.Fatal("leave must report prior membership")
	}
	if d.Has("r1", "viewer") {
		t.Fatal("viewer must be gone after leave")
	}
	if d.Leave("r1", "viewer") {
		t.Fatal("second leave must report no membership")
	}
}

func TestRoomLeaveDropsEmptyRoom(t *testing.T) {
	d := NewRoomDirectory()
	d.Create("r1", "author")

	d.Leave("r1", "author")
	if d.Count() != 0 {
		t.Errorf("empty room must be dropped, count=%d", d.Count())
	}
}

func TestRoomRemove(t *testing.T) {
	d := NewRoomDirectory()
	d.Create("r1", "author", "viewer")
	d.Remove("r1")

	if d.Has("r1", "author") || d.Has("r1", "viewer") {
		t.Fatal("no membership must survive remove")
	}
	if d.Count() != 0 {
		t.Errorf("expected 0 rooms, got %d", d.Count())
	}
}

func TestRoomJoinCreatesLazily(t *testing.T) {
	d := NewRoomDirectory()
	d.Join("r1", "viewer")

	if !d.Has("r1", "viewer") {
		t.Fatal("join must create the member set lazily")
	}
}

func TestRoomsOf(t *testing.T) {
	d := NewRoomDirectory()
	d.Create("r1", "u1", "u2")
	d.Create("r2", "u1")
	d.Create("r3", "u2")

	rooms := d.RoomsOf("u1")
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "r1" || rooms[1] != "r2" {
		t.Errorf("unexpected rooms for u1: %v", rooms)
	}

	if rooms := d.RoomsOf("ghost"); len(rooms) != 0 {
		t.Errorf("expected no rooms for unknown user, got %v", rooms)
	}
}
