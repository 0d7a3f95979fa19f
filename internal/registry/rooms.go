package registry

import "sync"

// RoomDirectory tracks which users are currently inside which live room.
// Membership here is in-memory only: it is created on start/join, shrunk on
// leave, and dropped when the session ends or the set becomes empty. It is
// the fast, possibly looser view consulted by the signaling relay — the
// durable participant rows are reconciled separately.
type RoomDirectory struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewRoomDirectory creates an empty RoomDirectory.
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{rooms: make(map[string]map[string]struct{})}
}

// Create initializes a room's member set, replacing any existing one.
func (d *RoomDirectory) Create(roomID string, members ...string) {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	d.mu.Lock()
	d.rooms[roomID] = set
	d.mu.Unlock()
}

// Join adds a user to a room, creating the member set lazily.
func (d *RoomDirectory) Join(roomID, userID string) {
	d.mu.Lock()
	set, ok := d.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		d.rooms[roomID] = set
	}
	set[userID] = struct{}{}
	d.mu.Unlock()
}

// Leave removes a user from a room. An empty set is dropped. Returns true if
// the user was a member.
func (d *RoomDirectory) Leave(roomID, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := set[userID]; !member {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(d.rooms, roomID)
	}
	return true
}

// Remove drops a room and its whole member set.
func (d *RoomDirectory) Remove(roomID string) {
	d.mu.Lock()
	delete(d.rooms, roomID)
	d.mu.Unlock()
}

// Has reports whether the user is currently a member of the room.
func (d *RoomDirectory) Has(roomID, userID string) bool {
	d.mu.RLock()
	_, ok := d.rooms[roomID][userID]
	d.mu.RUnlock()
	return ok
}

// Members returns a snapshot of the room's member ids, safe to iterate
// without holding the lock.
func (d *RoomDirectory) Members(roomID string) []string {
	d.mu.RLock()
	set := d.rooms[roomID]
	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	d.mu.RUnlock()
	return members
}

// RoomsOf returns every room the user is currently a member of. Used by the
// teardown path to clean up after a disconnect.
func (d *RoomDirectory) RoomsOf(userID string) []string {
	d.mu.RLock()
	var rooms []string
	for roomID, set := range d.rooms {
		if _, ok := set[userID]; ok {
			rooms = append(rooms, roomID)
		}
	}
	d.mu.RUnlock()
	return rooms
}

// Count returns the number of rooms with at least one member.
func (d *RoomDirectory) Count() int {
	d.mu.RLock()
	n := len(d.rooms)
	d.mu.RUnlock()
	return n
}
