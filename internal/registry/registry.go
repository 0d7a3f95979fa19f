// Package registry holds the process-wide ephemeral state of the hub: which
// users currently have an authenticated channel, and which users are inside
// which live room. Both structures are mutex-guarded and injected into the
// dispatcher and handlers; they are rebuilt from scratch on process restart.
package registry

import (
	"sync"

	"github.com/classcast/livehub/internal/auth"
)

// Channel is the minimal write surface the registry needs from a connection.
// The concrete implementation is ws.Connection; tests use fakes.
type Channel interface {
	WriteMessage(data []byte) error
	Close() error
}

// Entry is the registry record for one authenticated user.
type Entry struct {
	Channel Channel
	Path    string
	Role    auth.Role
}

// Registry maps user identity to its active authenticated channel. It keeps
// the identity->entry map and a parallel identity->channel map used for
// direct delivery, mirroring each other under one lock.
type Registry struct {
	mu      sync.RWMutex
	users   map[string]Entry
	sockets map[string]Channel
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		users:   make(map[string]Entry),
		sockets: make(map[string]Channel),
	}
}

// Install records a successful authentication. If the user already has an
// entry on the same path, that stale channel is evicted and returned so the
// caller can close and log it; entries on other paths are left alone but the
// new entry replaces the mapping either way. The evict-then-install sequence
// runs under a single write lock so concurrent authentications cannot
// interleave.
func (r *Registry) Install(userID string, e Entry) (evicted Channel) {
	r.mu.Lock()
	if prev, ok := r.users[userID]; ok && prev.Path == e.Path && prev.Channel != e.Channel {
		evicted = prev.Channel
	}
	r.users[userID] = e
	r.sockets[userID] = e.Channel
	r.mu.Unlock()
	return evicted
}

// Remove deletes the user's entry, but only if ch is still the registered
// channel. This keeps a stale session's teardown from removing the entry a
// takeover just installed. Returns true if the entry was removed.
func (r *Registry) Remove(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.users[userID]
	if !ok || entry.Channel != ch {
		return false
	}
	delete(r.users, userID)
	delete(r.sockets, userID)
	return true
}

// Get returns the entry for a user id.
func (r *Registry) Get(userID string) (Entry, bool) {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	return e, ok
}

// Send delivers a frame to the user's channel if one is registered. Write
// errors are swallowed: a dead peer is reclaimed by its own read or heartbeat
// path, and best-effort delivery must not block the sender.
func (r *Registry) Send(userID string, data []byte) bool {
	r.mu.RLock()
	ch, ok := r.sockets[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	_ = ch.WriteMessage(data)
	return true
}

// UserIDs returns the ids of every authenticated user.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	return ids
}

// UserIDsByRole returns the ids of every authenticated user holding the
// given role.
func (r *Registry) UserIDsByRole(role auth.Role) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id, e := range r.users {
		if e.Role == role {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	return ids
}

// Count returns the number of authenticated users.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.users)
	r.mu.RUnlock()
	return n
}
