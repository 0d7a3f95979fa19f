package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket channel with its associated
// identity state and a write mutex for serializing outbound frames. Identity
// fields stay empty until the channel authenticates.
type Connection struct {
	ID           string        // channel ID (UUID)
	Conn         net.Conn      // underlying TCP connection
	Fd           int           // file descriptor for epoll lookups
	Path         string        // logical path the channel subscribed to
	CreatedAt    time.Time     // when the connection was established
	WriteTimeout time.Duration // per-frame write deadline; 0 disables it

	stateMu sync.RWMutex // guards identity fields
	userID  string
	role    string
	name    string

	alive      int32      // atomic liveness flag, re-armed by any inbound frame
	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn
}

// SetIdentity records the authenticated principal on the channel.
func (c *Connection) SetIdentity(userID, role, name string) {
	c.stateMu.Lock()
	c.userID = userID
	c.role = role
	c.name = name
	c.stateMu.Unlock()
}

// UserID returns the authenticated user id, or "" for an unauthenticated
// channel.
func (c *Connection) UserID() string {
	c.stateMu.RLock()
	id := c.userID
	c.stateMu.RUnlock()
	return id
}

// Role returns the authenticated role, or "" before authentication.
func (c *Connection) Role() string {
	c.stateMu.RLock()
	r := c.role
	c.stateMu.RUnlock()
	return r
}

// Name returns the display name, or "" before authentication.
func (c *Connection) Name() string {
	c.stateMu.RLock()
	n := c.name
	c.stateMu.RUnlock()
	return n
}

// ChannelID returns the channel's unique id.
func (c *Connection) ChannelID() string {
	return c.ID
}

// ChannelPath returns the logical path the channel subscribed to.
func (c *Connection) ChannelPath() string {
	return c.Path
}

// MarkAlive re-arms the liveness flag. Any inbound frame proves the peer is
// alive.
func (c *Connection) MarkAlive() {
	atomic.StoreInt32(&c.alive, 1)
}

// ClearAlive clears the liveness flag and reports whether it was set. The
// heartbeat sweep clears the flag after probing; a peer that never re-arms
// it is evicted on the next sweep.
func (c *Connection) ClearAlive() bool {
	return atomic.SwapInt32(&c.alive, 0) == 1
}

// IsAlive reports the current liveness flag.
func (c *Connection) IsAlive() bool {
	return atomic.LoadInt32(&c.alive) == 1
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
// The write deadline bounds how long a stalled peer can hold the mutex: a
// timed-out write returns an error and leaves the frame stream broken, and
// the peer is reclaimed by its own read or heartbeat path.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.armWriteDeadline()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames; the write deadline keeps a wedged peer from stalling the
// heartbeat sweep.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.armWriteDeadline()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// armWriteDeadline sets the deadline for the next write. Every send path
// re-arms it, so there is no need to clear it between frames. Callers must
// hold writeMu.
func (c *Connection) armWriteDeadline() {
	if c.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	}
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry of open channels keyed by
// channel ID. Fd-based lookups live in the epoll layer, which hands ready
// connections straight to the server.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // channel_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by channel ID and closes the underlying
// network connection. Returns true if the connection was found and removed,
// false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given channel ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// Broadcast sends a message to every open channel, authenticated or not.
// Errors on individual connections are silently ignored — failed connections
// will be cleaned up by the epoll event loop when the next read fails.
func (cm *ConnectionManager) Broadcast(msg []byte) {
	for _, conn := range cm.All() {
		_ = conn.WriteMessage(msg)
	}
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
