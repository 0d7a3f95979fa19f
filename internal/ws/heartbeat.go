package ws

import (
	"log"
	"time"
)

// HeartbeatConfig holds tunable parameters for the liveness sweep.
type HeartbeatConfig struct {
	Interval time.Duration       // how often to sweep all connections
	OnAlive  func(c *Connection) // optional: called for each channel that survived a sweep
}

// DefaultHeartbeatConfig returns the standard 30-second sweep.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
	}
}

// Heartbeat periodically sweeps all connections and evicts dead peers.
//
// Each sweep clears the per-connection alive flag and sends a protocol-level
// ping; any inbound frame (including the pong) re-arms the flag. A channel
// whose flag is still cleared on the next sweep sent nothing for a full
// interval and is evicted. A freshly accepted channel therefore always
// survives at least one full interval before it can be evicted.
type Heartbeat struct {
	config HeartbeatConfig
	server *Server
}

// NewHeartbeat creates a heartbeat monitor for the given server.
func NewHeartbeat(config HeartbeatConfig, server *Server) *Heartbeat {
	return &Heartbeat{config: config, server: server}
}

// Start runs the sweep loop until the server shuts down. Call it in its own
// goroutine.
func (h *Heartbeat) Start() {
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	log.Printf("ws: heartbeat started interval=%s", h.config.Interval)

	for {
		select {
		case <-h.server.Done():
			log.Printf("ws: heartbeat stopped")
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep probes every connection once. Dead connections are removed through
// the server so the full disconnect teardown runs.
func (h *Heartbeat) sweep() {
	conns := h.server.Connections().All()
	evicted := 0

	for _, c := range conns {
		if !c.IsAlive() {
			log.Printf("ws: heartbeat evicting silent channel=%s user=%s", c.ID, c.UserID())
			h.server.RemoveConnection(c)
			evicted++
			continue
		}

		// Re-arm the probe: clear the flag and ping. The peer's pong (or any
		// other frame) sets the flag again before the next sweep.
		c.ClearAlive()
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed channel=%s user=%s: %v", c.ID, c.UserID(), err)
			h.server.RemoveConnection(c)
			evicted++
			continue
		}

		if h.config.OnAlive != nil {
			h.config.OnAlive(c)
		}
	}

	if evicted > 0 {
		log.Printf("ws: heartbeat sweep complete checked=%d evicted=%d", len(conns), evicted)
	}
}
