package ws

import (
	"errors"
	"log"
	"time"

	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
)

// HandlerFunc processes one decoded client event on a channel. The msg value
// is the typed payload struct produced by protocol.ParseClientEvent for the
// registered event.
type HandlerFunc func(c *Connection, msg interface{})

// Dispatcher routes inbound frames to event handlers. It owns the three
// channel-level error replies: malformed JSON, unknown events, and events
// sent before authentication.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher. Handlers are registered once at
// startup, before the server accepts connections, so the map needs no lock.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to an event name. Registering the same event
// twice panics: it is a wiring bug, not a runtime condition.
func (d *Dispatcher) Register(event string, fn HandlerFunc) {
	if _, dup := d.handlers[event]; dup {
		panic("ws: duplicate handler for event " + event)
	}
	d.handlers[event] = fn
}

// Dispatch decodes one inbound frame and runs the matching handler. Every
// event except authenticate requires the channel to be authenticated first;
// the guard lives here so individual handlers never re-check it.
func (d *Dispatcher) Dispatch(c *Connection, data []byte) {
	start := time.Now()
	defer func() {
		metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	event, msg, err := protocol.ParseClientEvent(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownEvent) {
			_ = c.WriteMessage(protocol.NewErrorMessage("Unknown event"))
			return
		}
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}

	if c.UserID() == "" && event != protocol.EventAuthenticate {
		_ = c.WriteMessage(protocol.NewErrorMessage("Authenticate first"))
		return
	}

	fn, ok := d.handlers[event]
	if !ok {
		// Parsed but not wired — treat the same as an unknown event.
		log.Printf("ws: no handler registered for event=%s channel=%s", event, c.ID)
		_ = c.WriteMessage(protocol.NewErrorMessage("Unknown event"))
		return
	}

	fn(c, msg)
}
