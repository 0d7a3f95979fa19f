// Package notify publishes push notifications over NATS. Delivery is
// best-effort and fire-and-forget: the push relay service consumes the
// subject and talks to the device platforms; failures are logged here and
// never surfaced to the triggering channel.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPush is the NATS subject notifications are published to,
// suffixed with the target user id.
const SubjectPush = "push.send" // + .<user_id>

// Notification is the payload handed to the push relay.
type Notification struct {
	Token  string `json:"token"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"userId"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "livehub",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Notifier wraps the NATS connection behind the push-send contract.
type Notifier struct {
	conn *nats.Conn
}

// NewNotifier connects to NATS with the given config and returns a ready
// notifier. It returns an error if the initial connection fails.
func NewNotifier(config Config) (*Notifier, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("notify: nats disconnected: %v", err)
			} else {
				log.Printf("notify: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("notify: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("notify: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}

	log.Printf("notify: connected to %s", nc.ConnectedUrl())
	return &Notifier{conn: nc}, nil
}

// Send publishes one notification. Errors are logged and swallowed — the
// contract is fire-and-forget and a failed push must never fail the
// operation that triggered it.
func (n *Notifier) Send(token, title, body, userID string) {
	data, err := json.Marshal(Notification{
		Token:  token,
		Title:  title,
		Body:   body,
		UserID: userID,
	})
	if err != nil {
		log.Printf("notify: marshal notification user=%s: %v", userID, err)
		return
	}

	if err := n.conn.Publish(SubjectPush+"."+userID, data); err != nil {
		log.Printf("notify: publish user=%s: %v", userID, err)
	}
}

// Close drains and closes the NATS connection.
func (n *Notifier) Close() {
	if err := n.conn.Drain(); err != nil {
		log.Printf("notify: connection drain: %v", err)
	}
	log.Printf("notify: client closed")
}
