// Package store provides PostgreSQL-backed storage for the hub's durable
// entities: users, chat rooms, chat messages, live rooms, and live-room
// participant records. All access goes through raw SQL with context-aware
// statements; errors are wrapped with the failing operation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Room types stored in the rooms.type column.
const (
	RoomTypePrivate = "PRIVATE"
	RoomTypeGroup   = "GROUP"
)

// User is a profile row. Owned by the account service; this hub only reads it.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	ProfileImage string `json:"profileImage,omitempty"`
	DeviceToken  string `json:"-"`
}

// Room is a durable chat container: an unordered private pair or a named
// group. For private rooms SenderID/ReceiverID hold the original pair; group
// membership lives in room_users.
type Room struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Chat is one immutable message row. The read flag only ever transitions
// false -> true, via the bulk mark-read on fetch.
type Chat struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId,omitempty"`
	Message    string    `json:"message"`
	TimerID    string    `json:"timerId,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LiveRoom is a live broadcast session row. Lifecycle is one-way: created
// live, ended exactly once, terminal afterwards.
type LiveRoom struct {
	ID          string     `json:"id"`
	AuthorID    string     `json:"authorId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsLive      bool       `json:"isLive"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
}

// Store manages the hub's durable entities in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL using the given DSN and verifies the
// connection with a short ping.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. Used by tests and by callers
// that manage the pool themselves.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
