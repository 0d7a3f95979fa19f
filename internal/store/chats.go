package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const chatColumns = `id, room_id, sender_id, COALESCE(receiver_id::text, ''), message, timer_id, is_read, created_at`

// CreateChat persists one message and bumps the room's recency stamp. The
// returned row is the canonical record (generated id and timestamp) echoed
// back to the sender so client and store never disagree.
func (s *Store) CreateChat(ctx context.Context, roomID, senderID, receiverID, message, timerID string) (*Chat, error) {
	query := `
		INSERT INTO chats (id, room_id, sender_id, receiver_id, message, timer_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING ` + chatColumns

	var c Chat
	err := s.db.QueryRowContext(ctx, query,
		uuid.New().String(), roomID, senderID, receiverID, message, timerID).Scan(
		&c.ID, &c.RoomID, &c.SenderID, &c.ReceiverID, &c.Message, &c.TimerID, &c.IsRead, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create chat: %w", err)
	}

	const touch = `UPDATE rooms SET updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, touch, roomID); err != nil {
		return nil, fmt.Errorf("store: touch room: %w", err)
	}
	return &c, nil
}

// ListChatsByRoom returns every message in a room, oldest first.
func (s *Store) ListChatsByRoom(ctx context.Context, roomID string) ([]Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE room_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("store: chats by room: %w", err)
	}
	defer rows.Close()

	return scanChats(rows)
}

// MarkChatsRead flips the read flag on every message in the room addressed
// to the given receiver. The flag never reverts.
func (s *Store) MarkChatsRead(ctx context.Context, roomID, receiverID string) error {
	const query = `
		UPDATE chats
		SET is_read = TRUE
		WHERE room_id = $1 AND receiver_id = $2 AND is_read = FALSE`

	if _, err := s.db.ExecContext(ctx, query, roomID, receiverID); err != nil {
		return fmt.Errorf("store: mark chats read: %w", err)
	}
	return nil
}

// ListUnreadChats returns the unread messages in a room addressed to the
// given receiver, oldest first, without marking them read.
func (s *Store) ListUnreadChats(ctx context.Context, roomID, receiverID string) ([]Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE room_id = $1 AND receiver_id = $2 AND is_read = FALSE
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, roomID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("store: unread chats: %w", err)
	}
	defer rows.Close()

	return scanChats(rows)
}

// LatestChat returns the most recent message in a room, or nil for a room
// with no messages yet.
func (s *Store) LatestChat(ctx context.Context, roomID string) (*Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var c Chat
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(
		&c.ID, &c.RoomID, &c.SenderID, &c.ReceiverID, &c.Message, &c.TimerID, &c.IsRead, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest chat: %w", err)
	}
	return &c, nil
}

func scanChats(rows *sql.Rows) ([]Chat, error) {
	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.RoomID, &c.SenderID, &c.ReceiverID, &c.Message, &c.TimerID, &c.IsRead, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate chats: %w", err)
	}
	return chats, nil
}
