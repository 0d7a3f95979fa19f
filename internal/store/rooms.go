package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const roomColumns = `id, type, name, COALESCE(sender_id::text, ''), COALESCE(receiver_id::text, ''), created_at, updated_at`

// FindPrivateRoom resolves the private room for an unordered user pair, or
// nil if the pair has never exchanged a message.
func (s *Store) FindPrivateRoom(ctx context.Context, userA, userB string) (*Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE type = 'PRIVATE'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`

	var r Room
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(
		&r.ID, &r.Type, &r.Name, &r.SenderID, &r.ReceiverID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find private room: %w", err)
	}
	return &r, nil
}

// FindOrCreatePrivateRoom resolves the private room for an unordered user
// pair, creating it lazily on first contact. The lookup matches either
// orientation, so (A,B) and (B,A) resolve to the same room. The unique pair
// index backs the check-then-insert: when two first messages race, the loser
// hits a unique violation and re-reads the winner's row.
func (s *Store) FindOrCreatePrivateRoom(ctx context.Context, senderID, receiverID string) (*Room, error) {
	room, err := s.FindPrivateRoom(ctx, senderID, receiverID)
	if err != nil || room != nil {
		return room, err
	}

	query := `
		INSERT INTO rooms (id, type, sender_id, receiver_id)
		VALUES ($1, 'PRIVATE', $2, $3)
		RETURNING ` + roomColumns

	var r Room
	err = s.db.QueryRowContext(ctx, query, uuid.New().String(), senderID, receiverID).Scan(
		&r.ID, &r.Type, &r.Name, &r.SenderID, &r.ReceiverID, &r.CreatedAt, &r.UpdatedAt)
	if isUniqueViolation(err) {
		return s.FindPrivateRoom(ctx, senderID, receiverID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: create private room: %w", err)
	}
	return &r, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateGroupRoom creates a group room and its membership rows. The member
// list is expected to be deduplicated by the caller.
func (s *Store) CreateGroupRoom(ctx context.Context, name string, memberIDs []string) (*Room, error) {
	query := `
		INSERT INTO rooms (id, type, name)
		VALUES ($1, 'GROUP', $2)
		RETURNING ` + roomColumns

	var r Room
	err := s.db.QueryRowContext(ctx, query, uuid.New().String(), name).Scan(
		&r.ID, &r.Type, &r.Name, &r.SenderID, &r.ReceiverID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create group room: %w", err)
	}

	const memberQuery = `
		INSERT INTO room_users (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	for _, id := range memberIDs {
		if _, err := s.db.ExecContext(ctx, memberQuery, r.ID, id); err != nil {
			return nil, fmt.Errorf("store: add group member: %w", err)
		}
	}
	return &r, nil
}

// IsGroupMember reports whether the user is a listed member of the group
// room. Membership gates sending and fetching in that room.
func (s *Store) IsGroupMember(ctx context.Context, roomID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM room_users WHERE room_id = $1 AND user_id = $2
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: group membership: %w", err)
	}
	return ok, nil
}

// GroupMemberIDs returns the user ids of every member of a group room.
func (s *Store) GroupMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	const query = `SELECT user_id FROM room_users WHERE room_id = $1`

	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("store: group members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan group member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate group members: %w", err)
	}
	return ids, nil
}

// ListRoomsOf returns every room the user belongs to — private rooms where
// the user is either end of the pair, and group rooms where the user is a
// member — ordered by recency (updated_at is bumped on every message).
func (s *Store) ListRoomsOf(ctx context.Context, userID string) ([]Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE (type = 'PRIVATE' AND (sender_id = $1 OR receiver_id = $1))
		   OR (type = 'GROUP' AND id IN (SELECT room_id FROM room_users WHERE user_id = $1))
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: rooms of user: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &r.SenderID, &r.ReceiverID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan room: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rooms: %w", err)
	}
	return out, nil
}

// ListGroupRoomsOf returns the group rooms the user belongs to, ordered by
// recency.
func (s *Store) ListGroupRoomsOf(ctx context.Context, userID string) ([]Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE type = 'GROUP'
		  AND id IN (SELECT room_id FROM room_users WHERE user_id = $1)
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: group rooms of user: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &r.SenderID, &r.ReceiverID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan group room: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate group rooms: %w", err)
	}
	return out, nil
}
