package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const liveRoomColumns = `id, author_id, title, description, is_live, started_at, ended_at`

// CreateLiveRoom creates a live session row with isLive set.
func (s *Store) CreateLiveRoom(ctx context.Context, authorID, title, description string) (*LiveRoom, error) {
	query := `
		INSERT INTO live_rooms (id, author_id, title, description, is_live)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING ` + liveRoomColumns

	var lr LiveRoom
	err := s.db.QueryRowContext(ctx, query, uuid.New().String(), authorID, title, description).Scan(
		&lr.ID, &lr.AuthorID, &lr.Title, &lr.Description, &lr.IsLive, &lr.StartedAt, &lr.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create live room: %w", err)
	}
	return &lr, nil
}

// LiveRoomByID returns one live session, or nil if no such session exists.
func (s *Store) LiveRoomByID(ctx context.Context, id string) (*LiveRoom, error) {
	query := `
		SELECT ` + liveRoomColumns + `
		FROM live_rooms
		WHERE id = $1`

	var lr LiveRoom
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&lr.ID, &lr.AuthorID, &lr.Title, &lr.Description, &lr.IsLive, &lr.StartedAt, &lr.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: live room by id: %w", err)
	}
	return &lr, nil
}

// EndLiveRoom flips the session to ended and stamps the end time. The
// transition happens at most once; ending an already-ended session changes
// nothing.
func (s *Store) EndLiveRoom(ctx context.Context, id string) error {
	const query = `
		UPDATE live_rooms
		SET is_live = FALSE, ended_at = NOW()
		WHERE id = $1 AND is_live = TRUE`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: end live room: %w", err)
	}
	return nil
}

// AddCurrentParticipant records present-now membership for (user, session).
// Existence is checked before insert, so a repeat join is a logical no-op.
func (s *Store) AddCurrentParticipant(ctx context.Context, userID, liveRoomID string) error {
	exists, err := s.hasParticipant(ctx, "current_participants", userID, liveRoomID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	const query = `
		INSERT INTO current_participants (id, user_id, live_room_id)
		VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, uuid.New().String(), userID, liveRoomID); err != nil {
		return fmt.Errorf("store: add current participant: %w", err)
	}
	return nil
}

// RemoveCurrentParticipant deletes the present-now membership rows for
// (user, session). Removing an absent participant is a no-op.
func (s *Store) RemoveCurrentParticipant(ctx context.Context, userID, liveRoomID string) error {
	const query = `
		DELETE FROM current_participants
		WHERE user_id = $1 AND live_room_id = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, liveRoomID); err != nil {
		return fmt.Errorf("store: remove current participant: %w", err)
	}
	return nil
}

// RemoveAllCurrentParticipants bulk-deletes every present-now row for a
// session. Called when the session ends.
func (s *Store) RemoveAllCurrentParticipants(ctx context.Context, liveRoomID string) error {
	const query = `DELETE FROM current_participants WHERE live_room_id = $1`
	if _, err := s.db.ExecContext(ctx, query, liveRoomID); err != nil {
		return fmt.Errorf("store: remove all current participants: %w", err)
	}
	return nil
}

// ClearCurrentParticipants wipes every present-now row regardless of
// session. Run once at boot: after a restart of the single instance no live
// room membership survived, so any remaining rows are stale.
func (s *Store) ClearCurrentParticipants(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM current_participants`)
	if err != nil {
		return 0, fmt.Errorf("store: clear current participants: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AddTotalParticipant records historical membership for (user, session). The
// row is inserted once on first join and never deleted afterwards.
func (s *Store) AddTotalParticipant(ctx context.Context, userID, liveRoomID string) error {
	exists, err := s.hasParticipant(ctx, "total_participants", userID, liveRoomID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	const query = `
		INSERT INTO total_participants (id, user_id, live_room_id)
		VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, uuid.New().String(), userID, liveRoomID); err != nil {
		return fmt.Errorf("store: add total participant: %w", err)
	}
	return nil
}

func (s *Store) hasParticipant(ctx context.Context, table, userID, liveRoomID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM ` + table + ` WHERE user_id = $1 AND live_room_id = $2
		)`

	var ok bool
	if err := s.db.QueryRowContext(ctx, query, userID, liveRoomID).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: %s lookup: %w", table, err)
	}
	return ok, nil
}
