package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// UserByID returns one user, or nil if no such user exists.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT id, email, username, role, profile_image, device_token
		FROM users
		WHERE id = $1`

	var u User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Username, &u.Role, &u.ProfileImage, &u.DeviceToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: user by id: %w", err)
	}
	return &u, nil
}

// UsersByIDs returns the users matching the given ids, in no particular
// order. Unknown ids are silently skipped.
func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, email, username, role, profile_image, device_token
		FROM users
		WHERE id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: users by ids: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// UsersByRole returns every user holding the given role. Used by the live
// start handler to fan out push notifications to all viewers.
func (s *Store) UsersByRole(ctx context.Context, role string) ([]User, error) {
	const query = `
		SELECT id, email, username, role, profile_image, device_token
		FROM users
		WHERE role = $1`

	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("store: users by role: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.Role, &u.ProfileImage, &u.DeviceToken); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate users: %w", err)
	}
	return users, nil
}
