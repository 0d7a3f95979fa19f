// Package presence maintains a best-effort Redis mirror of who is online.
// Each authenticated user gets a TTL'd hash so operational tooling can see
// connected users without reaching into the process. The in-memory registry
// remains authoritative: Redis failures are logged by callers and never
// affect channel handling.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for presence hashes.
	KeyPrefix = "presence:"

	// TTL is the time-to-live of a presence hash. The heartbeat sweep
	// refreshes it, so an entry outliving the TTL means the process died.
	TTL = 2 * time.Minute
)

// Record is one user's presence state mirrored in Redis.
type Record struct {
	UserID      string `redis:"user_id"`
	Path        string `redis:"path"`
	Role        string `redis:"role"`
	Server      string `redis:"server"`
	ConnectedAt int64  `redis:"connected_at"`
}

// Store mirrors online presence in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a presence store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Set writes the presence hash for a user with a fresh TTL.
func (s *Store) Set(ctx context.Context, userID, path, role string) error {
	key := KeyPrefix + userID

	record := map[string]interface{}{
		"user_id":      userID,
		"path":         path,
		"role":         role,
		"server":       s.serverName,
		"connected_at": time.Now().Unix(),
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, record)
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the TTL of a user's presence hash.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, KeyPrefix+userID, TTL).Err()
}

// Delete removes a user's presence hash.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, KeyPrefix+userID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages
// (the rate limiter shares the connection).
func (s *Store) Client() *redis.Client {
	return s.client
}
