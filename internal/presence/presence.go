// Package presence tracks online status in Valkey with a self-expiring key per user. There is no explicit offline
// state: the absence of a key means offline, so a crashed instance that never runs disconnect logic still frees
// itself up within one TTL window instead of stranding users as permanently online.
package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "user:"
const keySuffix = ":online"

// Store reads and writes online presence state in Valkey.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a new presence store backed by the given Valkey client and TTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// MarkOnline sets the user's presence key with the configured TTL.
func (s *Store) MarkOnline(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Set(ctx, onlineKey(userID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s online: %w", userID, err)
	}
	return nil
}

// Heartbeat extends the TTL of an existing presence key via atomic expiry refresh. If the key does not exist this is
// a no-op, matching EXPIRE semantics: the caller that owns the connection should have already called MarkOnline.
func (s *Store) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Expire(ctx, onlineKey(userID), s.ttl).Err(); err != nil {
		return fmt.Errorf("heartbeat presence for %s: %w", userID, err)
	}
	return nil
}

// MarkOffline deletes the user's presence key.
func (s *Store) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Del(ctx, onlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("mark %s offline: %w", userID, err)
	}
	return nil
}

// IsOnline tests whether the user's presence key currently exists.
func (s *Store) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence for %s: %w", userID, err)
	}
	return n > 0, nil
}

// ListOnline scans for all online presence keys and returns the user ids encoded in them. Malformed keys (unexpected
// at rest, since only this package writes them) are skipped.
func (s *Store) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	var result []uuid.UUID
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*"+keySuffix, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idStr := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), keySuffix)
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		result = append(result, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan online presence keys: %w", err)
	}
	return result, nil
}

func onlineKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + keySuffix
}
