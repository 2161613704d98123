// Package cache holds the Redis key catalog and a msgpack payload store
// shared by the repository layer and the ingest daemon.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
)

// scanBatch is the COUNT hint for SCAN-based invalidation.
const scanBatch = 200

// Store reads and writes msgpack payloads through a Redis client. A nil
// Store (or one without a client) degrades to a no-op so callers need no
// cache-enabled branches.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps a Redis client. rdb may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Enabled reports whether a Redis client is attached.
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

// Get loads the entry at key into v. Missing entries report a miss;
// corrupted entries are deleted and also report a miss.
func (s *Store) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	payload, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		logx.WithContext(ctx).Errorf("cache: dropping corrupted entry %s: %v", key, err)
		_ = s.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set stores v at key for ttl. A non-positive ttl disables the write.
func (s *Store) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if !s.Enabled() || ttl <= 0 {
		return nil
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// SetNX stores v at key only when the key is absent and reports whether the
// write won. With no client or a non-positive ttl the guard is disabled and
// every caller wins.
func (s *Store) SetNX(ctx context.Context, key string, v interface{}, ttl time.Duration) (bool, error) {
	if !s.Enabled() || ttl <= 0 {
		return true, nil
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", key, err)
	}
	won, err := s.rdb.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: setnx %s: %w", key, err)
	}
	return won, nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// DeleteByPattern removes every key matching pattern using SCAN, so large
// keyspaces are walked without blocking the node.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("cache: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: delete %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
