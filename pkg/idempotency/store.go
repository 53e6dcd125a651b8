// Package idempotency records the outcome of requests carrying an
// Idempotency-Key so retries are answered with the first result.
package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned when another request holds the key.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const pending = "\x00pending"

// Store keeps idempotency keys in Redis.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewStore returns a Store whose keys expire after ttl.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:"}
}

// Begin claims key. When the key already completed it returns the stored
// result with claimed=false.
func (s *Store) Begin(ctx context.Context, key string) (result string, claimed bool, err error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, pending, s.ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "claim key")
	}
	if ok {
		return "", true, nil
	}

	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or aborted between the two calls.
		return s.Begin(ctx, key)
	case err != nil:
		return "", false, errors.Wrap(err, "get key")
	case v == pending:
		return "", false, ErrInProgress
	}
	return v, false, nil
}

// Complete stores the result of a claimed key.
func (s *Store) Complete(ctx context.Context, key, result string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, result, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store result")
	}
	return nil
}

// Abort releases a claimed key so the request can be retried.
func (s *Store) Abort(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}
