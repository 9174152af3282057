// Package redisstore provides a redis session storage implementation.
//
// RedisStore allows storing, retrieving, and deleting encoded session
// records keyed by a session identifier. Each record is written with a
// TTL matching its expiration time, so redis evicts it on its own.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a redis backed storage for session records.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type config func(*RedisStore)

// WithPrefix sets the key prefix for session records. (default "session:")
func WithPrefix(prefix string) config {
	return config(func(s *RedisStore) {
		s.prefix = prefix
	})
}

// New creates and returns a new RedisStore instance.
func New(rdb redis.UniversalClient, cfgs ...config) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "session:"}
	for _, cfg := range cfgs {
		cfg(s)
	}
	return s
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Get retrieves the data associated with the given token. Returns
// the data, a boolean indicating whether the token was found and
// not expired, and an error.
func (s *RedisStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return data, true, nil
}

// Set stores the data under the given token with an expiration time. If
// a record with the same token already exists, it is overwritten. A
// record that is already expired deletes the key instead, since redis
// would otherwise keep it without a TTL.
func (s *RedisStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, token)
	}
	return s.rdb.Set(ctx, s.key(token), data, ttl).Err()
}

// Replace overwrites the record under token only if the key still exists
// (SET XX), and reports whether it did.
func (s *RedisStore) Replace(ctx context.Context, token string, data []byte, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return false, s.Delete(ctx, token)
	}
	return s.rdb.SetXX(ctx, s.key(token), data, ttl).Result()
}

// Delete removes the data associated with the given token. If the token
// does not exist, this is a no-op.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.key(token)).Err()
}
