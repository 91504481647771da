// Package thumbnailstore keeps derived thumbnails outside the process so they
// survive restarts. It is a secondary record: a miss or an error only costs a
// fresh derivation.
package thumbnailstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "thumbnail"

// RedisStore stores thumbnails as plain Redis strings keyed by image id and
// thumbnail parameters, so a change of size or encoding never serves stale data.
type RedisStore struct {
	client    redis.UniversalClient
	paramsKey string
	ttl       time.Duration
}

// NewRedisStore wraps client. ttl of zero keeps thumbnails until deleted.
func NewRedisStore(client redis.UniversalClient, paramsKey string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		paramsKey: paramsKey,
		ttl:       ttl,
	}
}

// Dial connects to the Redis server at address and verifies it answers.
func Dial(ctx context.Context, address string, paramsKey string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: address})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", address, err)
	}
	return NewRedisStore(client, paramsKey, ttl), nil
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, id, s.paramsKey)
}

// Get returns the stored thumbnail for id; ok is false on a miss.
func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read thumbnail %s: %w", id, err)
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, id string, thumbnail []byte) error {
	if err := s.client.Set(ctx, s.key(id), thumbnail, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write thumbnail %s: %w", id, err)
	}
	return nil
}

// Delete removes the thumbnail for id. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete thumbnail %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
