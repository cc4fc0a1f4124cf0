package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a user.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// RedisStore mirrors per-user session snapshots into Redis, giving a warm
// standby copy of the state documents alongside the on-disk layout.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed snapshot store. A ttl of 0 keeps
// snapshots until overwritten or deleted.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing client; used by
// tests running against miniredis.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// SaveSnapshot stores the serialized state document for a user.
func (s *RedisStore) SaveSnapshot(ctx context.Context, userID string, payload []byte) error {
	if err := s.client.Set(ctx, s.key(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves the serialized state document for a user.
func (s *RedisStore) LoadSnapshot(ctx context.Context, userID string) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	return payload, nil
}

// DeleteSnapshot removes a user's snapshot.
func (s *RedisStore) DeleteSnapshot(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
