package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"GemChat/internal/session"
)

// redisStore implements session.Store backed by Redis, for history shared
// across hosts. Records expire after the configured TTL.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func redisKey(id string) string {
	return "history:" + id
}

// Save implements session.Store.
func (s *redisStore) Save(ctx context.Context, rec *session.Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}
	return s.client.Set(ctx, redisKey(rec.ID), val, s.ttl).Err()
}

// Load implements session.Store.
func (s *redisStore) Load(ctx context.Context, id string) (*session.Record, error) {
	val, err := s.client.Get(ctx, redisKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse history record: %w", err)
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, redisKey(id), s.ttl).Err()

	return &rec, nil
}

// Close implements session.Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
