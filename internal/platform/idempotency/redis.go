package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:idempotency:"

// RedisStore shares reservations across replicas. SETNX claims a key and the
// completed response overwrites the pending marker with a fresh expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error) {
	pending, err := json.Marshal(record{Fingerprint: fingerprint})
	if err != nil {
		return Reservation{}, err
	}
	claimed, err := s.client.SetNX(ctx, redisKeyPrefix+key, pending, ttlOrDefault(ttl)).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: redis reserve: %w", err)
	}
	if claimed {
		return Reservation{State: StateNew}, nil
	}

	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; let the caller retry.
		return Reservation{State: StatePending}, nil
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var existing record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return Reservation{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return existing.reservation(fingerprint)
}

func (s *RedisStore) Complete(ctx context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	payload, err := json.Marshal(record{Fingerprint: fingerprint, Completed: true, Response: resp})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttlOrDefault(ttl)).Err(); err != nil {
		return fmt.Errorf("idempotency: redis complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: redis release: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
