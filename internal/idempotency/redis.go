package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records as JSON strings that expire with the record.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore) Reserve(ctx context.Context, rec Record) (*Record, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil, fmt.Errorf("reserve %s: record already expired", rec.Key)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(rec.Key), payload, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, s.key(rec.Key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.rdb.SetNX(ctx, s.key(rec.Key), payload, ttl).Result()
		if err == nil && ok {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: key %s contended", ErrUnavailable, rec.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var existing Record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &existing, nil
}

func (s *RedisStore) Complete(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return s.Release(ctx, rec.Key)
	}
	if err := s.rdb.Set(ctx, s.key(rec.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
