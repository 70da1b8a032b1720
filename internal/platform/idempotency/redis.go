package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "storefront:idempotency"

// RedisStore shares reservations across API instances. Records expire through Redis key TTLs.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps client. Keys are written under prefix (default storefront:idempotency).
func NewRedisStore(client redis.Cmdable, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + hashedKey(key)
}

// Reserve implements Store. SETNX makes the first request the owner of the key.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	record := pendingRecord(key, fingerprint, now.UTC(), ttl)
	data, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	rk := s.redisKey(key)
	// A record may expire between SETNX and GET; one more round settles it.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, rk, data, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}
		existing, found, err := s.load(ctx, rk)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return reservationFor(existing, fingerprint)
		}
	}
	return Reservation{}, errors.New("idempotency: reservation contended")
}

// SaveResponse implements Store.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rk := s.redisKey(key)
	record, found, err := s.load(ctx, rk)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found {
		record = Record{Key: key, Fingerprint: fingerprint}
	}

	data, err := json.Marshal(completeRecord(record, resp, now.UTC(), ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, rk, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release implements Store. Only the reservation matching fingerprint is removed.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	rk := s.redisKey(key)
	record, found, err := s.load(ctx, rk)
	if err != nil || !found || record.Fingerprint != fingerprint {
		return err
	}
	if err := s.client.Del(ctx, rk).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, rk string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}
