package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProcessedStore remembers provider message ids for a bounded window so
// webhook redeliveries are handled once.
type RedisProcessedStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisProcessedStore creates a dedupe store. ttl defaults to 24h.
func NewRedisProcessedStore(client redis.Cmdable, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("messaging: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProcessedStore{client: client, ttl: ttl}
}

func processedKey(provider, eventID string) string {
	return "processed:" + provider + ":" + eventID
}

// MarkProcessed records the event id, returning false if it was already seen.
func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, processedKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("messaging: mark processed: %w", err)
	}
	return ok, nil
}

// Forget drops the marker so a redelivery is processed again.
func (s *RedisProcessedStore) Forget(ctx context.Context, provider, eventID string) error {
	if err := s.client.Del(ctx, processedKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("messaging: forget processed: %w", err)
	}
	return nil
}
