package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks processed broker offsets so redelivered messages can be
// skipped. A message is only marked after its handler succeeds; failed
// handlers leave the key unset so redelivery retries the work.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}

// Attempts counts how many times a message has entered its handler. The
// consumer uses it to route poison messages to the dead-letter topic once
// the retry budget is spent.
func (s *Store) Attempts(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Incr(ctx, "retry:"+key).Result()
	if err != nil {
		return 0, err
	}
	_ = s.rdb.Expire(ctx, "retry:"+key, s.ttl).Err()
	return n, nil
}
