package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "smartmoney:applied:"

// Dedup is a Redis-backed applied-event-id set. It extends the in-memory
// dedup window across restarts; entries expire with the TTL so the keyspace
// stays bounded by the replay window.
type Dedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedup(url string, ttl time.Duration) (*Dedup, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dedup{client: client, ttl: ttl}, nil
}

// Seen reports whether the key was recorded by a prior run.
func (d *Dedup) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check dedup key: %w", err)
	}
	return n > 0, nil
}

// MarkApplied records the keys of a batch that has already been persisted.
// Marking after the persist commits means a crash between the two re-applies
// the events instead of silently dropping them.
func (d *Dedup) MarkApplied(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := d.client.Pipeline()
	for _, key := range keys {
		pipe.Set(ctx, dedupKeyPrefix+key, 1, d.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark dedup keys: %w", err)
	}
	return nil
}

func (d *Dedup) Close() error {
	return d.client.Close()
}
