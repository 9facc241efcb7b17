package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisMemoEntry is the wire format for memoized results in Redis.
type redisMemoEntry struct {
	Outcome  Outcome   `json:"outcome"`
	Record   *Record   `json:"record,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}

// RedisMemo is the shared memo tier. Expiry is delegated to Redis TTLs,
// so unlike MemoryMemo there is no capacity clear.
type RedisMemo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMemo creates a Redis-backed memo tier.
func NewRedisMemo(rdb *redis.Client, ttl time.Duration) *RedisMemo {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &RedisMemo{rdb: rdb, ttl: ttl}
}

func memoKey(id string) string {
	return "yd:memo:" + id
}

// Get implements MemoStore.
func (m *RedisMemo) Get(ctx context.Context, id string) (*Result, error) {
	data, err := m.rdb.Get(ctx, memoKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMemoMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry redisMemoEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("unmarshal memo entry: %w", err)
	}

	return &Result{Outcome: entry.Outcome, Record: entry.Record}, nil
}

// Set implements MemoStore.
func (m *RedisMemo) Set(ctx context.Context, id string, res Result) error {
	entry := redisMemoEntry{
		Outcome:  res.Outcome,
		Record:   res.Record,
		CachedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal memo entry: %w", err)
	}

	if err := m.rdb.Set(ctx, memoKey(id), data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Tier implements MemoStore.
func (m *RedisMemo) Tier() string { return "redis" }
