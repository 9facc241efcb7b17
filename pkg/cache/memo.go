package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMemoMiss indicates the identifier is not in the memo tier.
var ErrMemoMiss = errors.New("memo miss")

// Memo tier defaults.
const (
	// DefaultMemoTTL is how long a memoized result stays valid.
	DefaultMemoTTL = 30 * time.Minute

	// DefaultMemoCapacity is the entry count past which the in-memory
	// tier is cleared wholesale.
	DefaultMemoCapacity = 512
)

// MemoStore is the pluggable memo tier: short-lived memoization of
// terminal lookup results. Implementations: MemoryMemo (process-local)
// and RedisMemo (shared across invocations).
type MemoStore interface {
	// Get returns the memoized result, or ErrMemoMiss.
	Get(ctx context.Context, id string) (*Result, error)

	// Set memoizes a terminal result.
	Set(ctx context.Context, id string, res Result) error

	// Tier names the store for metrics and logging.
	Tier() string
}

type memoEntry struct {
	res      Result
	cachedAt time.Time
}

// MemoryMemo is the process-local memo tier. When the table grows past
// its capacity it is cleared entirely rather than evicting per-entry;
// the entry that triggered the clear does not survive. This is a crude
// shed policy, not LRU, and is the accepted cost of keeping the tier to
// a map and one mutex.
type MemoryMemo struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]memoEntry

	now func() time.Time // injectable for tests
}

// NewMemoryMemo creates a process-local memo tier. Non-positive
// arguments fall back to defaults.
func NewMemoryMemo(ttl time.Duration, capacity int) *MemoryMemo {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	if capacity <= 0 {
		capacity = DefaultMemoCapacity
	}
	return &MemoryMemo{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]memoEntry),
		now:      time.Now,
	}
}

// Get returns a non-expired memoized result. Expired entries are
// deleted on read.
func (m *MemoryMemo) Get(_ context.Context, id string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrMemoMiss
	}
	if m.now().Sub(entry.cachedAt) >= m.ttl {
		delete(m.entries, id)
		return nil, ErrMemoMiss
	}

	res := entry.res
	return &res, nil
}

// Set inserts or overwrites the entry with the current timestamp, then
// clears the whole table if the size exceeds the capacity.
func (m *MemoryMemo) Set(_ context.Context, id string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = memoEntry{res: res, cachedAt: m.now()}

	if len(m.entries) > m.capacity {
		CacheEvictions.Add(float64(len(m.entries)))
		m.entries = make(map[string]memoEntry)
	}
	return nil
}

// Tier implements MemoStore.
func (m *MemoryMemo) Tier() string { return "memory" }

// Len returns the current entry count.
func (m *MemoryMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
