package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Resource kinds cached by the question pipeline.
const (
	KindItem            = "item"
	KindItemDescription = "item_description"
	KindUser            = "user"
)

const globalOwner = "global"

// Store is a namespaced key-value cache. Entries are addressed by
// (kind, id, owner) and stored as JSON.
type Store interface {
	// Get decodes the cached value into dest. The bool is false on a miss.
	Get(ctx context.Context, kind, id, owner string, dest any) (bool, error)
	Set(ctx context.Context, kind, id, owner string, value any, ttl time.Duration) error
	Stats() Stats
}

// Stats is a point-in-time snapshot of the store counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits / (hits + misses), or 0 without lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Key builds the storage key for an entry.
func Key(kind, id, owner string) string {
	if owner == "" {
		owner = globalOwner
	}
	return fmt.Sprintf("ml:%s:%s:%s", kind, owner, id)
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Errors: c.errors.Load(),
	}
}

// RedisStore keeps entries in Redis.
type RedisStore struct {
	client  redis.Cmdable
	metrics *metrics.Metrics
	stats   counters
}

// NewRedisStore wraps a go-redis client. m may be nil.
func NewRedisStore(client redis.Cmdable, m *metrics.Metrics) *RedisStore {
	return &RedisStore{client: client, metrics: m}
}

func (s *RedisStore) Get(ctx context.Context, kind, id, owner string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, Key(kind, id, owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.stats.misses.Add(1)
		s.metrics.RecordCacheMiss(kind)
		return false, nil
	}
	if err != nil {
		s.stats.errors.Add(1)
		return false, fmt.Errorf("cache get %s/%s: %w", kind, id, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		s.stats.errors.Add(1)
		return false, fmt.Errorf("cache decode %s/%s: %w", kind, id, err)
	}
	s.stats.hits.Add(1)
	s.metrics.RecordCacheHit(kind)
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, kind, id, owner string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		s.stats.errors.Add(1)
		return fmt.Errorf("cache encode %s/%s: %w", kind, id, err)
	}
	if err := s.client.Set(ctx, Key(kind, id, owner), raw, ttl).Err(); err != nil {
		s.stats.errors.Add(1)
		return fmt.Errorf("cache set %s/%s: %w", kind, id, err)
	}
	s.stats.sets.Add(1)
	return nil
}

func (s *RedisStore) Stats() Stats {
	return s.stats.snapshot()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store used when no cache server is configured
// and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	stats   counters
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, kind, id, owner string, dest any) (bool, error) {
	key := Key(kind, id, owner)

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.stats.misses.Add(1)
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		s.stats.errors.Add(1)
		return false, fmt.Errorf("cache decode %s/%s: %w", kind, id, err)
	}
	s.stats.hits.Add(1)
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, kind, id, owner string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		s.stats.errors.Add(1)
		return fmt.Errorf("cache encode %s/%s: %w", kind, id, err)
	}

	entry := memoryEntry{data: raw}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[Key(kind, id, owner)] = entry
	s.mu.Unlock()

	s.stats.sets.Add(1)
	return nil
}

func (s *MemoryStore) Stats() Stats {
	return s.stats.snapshot()
}

// GetOrFetch returns the cached value or calls fetch and caches its result.
// Cache failures are logged and never hide a successful fetch.
func GetOrFetch[T any](ctx context.Context, store Store, kind, id, owner string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := store.Get(ctx, kind, id, owner, &cached)
	if err != nil {
		log.Warnf("[Cache] Lookup failed for %s: %v", Key(kind, id, owner), err)
	}
	if hit {
		return cached, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := store.Set(ctx, kind, id, owner, value, ttl); err != nil {
		log.Warnf("[Cache] Store failed for %s: %v", Key(kind, id, owner), err)
	}
	return value, nil
}
