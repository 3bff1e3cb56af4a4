package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// scanBatch is the COUNT hint for SCAN and the DEL batch size.
const scanBatch = 100

// Manager stores CRM API responses in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get returns the entry stored under key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		return nil, failed("get", fmt.Errorf("redis get: %w", err))
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, failed("get", fmt.Errorf("%w: %v", ErrInvalidEntry, err))
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores entry until its Expires time. Expired entries are skipped.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return failed("set", fmt.Errorf("marshal cache entry: %w", err))
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		return failed("set", fmt.Errorf("redis set: %w", err))
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		return failed("delete", fmt.Errorf("redis del: %w", err))
	}
	return nil
}

// UpdateTTL moves the expiry of a stored entry, as after a 304 revalidation.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

// InvalidateEndpoint removes every cached response for endpoint, in all
// scopes and for all query strings. It returns the number of keys removed.
func (m *Manager) InvalidateEndpoint(ctx context.Context, endpoint string) (int, error) {
	return m.deleteMatching(ctx, "invalidate", EndpointPatterns(endpoint)...)
}

// InvalidateScope removes every cached response of one session scope,
// across all endpoints. An empty scope removes nothing.
func (m *Manager) InvalidateScope(ctx context.Context, scope string) (int, error) {
	if scope == "" {
		return 0, nil
	}
	return m.deleteMatching(ctx, "invalidate_scope", ScopePattern(scope))
}

func (m *Manager) deleteMatching(ctx context.Context, op string, patterns ...string) (int, error) {
	removed := 0
	flush := func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, keys...).Result()
		if err != nil {
			return failed(op, fmt.Errorf("redis del: %w", err))
		}
		removed += int(n)
		return nil
	}

	for _, pattern := range patterns {
		iter := m.redis.Scan(ctx, 0, pattern, scanBatch).Iterator()

		batch := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				if err := flush(batch); err != nil {
					return removed, err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return removed, failed(op, fmt.Errorf("redis scan %s: %w", pattern, err))
		}
		if err := flush(batch); err != nil {
			return removed, err
		}
	}

	Invalidations.Add(float64(removed))
	return removed, nil
}

// failed counts err against op.
func failed(op string, err error) error {
	CacheErrors.WithLabelValues(op).Inc()
	return err
}
