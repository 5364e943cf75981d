package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by a CacheStore when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is the shared (L2) cache tier.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// RedisStore is a CacheStore backed by Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, data, ttl).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.rdb.Close() }

// ResponseCache is a two-tier cache (L1 memory + optional L2 store) with
// per-key single-flight: concurrent misses on one key run the fetch once.
type ResponseCache struct {
	l1              sync.Map // key → *cacheEntry
	l2              CacheStore
	defaultTTL      time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	flights         singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Shared  int64 `json:"shared"`
	Entries int   `json:"entries"`
}

// NewResponseCache builds the cache and starts the L1 cleanup loop.
// l2 may be nil to run memory-only.
func NewResponseCache(l2 CacheStore, defaultTTL time.Duration, maxEntries int, cleanupInterval time.Duration) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	c := &ResponseCache{
		l2:              l2,
		defaultTTL:      defaultTTL,
		maxEntries:      maxEntries,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	slog.Info("cache: initialized", slog.Duration("ttl", defaultTTL), slog.Bool("l2", l2 != nil), slog.Int("max_entries", maxEntries))
	go c.cleanupLoop()
	return c
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("vs:%x", hash[:12])
}

// Fingerprint builds the cache key of an API request. Parameter order,
// surrounding whitespace, the order of comma-separated id lists and the
// credential do not affect the key.
func Fingerprint(endpoint string, params url.Values) string {
	norm := url.Values{}
	for k, vs := range params {
		if k == "key" {
			continue
		}
		for _, v := range vs {
			v = strings.TrimSpace(v)
			if k == "id" && strings.Contains(v, ",") {
				ids := strings.Split(v, ",")
				sort.Strings(ids)
				v = strings.Join(ids, ",")
			}
			norm.Add(k, v)
		}
		sort.Strings(norm[k])
	}
	return CacheKey("api", strings.Trim(endpoint, "/"), norm.Encode())
}

func (c *ResponseCache) lookup(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.data, true
		}
		c.l1.Delete(key)
	}

	if c.l2 != nil {
		data, err := c.l2.Get(ctx, key)
		if err == nil {
			c.storeL1(key, data, ttl)
			return data, true
		}
		if !errors.Is(err, ErrCacheMiss) {
			slog.Debug("cache: L2 get failed", slog.Any("error", err))
		}
	}
	return nil, false
}

// Get returns the cached payload for key.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, ok := c.lookup(ctx, key, c.defaultTTL)
	if ok {
		c.hits.Add(1)
		metrics.CacheHits.Add(1)
	} else {
		c.misses.Add(1)
		metrics.CacheMisses.Add(1)
	}
	return data, ok
}

// Set stores data in both tiers. A non-positive ttl uses the default.
func (c *ResponseCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.evictIfNeeded()
	c.storeL1(key, data, ttl)

	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, data, ttl); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
}

func (c *ResponseCache) storeL1(key string, data []byte, ttl time.Duration) {
	c.l1.Store(key, &cacheEntry{data: data, expiresAt: time.Now().Add(ttl)})
}

// Do returns the cached payload for key or runs fetch exactly once across all
// concurrent callers of the same key, caching its result for ttl. Failed
// fetches are not cached. fromCache reports whether the payload came from a
// cache tier rather than from fetch.
func (c *ResponseCache) Do(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) (data []byte, fromCache bool, err error) {
	if data, ok := c.Get(ctx, key); ok {
		return data, true, nil
	}

	for attempt := 0; ; attempt++ {
		led := false
		ch := c.flights.DoChan(key, func() (any, error) {
			led = true
			if data, ok := c.lookup(ctx, key, ttl); ok {
				return data, nil
			}
			data, err := fetch(ctx)
			if err != nil {
				return nil, err
			}
			c.Set(ctx, key, data, ttl)
			return data, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			if res.Shared {
				c.shared.Add(1)
				metrics.CacheShared.Add(1)
			}
			if res.Err != nil {
				// A flight led by another caller failed for reasons of its own
				// (context, quota or credential); retry once under our fetch.
				if attempt == 0 && !led && ctx.Err() == nil && callerBound(res.Err) {
					continue
				}
				return nil, false, res.Err
			}
			return res.Val.([]byte), false, nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// callerBound reports errors that belong to the caller which ran fetch rather
// than to the resource behind key.
func callerBound(err error) bool {
	return isContextErr(err) || IsQuotaExceeded(err) || IsInvalidCredential(err)
}

// Stats returns the current counters.
func (c *ResponseCache) Stats() CacheStats {
	entries := 0
	c.l1.Range(func(_, _ any) bool {
		entries++
		return true
	})
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Shared:  c.shared.Load(),
		Entries: entries,
	}
}

// Close stops the cleanup loop.
func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictIfNeeded removes entries when L1 exceeds maxEntries.
// Removes expired entries first, then oldest entries if still over limit.
func (c *ResponseCache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}

	now := time.Now()
	c.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
			c.l1.Delete(key)
			count--
		}
		return count >= c.maxEntries
	})

	for count >= c.maxEntries {
		var oldestKey any
		var oldestAt time.Time
		c.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*cacheEntry); ok {
				if oldestKey == nil || entry.expiresAt.Before(oldestAt) {
					oldestKey = key
					oldestAt = entry.expiresAt
				}
			}
			return true
		})
		if oldestKey == nil {
			break
		}
		c.l1.Delete(oldestKey)
		count--
	}
}

// cleanupLoop periodically removes expired L1 entries.
func (c *ResponseCache) cleanupLoop() {
	interval := c.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.l1.Range(func(key, val any) bool {
				if entry, ok := val.(*cacheEntry); ok && now.After(entry.expiresAt) {
					c.l1.Delete(key)
				}
				return true
			})
		}
	}
}
