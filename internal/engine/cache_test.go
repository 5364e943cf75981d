package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		k1 := CacheKey("search", "sourdough bread")
		k2 := CacheKey("search", "sourdough bread")
		if k1 != k2 {
			t.Errorf("CacheKey not deterministic: %q != %q", k1, k2)
		}
	})

	t.Run("different inputs differ", func(t *testing.T) {
		k1 := CacheKey("search", "bread")
		k2 := CacheKey("search", "pasta")
		if k1 == k2 {
			t.Errorf("different inputs produced same key: %q", k1)
		}
	})

	t.Run("has prefix", func(t *testing.T) {
		k := CacheKey("test")
		if k[:3] != "vs:" {
			t.Errorf("expected vs: prefix, got %q", k[:3])
		}
	})
}

func TestFingerprint(t *testing.T) {
	a := url.Values{"part": {"snippet"}, "id": {"b,a,c"}, "key": {"secret-1"}}
	b := url.Values{"id": {" a,c,b "}, "key": {"secret-2"}, "part": {"snippet"}}
	if Fingerprint("videos", a) != Fingerprint("/videos", b) {
		t.Error("fingerprint should ignore param order, id order, credential and slashes")
	}

	c := url.Values{"part": {"snippet"}, "id": {"a,b,d"}}
	if Fingerprint("videos", a) == Fingerprint("videos", c) {
		t.Error("different ids produced same fingerprint")
	}
	if Fingerprint("videos", a) == Fingerprint("channels", a) {
		t.Error("different endpoints produced same fingerprint")
	}
}

func TestCacheGetSet(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	ctx := context.Background()
	key := CacheKey("test", "round-trip")

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected cache miss on empty cache")
	}

	c.Set(ctx, key, []byte("hello"), 0)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestCacheExpiration(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	ctx := context.Background()
	key := CacheKey("test", "expiry")

	c.Set(ctx, key, []byte("temp"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(ctx, key); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 3, 5*time.Minute)
	defer c.Close()

	ctx := context.Background()
	for i := range 5 {
		c.Set(ctx, CacheKey("evict", fmt.Sprint(i)), []byte("v"), time.Duration(i+1)*time.Minute)
	}

	if n := c.Stats().Entries; n > 3 {
		t.Errorf("expected at most 3 entries, got %d", n)
	}
	if _, ok := c.Get(ctx, CacheKey("evict", "4")); !ok {
		t.Error("newest entry should survive eviction")
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, ErrCacheMiss
}

func (m *memStore) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func TestCacheL2Fill(t *testing.T) {
	l2 := &memStore{data: map[string][]byte{"vs:shared": []byte("from-l2")}}
	c := NewResponseCache(l2, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	got, ok := c.Get(context.Background(), "vs:shared")
	if !ok || string(got) != "from-l2" {
		t.Fatalf("got %q, %v; want L2 hit", got, ok)
	}

	c.Set(context.Background(), "vs:new", []byte("x"), time.Minute)
	if _, err := l2.Get(context.Background(), "vs:new"); err != nil {
		t.Errorf("Set should write through to L2: %v", err)
	}
}

func TestCacheDoSingleFlight(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("payload"), nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _, err := c.Do(context.Background(), "vs:same", time.Minute, fetch)
			if err != nil {
				t.Errorf("Do: %v", err)
				return
			}
			results[i] = string(data)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
	for i, r := range results {
		if r != "payload" {
			t.Errorf("result[%d] = %q, want payload", i, r)
		}
	}

	data, fromCache, err := c.Do(context.Background(), "vs:same", time.Minute, fetch)
	if err != nil || !fromCache || string(data) != "payload" {
		t.Errorf("second Do = %q, %v, %v; want cached payload", data, fromCache, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("cached Do should not fetch, calls = %d", got)
	}
}

func TestCacheDoErrorNotCached(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	boom := errors.New("boom")
	_, _, err := c.Do(context.Background(), "vs:err", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if _, ok := c.Get(context.Background(), "vs:err"); ok {
		t.Error("failed fetch must not be cached")
	}
}

func TestCacheDoWaiterCanceled(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	release := make(chan struct{})
	defer close(release)
	go c.Do(context.Background(), "vs:slow", time.Minute, func(context.Context) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := c.Do(ctx, "vs:slow", time.Minute, func(context.Context) ([]byte, error) {
		t.Error("waiter must not start a second fetch")
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestCacheDoWaiterRetriesCallerBoundError(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	release := make(chan struct{})
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.Do(context.Background(), "vs:shared", time.Minute, func(context.Context) ([]byte, error) {
			<-release
			return nil, &QuotaExceededError{Operation: OpVideos, Cost: 1}
		})
		leaderErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	var own atomic.Int32
	type result struct {
		data []byte
		err  error
	}
	waiter := make(chan result, 1)
	go func() {
		data, _, err := c.Do(context.Background(), "vs:shared", time.Minute, func(context.Context) ([]byte, error) {
			own.Add(1)
			return []byte("fresh"), nil
		})
		waiter <- result{data, err}
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	if err := <-leaderErr; !IsQuotaExceeded(err) {
		t.Errorf("leader got %v, want its own quota error", err)
	}
	got := <-waiter
	if got.err != nil || string(got.data) != "fresh" {
		t.Errorf("waiter = %q, %v; want fresh payload from its own fetch", got.data, got.err)
	}
	if own.Load() != 1 {
		t.Errorf("waiter fetch ran %d times, want 1", own.Load())
	}
}

func TestCacheDoOwnCredentialErrorNotRetried(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	var calls atomic.Int32
	_, _, err := c.Do(context.Background(), "vs:badkey", time.Minute, func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, &InvalidCredentialError{StatusCode: 400, Reason: "keyInvalid"}
	})
	if !IsInvalidCredential(err) {
		t.Fatalf("got %v, want invalid credential", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
}

func TestCacheStats(t *testing.T) {
	c := NewResponseCache(nil, time.Minute, 100, 5*time.Minute)
	defer c.Close()

	ctx := context.Background()
	c.Get(ctx, "vs:missing")
	c.Set(ctx, "vs:present", []byte("v"), time.Minute)
	c.Get(ctx, "vs:present")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", s)
	}
}
