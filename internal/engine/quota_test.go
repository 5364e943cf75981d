package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaReserveCommit(t *testing.T) {
	l := NewQuotaLedger(1000, nil, time.UTC)

	res, err := l.Reserve(OpSearch)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Cost())

	s := l.Snapshot()
	assert.Equal(t, 0, s.Used)
	assert.Equal(t, 100, s.Reserved)
	assert.Equal(t, 900, s.Remaining)

	ctx, meter := WithQuotaMeter(context.Background())
	res.Commit(ctx)
	res.Commit(ctx) // no-op

	s = l.Snapshot()
	assert.Equal(t, 100, s.Used)
	assert.Equal(t, 0, s.Reserved)
	assert.Equal(t, 100, meter.Units())
}

func TestQuotaRelease(t *testing.T) {
	l := NewQuotaLedger(1000, nil, time.UTC)
	res, err := l.Reserve(OpCaptions)
	require.NoError(t, err)
	res.Release()
	res.Commit(context.Background()) // already settled

	s := l.Snapshot()
	assert.Equal(t, 0, s.Used)
	assert.Equal(t, 1000, s.Remaining)
}

func TestQuotaExceeded(t *testing.T) {
	l := NewQuotaLedger(150, nil, time.UTC)
	res, err := l.Reserve(OpSearch)
	require.NoError(t, err)
	res.Commit(context.Background())

	_, err = l.Reserve(OpSearch)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe), "want QuotaExceededError, got %v", err)
	assert.Equal(t, 50, qe.Remaining)
	assert.Equal(t, OpSearch, qe.Operation)
	assert.False(t, qe.ResetAt.IsZero())

	// cheap operations still fit
	_, err = l.Reserve(OpVideos)
	assert.NoError(t, err)
}

func TestQuotaConcurrentBurst(t *testing.T) {
	l := NewQuotaLedger(550, nil, time.UTC)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve(OpSearch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if IsQuotaExceeded(err) {
					rejected++
				}
				return
			}
			res.Commit(context.Background())
			ok++
		}()
	}
	wg.Wait()

	s := l.Snapshot()
	assert.Equal(t, 5, ok)
	assert.Equal(t, n-5, rejected)
	assert.Equal(t, 500, s.Used)
	assert.LessOrEqual(t, s.Used, s.Budget)
}

func TestQuotaDailyReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	l := newQuotaLedger(200, nil, time.UTC, func() time.Time { return now })

	res, err := l.Reserve(OpSearch)
	require.NoError(t, err)
	res.Commit(context.Background())
	assert.Equal(t, 100, l.Snapshot().Used)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), l.Snapshot().ResetAt)

	now = now.Add(2 * time.Hour)
	s := l.Snapshot()
	assert.Equal(t, 0, s.Used)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), s.ResetAt)
}

func TestQuotaExhaust(t *testing.T) {
	l := NewQuotaLedger(1000, nil, time.UTC)
	held, err := l.Reserve(OpSearch)
	require.NoError(t, err)

	l.Exhaust()
	_, err = l.Reserve(OpVideos)
	assert.True(t, IsQuotaExceeded(err))

	held.Release()
	assert.Equal(t, 100, l.Remaining(), "released units of an in-flight call return to the budget")
}

func TestQuotaRegistryIsolation(t *testing.T) {
	r := NewQuotaRegistry(1000, nil, time.UTC)
	def := r.Default()
	user := r.Ledger("caller-key")

	require.NotSame(t, def, user)
	assert.Same(t, user, r.Ledger("caller-key"))
	assert.Same(t, def, r.Ledger(""))

	res, err := user.Reserve(OpSearch)
	require.NoError(t, err)
	res.Commit(context.Background())

	assert.Equal(t, 0, def.Snapshot().Used)
	assert.Equal(t, 100, user.Snapshot().Used)
}

func TestQuotaRegistryEvictsCallers(t *testing.T) {
	r := NewQuotaRegistry(1000, nil, time.UTC)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	r.SetCallerLimit(2)
	var evicted []string
	r.OnEvict(func(id string) { evicted = append(evicted, id) })

	spend := func(l *QuotaLedger) {
		res, err := l.Reserve(OpVideos)
		require.NoError(t, err)
		res.Commit(context.Background())
	}
	def := r.Default()
	spend(def)
	a := r.Ledger("key-a")
	spend(a)
	b := r.Ledger("key-b")
	spend(b)
	r.Ledger("key-a")

	// Nothing idle: the least recently used caller goes.
	r.Ledger("key-c")
	assert.Equal(t, []string{CredentialID("key-b")}, evicted)
	assert.Equal(t, 3, r.Len())
	assert.Same(t, a, r.Ledger("key-a"))

	// key-c never spent anything, so it goes before key-a.
	assert.NotSame(t, b, r.Ledger("key-b"))
	assert.Equal(t, []string{CredentialID("key-b"), CredentialID("key-c")}, evicted)
	assert.Same(t, a, r.Ledger("key-a"))

	assert.Same(t, def, r.Default())
	assert.Equal(t, 1, def.Snapshot().Used)
}

func TestQuotaRegistryKeepsBusyLedgers(t *testing.T) {
	r := NewQuotaRegistry(1000, nil, time.UTC)
	r.SetCallerLimit(1)

	a := r.Ledger("key-a")
	held, err := a.Reserve(OpSearch)
	require.NoError(t, err)
	defer held.Release()

	r.Ledger("key-b")
	assert.Same(t, a, r.Ledger("key-a"), "a ledger with calls in flight stays")
}

func TestQuotaRegistrySnapshotDoesNotRegister(t *testing.T) {
	r := NewQuotaRegistry(1000, nil, time.UTC)
	s := r.Snapshot("never-used")
	assert.Equal(t, 1000, s.Remaining)
	assert.Equal(t, 0, r.Len())

	res, err := r.Ledger("k").Reserve(OpSearch)
	require.NoError(t, err)
	res.Commit(context.Background())
	assert.Equal(t, 100, r.Snapshot("k").Used)
}

func TestCredentialID(t *testing.T) {
	assert.Equal(t, "default", CredentialID(""))
	id := CredentialID("AIzaSecret")
	assert.NotContains(t, id, "Secret")
	assert.Equal(t, id, CredentialID("AIzaSecret"))
}
