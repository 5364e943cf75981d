package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Operation names a quota-charged YouTube Data API call.
type Operation string

const (
	OpSearch   Operation = "search"
	OpVideos   Operation = "videos"
	OpChannels Operation = "channels"
	OpComments Operation = "comments"
	OpCaptions Operation = "captions"
)

// DefaultQuotaBudget is the YouTube Data API default daily allowance.
const DefaultQuotaBudget = 10000

// DefaultCosts returns the unit cost of each operation.
func DefaultCosts() map[Operation]int {
	return map[Operation]int{
		OpSearch:   100,
		OpVideos:   1,
		OpChannels: 1,
		OpComments: 1,
		OpCaptions: 200,
	}
}

// QuotaState is a point-in-time view of a ledger.
type QuotaState struct {
	Budget    int               `json:"budget"`
	Used      int               `json:"used"`
	Reserved  int               `json:"reserved"`
	Remaining int               `json:"remaining"`
	ResetAt   time.Time         `json:"reset_at"`
	Costs     map[Operation]int `json:"costs"`
}

// QuotaLedger tracks units spent against a daily budget for one credential.
// used+reserved never exceeds budget: calls reserve their cost before going out,
// commit on success and release on failure.
type QuotaLedger struct {
	mu       sync.Mutex
	budget   int
	used     int
	reserved int
	costs    map[Operation]int
	loc      *time.Location
	resetAt  time.Time
	now      func() time.Time
}

// NewQuotaLedger creates a ledger that resets at midnight in loc.
// A nil costs map uses DefaultCosts; a nil loc uses UTC.
func NewQuotaLedger(budget int, costs map[Operation]int, loc *time.Location) *QuotaLedger {
	return newQuotaLedger(budget, costs, loc, time.Now)
}

func newQuotaLedger(budget int, costs map[Operation]int, loc *time.Location, now func() time.Time) *QuotaLedger {
	if budget <= 0 {
		budget = DefaultQuotaBudget
	}
	if costs == nil {
		costs = DefaultCosts()
	}
	if loc == nil {
		loc = time.UTC
	}
	l := &QuotaLedger{budget: budget, costs: costs, loc: loc, now: now}
	l.resetAt = nextMidnight(now(), loc)
	return l
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// rollover zeroes the day's spend once the reset boundary passes. Caller holds mu.
func (l *QuotaLedger) rollover() {
	now := l.now()
	if now.Before(l.resetAt) {
		return
	}
	slog.Info("quota: daily reset", slog.Int("used", l.used), slog.Int("budget", l.budget))
	l.used = 0
	l.resetAt = nextMidnight(now, l.loc)
}

// Cost returns the unit cost of op. Unknown operations cost 1.
func (l *QuotaLedger) Cost(op Operation) int {
	if c, ok := l.costs[op]; ok {
		return c
	}
	return 1
}

// Reserve atomically checks that op fits in the remaining budget and holds its cost.
// Returns a QuotaExceededError when it does not; no units are held in that case.
func (l *QuotaLedger) Reserve(op Operation) (*Reservation, error) {
	cost := l.Cost(op)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	remaining := l.budget - l.used - l.reserved
	if cost > remaining {
		metrics.QuotaRejections.Add(1)
		return nil, &QuotaExceededError{
			Operation: op,
			Cost:      cost,
			Remaining: max(remaining, 0),
			ResetAt:   l.resetAt,
		}
	}
	l.reserved += cost
	return &Reservation{ledger: l, op: op, cost: cost}, nil
}

// Exhaust marks the remaining budget as spent. Used when the API itself reports
// the quota as exhausted so later calls fail locally without a round trip.
func (l *QuotaLedger) Exhaust() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	if free := l.budget - l.used - l.reserved; free > 0 {
		l.used += free
	}
}

// Snapshot returns the current ledger state.
func (l *QuotaLedger) Snapshot() QuotaState {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	costs := make(map[Operation]int, len(l.costs))
	for k, v := range l.costs {
		costs[k] = v
	}
	return QuotaState{
		Budget:    l.budget,
		Used:      l.used,
		Reserved:  l.reserved,
		Remaining: l.budget - l.used - l.reserved,
		ResetAt:   l.resetAt,
		Costs:     costs,
	}
}

// idle reports a ledger with nothing spent today and nothing reserved.
func (l *QuotaLedger) idle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.used == 0 && l.reserved == 0
}

// busy reports a ledger with calls in flight.
func (l *QuotaLedger) busy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved > 0
}

// Remaining returns the units still available.
func (l *QuotaLedger) Remaining() int {
	return l.Snapshot().Remaining
}

// Reservation holds units for one in-flight call. Exactly one of Commit or
// Release takes effect; later calls are no-ops.
type Reservation struct {
	ledger *QuotaLedger
	op     Operation
	cost   int
	done   atomic.Bool
}

// Cost returns the reserved units.
func (r *Reservation) Cost() int { return r.cost }

// Commit converts the reservation into spent units and records them on the
// request meter carried by ctx, if any.
func (r *Reservation) Commit(ctx context.Context) {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	l := r.ledger
	l.mu.Lock()
	l.reserved -= r.cost
	l.used += r.cost
	l.mu.Unlock()

	metrics.QuotaUnitsSpent.Add(int64(r.cost))
	if m := quotaMeterFrom(ctx); m != nil {
		m.units.Add(int64(r.cost))
	}
}

// Release returns the reserved units to the budget.
func (r *Reservation) Release() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	l := r.ledger
	l.mu.Lock()
	l.reserved -= r.cost
	l.mu.Unlock()
}

// QuotaMeter counts units committed on behalf of one request.
type QuotaMeter struct {
	units atomic.Int64
}

// Units returns the committed total.
func (m *QuotaMeter) Units() int { return int(m.units.Load()) }

type quotaMeterKey struct{}

// WithQuotaMeter attaches a fresh meter to ctx.
func WithQuotaMeter(ctx context.Context) (context.Context, *QuotaMeter) {
	m := &QuotaMeter{}
	return context.WithValue(ctx, quotaMeterKey{}, m), m
}

func quotaMeterFrom(ctx context.Context) *QuotaMeter {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(quotaMeterKey{}).(*QuotaMeter)
	return m
}

// CredentialID returns a short stable identifier for a credential so that raw
// keys never end up in logs, cache keys or maps.
func CredentialID(credential string) string {
	if credential == "" {
		return "default"
	}
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("k:%x", sum[:8])
}

// DefaultMaxCallerLedgers bounds how many caller-supplied credentials a
// registry tracks at once.
const DefaultMaxCallerLedgers = 1024

// QuotaRegistry owns one ledger per credential. The empty credential maps to
// the service's default ledger, which is never evicted. Caller ledgers are
// capped: once the cap is reached, idle ledgers go first, then the least
// recently used one with nothing reserved.
type QuotaRegistry struct {
	mu         sync.Mutex
	budget     int
	costs      map[Operation]int
	loc        *time.Location
	maxCallers int
	ledgers    map[string]*registryEntry
	onEvict    func(id string)
	now        func() time.Time
}

type registryEntry struct {
	ledger   *QuotaLedger
	lastUsed time.Time
}

// NewQuotaRegistry creates a registry whose ledgers share budget, costs and reset zone.
func NewQuotaRegistry(budget int, costs map[Operation]int, loc *time.Location) *QuotaRegistry {
	return &QuotaRegistry{
		budget:     budget,
		costs:      costs,
		loc:        loc,
		maxCallers: DefaultMaxCallerLedgers,
		ledgers:    make(map[string]*registryEntry),
		now:        time.Now,
	}
}

// SetCallerLimit changes the caller ledger cap; n <= 0 restores the default.
func (r *QuotaRegistry) SetCallerLimit(n int) {
	if n <= 0 {
		n = DefaultMaxCallerLedgers
	}
	r.mu.Lock()
	r.maxCallers = n
	r.mu.Unlock()
}

// OnEvict registers fn to be called with the CredentialID of every evicted
// ledger. fn runs without the registry lock held.
func (r *QuotaRegistry) OnEvict(fn func(id string)) {
	r.mu.Lock()
	r.onEvict = fn
	r.mu.Unlock()
}

// Ledger returns the ledger for credential, creating it on first use.
func (r *QuotaRegistry) Ledger(credential string) *QuotaLedger {
	id := CredentialID(credential)
	r.mu.Lock()
	if e, ok := r.ledgers[id]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.ledger
	}
	var evicted []string
	if credential != "" {
		evicted = r.pruneLocked()
	}
	l := NewQuotaLedger(r.budget, r.costs, r.loc)
	r.ledgers[id] = &registryEntry{ledger: l, lastUsed: r.now()}
	fn := r.onEvict
	r.mu.Unlock()

	if len(evicted) > 0 {
		slog.Debug("quota: caller ledgers evicted", slog.Int("count", len(evicted)))
		if fn != nil {
			for _, id := range evicted {
				fn(id)
			}
		}
	}
	return l
}

// Snapshot reports the state of credential's ledger without creating one; an
// unknown credential reads as a fresh ledger.
func (r *QuotaRegistry) Snapshot(credential string) QuotaState {
	id := CredentialID(credential)
	r.mu.Lock()
	e, ok := r.ledgers[id]
	r.mu.Unlock()
	if ok {
		return e.ledger.Snapshot()
	}
	return NewQuotaLedger(r.budget, r.costs, r.loc).Snapshot()
}

// Len returns the number of ledgers held, the default one included.
func (r *QuotaRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ledgers)
}

// pruneLocked makes room for one more caller ledger. Caller holds mu.
func (r *QuotaRegistry) pruneLocked() []string {
	defaultID := CredentialID("")
	callers := len(r.ledgers)
	if _, ok := r.ledgers[defaultID]; ok {
		callers--
	}
	if callers < r.maxCallers {
		return nil
	}

	var evicted []string
	for id, e := range r.ledgers {
		if id != defaultID && e.ledger.idle() {
			delete(r.ledgers, id)
			evicted = append(evicted, id)
			callers--
		}
	}
	for callers >= r.maxCallers {
		var oldestID string
		var oldestAt time.Time
		for id, e := range r.ledgers {
			if id == defaultID || e.ledger.busy() {
				continue
			}
			if oldestID == "" || e.lastUsed.Before(oldestAt) {
				oldestID, oldestAt = id, e.lastUsed
			}
		}
		if oldestID == "" {
			break
		}
		delete(r.ledgers, oldestID)
		evicted = append(evicted, oldestID)
		callers--
	}
	return evicted
}

// Default returns the service credential's ledger.
func (r *QuotaRegistry) Default() *QuotaLedger { return r.Ledger("") }
