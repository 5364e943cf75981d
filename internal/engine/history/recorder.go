package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Recorder writes entries to a Store from a single background goroutine.
// Record never blocks: when the buffer is full the entry is dropped.
type Recorder struct {
	store Store
	ch    chan Entry
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the writer. buffer <= 0 uses 64.
func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	r := &Recorder{
		store: store,
		ch:    make(chan Entry, buffer),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Store returns the backing store, for reads.
func (r *Recorder) Store() Store { return r.store }

// Record queues e. It reports whether the entry was accepted.
func (r *Recorder) Record(e Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		engine.IncrHistoryDropped()
		return false
	}
	select {
	case r.ch <- e:
		return true
	default:
		engine.IncrHistoryDropped()
		slog.Warn("history buffer full, dropping entry", slog.String("search_id", e.SearchID))
		return false
	}
}

// Recent reads from the store.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.store.Recent(ctx, limit)
}

// Close flushes queued entries and stops the writer. The store is left open.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.store.Save(ctx, e)
		cancel()
		if err != nil {
			engine.IncrHistoryErrors()
			slog.Warn("history write failed", slog.String("search_id", e.SearchID), slog.Any("error", err))
			continue
		}
		engine.IncrHistoryWrites()
	}
}
