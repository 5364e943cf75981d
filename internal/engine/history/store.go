// Package history persists past searches. Writes go through a Recorder so
// a slow or unavailable store never blocks a search.
package history

import (
	"context"
	"time"
)

// Entry is one completed search.
type Entry struct {
	SearchID     string    `json:"search_id"`
	Idea         string    `json:"idea"`
	Keywords     []string  `json:"keywords"`
	ContentTypes []string  `json:"content_types"`
	Intent       string    `json:"intent"`
	TotalResults int       `json:"total_results"`
	VideoIDs     []string  `json:"video_ids"` // returned videos, rank order
	QuotaUsed    int       `json:"quota_used"`
	Degraded     bool      `json:"degraded"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the durable history backend.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// ListResult is the output of search_history.
type ListResult struct {
	Searches []Entry `json:"searches"`
	Total    int     `json:"total"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// clampLimit maps a requested page size onto [1, 100], defaulting to 20.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}
