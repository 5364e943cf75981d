package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SearchRequests      atomic.Int64
	DegradedSearches    atomic.Int64
	APICalls            atomic.Int64
	APIErrors           atomic.Int64
	APIRetries          atomic.Int64
	QuotaRejections     atomic.Int64
	QuotaUnitsSpent     atomic.Int64
	CredentialFallbacks atomic.Int64
	CacheHits           atomic.Int64
	CacheMisses         atomic.Int64
	CacheShared         atomic.Int64
	TranscriptRequests  atomic.Int64
	TranscriptFailures  atomic.Int64
	CommentRequests     atomic.Int64
	HistoryWrites       atomic.Int64
	HistoryErrors       atomic.Int64
	HistoryDropped      atomic.Int64
	LLMCalls            atomic.Int64
	LLMErrors           atomic.Int64
}

var metricKeys = []string{
	"search_requests", "degraded_searches",
	"api_calls", "api_errors", "api_retries",
	"quota_rejections", "quota_units_spent", "credential_fallbacks",
	"cache_hits", "cache_misses", "cache_shared",
	"transcript_requests", "transcript_failures", "comment_requests",
	"history_writes", "history_errors", "history_dropped",
	"llm_calls", "llm_errors",
}

// GetMetrics returns a snapshot of all metrics.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"search_requests":      metrics.SearchRequests.Load(),
		"degraded_searches":    metrics.DegradedSearches.Load(),
		"api_calls":            metrics.APICalls.Load(),
		"api_errors":           metrics.APIErrors.Load(),
		"api_retries":          metrics.APIRetries.Load(),
		"quota_rejections":     metrics.QuotaRejections.Load(),
		"quota_units_spent":    metrics.QuotaUnitsSpent.Load(),
		"credential_fallbacks": metrics.CredentialFallbacks.Load(),
		"cache_hits":           metrics.CacheHits.Load(),
		"cache_misses":         metrics.CacheMisses.Load(),
		"cache_shared":         metrics.CacheShared.Load(),
		"transcript_requests":  metrics.TranscriptRequests.Load(),
		"transcript_failures":  metrics.TranscriptFailures.Load(),
		"comment_requests":     metrics.CommentRequests.Load(),
		"history_writes":       metrics.HistoryWrites.Load(),
		"history_errors":       metrics.HistoryErrors.Load(),
		"history_dropped":      metrics.HistoryDropped.Load(),
		"llm_calls":            metrics.LLMCalls.Load(),
		"llm_errors":           metrics.LLMErrors.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrSearchRequests()      { metrics.SearchRequests.Add(1) }
func IncrDegradedSearches()    { metrics.DegradedSearches.Add(1) }
func IncrAPICalls()            { metrics.APICalls.Add(1) }
func IncrAPIErrors()           { metrics.APIErrors.Add(1) }
func IncrCredentialFallbacks() { metrics.CredentialFallbacks.Add(1) }
func IncrTranscriptRequests()  { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptFailures()  { metrics.TranscriptFailures.Add(1) }
func IncrCommentRequests()     { metrics.CommentRequests.Add(1) }
func IncrHistoryWrites()       { metrics.HistoryWrites.Add(1) }
func IncrHistoryErrors()       { metrics.HistoryErrors.Add(1) }
func IncrHistoryDropped()      { metrics.HistoryDropped.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
