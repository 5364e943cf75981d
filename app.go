package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/history"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/pipeline"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/youtube"
)

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(env.Str("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(env.Str("LOG_FORMAT", "text"), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig builds the engine config from the environment and the optional
// tuning file.
func loadConfig(tuningPath string) (engine.Config, error) {
	c := engine.Config{
		YouTubeAPIKey:    env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIBase:   env.Str("YOUTUBE_API_BASE", "https://www.googleapis.com/youtube/v3"),
		YouTubeWatchBase: env.Str("YOUTUBE_WATCH_BASE", "https://www.youtube.com"),

		QuotaBudget:    env.Int("QUOTA_DAILY_BUDGET", 10000),
		QuotaCosts:     engine.DefaultCosts(),
		QuotaResetZone: env.Str("QUOTA_RESET_ZONE", "America/Los_Angeles"),
		MaxCallerKeys:  env.Int("QUOTA_MAX_CALLER_KEYS", engine.DefaultMaxCallerLedgers),

		RateLimit:  env.Int("RATE_LIMIT", 10),
		RateWindow: env.Duration("RATE_WINDOW", 100*time.Millisecond),
		RateBurst:  env.Int("RATE_BURST", 10),

		MaxWorkers:    env.Int("MAX_WORKERS", 10),
		SearchTimeout: env.Duration("SEARCH_TIMEOUT", 60*time.Second),
		Retry: engine.RetryConfig{
			MaxAttempts: env.Int("RETRY_MAX_ATTEMPTS", engine.DefaultRetryConfig.MaxAttempts),
			InitialWait: env.Duration("RETRY_INITIAL_WAIT", engine.DefaultRetryConfig.InitialWait),
			MaxWait:     env.Duration("RETRY_MAX_WAIT", engine.DefaultRetryConfig.MaxWait),
			Multiplier:  env.Float("RETRY_MULTIPLIER", engine.DefaultRetryConfig.Multiplier),
			Jitter:      env.Float("RETRY_JITTER", engine.DefaultRetryConfig.Jitter),
		},

		TranscriptLangs:    env.List("TRANSCRIPT_LANGS", "en"),
		TranscriptMaxChars: env.Int("TRANSCRIPT_MAX_CHARS", 20000),
		CommentsPerVideo:   env.Int("COMMENTS_PER_VIDEO", 5),

		RedisURL:             env.Str("REDIS_URL", ""),
		CacheTTLs:            engine.DefaultCacheTTLs(),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 5000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),

		HistoryPath: env.Str("HISTORY_PATH", history.DefaultSQLitePath()),
		DatabaseURL: env.Str("DATABASE_URL", ""),

		Scoring: engine.DefaultScoringConfig(),

		LLMAPIKey:          env.Str("LLM_API_KEY", ""),
		LLMAPIKeyFallbacks: env.List("LLM_API_KEY_FALLBACKS", ""),
		LLMAPIBase:         env.Str("LLM_API_BASE", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           env.Str("LLM_MODEL", "gemini-2.5-flash"),
		LLMTemperature:     env.Float("LLM_TEMPERATURE", 0.5),
		LLMMaxTokens:       env.Int("LLM_MAX_TOKENS", 512),

		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	if tuningPath == "" {
		tuningPath = env.Str("SCORING_CONFIG", "")
	}
	if tuningPath != "" {
		if err := c.LoadTuning(tuningPath); err != nil {
			return c, err
		}
		slog.Info("tuning loaded", slog.String("path", tuningPath))
	}

	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(c.LLMAPIKeyFallbacks),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		)
	}
	return c, nil
}

// app holds the long-lived objects of one process.
type app struct {
	cfg      engine.Config
	cache    *engine.ResponseCache
	l2       *engine.RedisStore
	store    history.Store
	recorder *history.Recorder
	service  *pipeline.Service
}

// appOptions toggles the optional pieces.
type appOptions struct {
	history bool
}

func newApp(ctx context.Context, cfg engine.Config, o appOptions) *app {
	a := &app{cfg: cfg}

	var l2 engine.CacheStore
	if cfg.RedisURL != "" {
		rs, err := engine.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis init failed, running memory-only cache", slog.Any("error", err))
		} else {
			a.l2 = rs
			l2 = rs
		}
	}
	a.cache = engine.NewResponseCache(l2, time.Duration(cfg.CacheTTLs.Videos), cfg.CacheMaxEntries, cfg.CacheCleanupInterval)

	quotas := engine.NewQuotaRegistry(cfg.QuotaBudget, cfg.QuotaCosts, cfg.ResetLocation())
	quotas.SetCallerLimit(cfg.MaxCallerKeys)
	provider := youtube.NewProvider(cfg, a.cache, quotas)
	transcripts := youtube.NewTranscriptFetcher(youtube.TranscriptOptions{
		WatchBaseURL: cfg.YouTubeWatchBase,
		HTTPClient:   cfg.HTTPClient,
		Cache:        a.cache,
		TTL:          time.Duration(cfg.CacheTTLs.Transcript),
		MaxChars:     cfg.TranscriptMaxChars,
		Langs:        cfg.TranscriptLangs,
	})

	opts := []pipeline.Option{pipeline.WithLLM(cfg.LLMClient)}
	if o.history {
		if store := openHistory(ctx, cfg); store != nil {
			a.store = store
			a.recorder = history.NewRecorder(store, 0)
			opts = append(opts, pipeline.WithRecorder(a.recorder))
		}
	}
	a.service = pipeline.New(cfg, provider, transcripts, opts...)

	if !provider.HasDefault() {
		slog.Warn("YOUTUBE_API_KEY not set, searches need a caller api_key")
	}
	return a
}

// openHistory prefers Postgres when DATABASE_URL is set and falls back to
// the local SQLite file. It returns nil when neither can be opened.
func openHistory(ctx context.Context, cfg engine.Config) history.Store {
	if cfg.DatabaseURL != "" {
		pg, err := history.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err == nil {
			return pg
		}
		slog.Warn("history postgres init failed, using sqlite", slog.Any("error", err))
	}
	lite, err := history.OpenSQLite(cfg.HistoryPath)
	if err != nil {
		slog.Warn("history disabled", slog.Any("error", err))
		return nil
	}
	slog.Info("history sqlite opened", slog.String("path", cfg.HistoryPath))
	return lite
}

func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("history close failed", slog.Any("error", err))
		}
	}
	a.cache.Close()
	if a.l2 != nil {
		_ = a.l2.Close()
	}
}
