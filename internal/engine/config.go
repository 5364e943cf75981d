package engine

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all engine configuration, built in main and handed to constructors.
type Config struct {
	YouTubeAPIKey    string
	YouTubeAPIBase   string
	YouTubeWatchBase string

	QuotaBudget    int
	QuotaCosts     map[Operation]int
	QuotaResetZone string
	MaxCallerKeys  int // caller credentials tracked at once

	RateLimit  int           // API requests allowed per RateWindow
	RateWindow time.Duration // token bucket refill window
	RateBurst  int

	MaxWorkers    int
	SearchTimeout time.Duration
	Retry         RetryConfig

	TranscriptLangs    []string
	TranscriptMaxChars int
	CommentsPerVideo   int

	RedisURL             string
	CacheTTLs            CacheTTLs
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	HistoryPath string // SQLite file; ignored when DatabaseURL is set
	DatabaseURL string // PostgreSQL DSN

	Scoring ScoringConfig

	LLMAPIKey          string
	LLMAPIKeyFallbacks []string
	LLMAPIBase         string
	LLMModel           string
	LLMTemperature     float64
	LLMMaxTokens       int

	HTTPClient *http.Client
	LLMClient  *llm.Client // nil = LLM suggestions disabled
}

// CacheTTLs sets how long each category of API response stays cached.
// Volatile counters expire quickly, near-static metadata lingers.
type CacheTTLs struct {
	Search     Duration `toml:"search"`
	Videos     Duration `toml:"videos"`
	Channels   Duration `toml:"channels"`
	Comments   Duration `toml:"comments"`
	Captions   Duration `toml:"captions"`
	Transcript Duration `toml:"transcript"`
}

// DefaultCacheTTLs returns conservative defaults.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Search:     Duration(30 * time.Minute),
		Videos:     Duration(15 * time.Minute),
		Channels:   Duration(24 * time.Hour),
		Comments:   Duration(30 * time.Minute),
		Captions:   Duration(24 * time.Hour),
		Transcript: Duration(7 * 24 * time.Hour),
	}
}

// For returns the TTL of op.
func (t CacheTTLs) For(op Operation) time.Duration {
	switch op {
	case OpSearch:
		return time.Duration(t.Search)
	case OpVideos:
		return time.Duration(t.Videos)
	case OpChannels:
		return time.Duration(t.Channels)
	case OpComments:
		return time.Duration(t.Comments)
	case OpCaptions:
		return time.Duration(t.Captions)
	}
	return time.Duration(t.Videos)
}

// ScoringConfig holds every weight and saturation point used by the
// feature extractor and relevance scorer.
type ScoringConfig struct {
	// relevance = semantic*wSem + keyword*wKw + quality*wQual, weights normalized
	SemanticWeight float64 `toml:"semantic_weight"`
	KeywordWeight  float64 `toml:"keyword_weight"`
	QualityWeight  float64 `toml:"quality_weight"`

	// quality blend
	EngagementWeight  float64 `toml:"engagement_weight"`
	ViewsWeight       float64 `toml:"views_weight"`
	CredibilityWeight float64 `toml:"credibility_weight"`
	FreshnessWeight   float64 `toml:"freshness_weight"`

	EngagementSaturation float64 `toml:"engagement_saturation"` // rate treated as perfect
	ViewSaturation       float64 `toml:"view_saturation"`       // views treated as perfect

	CredibilityFloor   float64 `toml:"credibility_floor"`
	CredibilityCap     float64 `toml:"credibility_cap"` // ceiling for new or empty channels
	CredibilityNeutral float64 `toml:"credibility_neutral"`

	FreshnessHalfLifeDays float64 `toml:"freshness_half_life_days"`
	WindowHalfLifeDays    float64 `toml:"window_half_life_days"`
	FreshnessFloor        float64 `toml:"freshness_floor"`

	TitleWeight       float64 `toml:"title_weight"`
	TagsWeight        float64 `toml:"tags_weight"`
	DescriptionWeight float64 `toml:"description_weight"`
	TranscriptWeight  float64 `toml:"transcript_weight"`
}

// DefaultScoringConfig returns the default weights.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SemanticWeight: 0.45,
		KeywordWeight:  0.35,
		QualityWeight:  0.20,

		EngagementWeight:  0.35,
		ViewsWeight:       0.25,
		CredibilityWeight: 0.25,
		FreshnessWeight:   0.15,

		EngagementSaturation: 0.05,
		ViewSaturation:       10_000_000,

		CredibilityFloor:   0.1,
		CredibilityCap:     0.3,
		CredibilityNeutral: 0.5,

		FreshnessHalfLifeDays: 365,
		WindowHalfLifeDays:    180,
		FreshnessFloor:        0.3,

		TitleWeight:       1.0,
		TagsWeight:        0.8,
		DescriptionWeight: 0.6,
		TranscriptWeight:  0.4,
	}
}

// Duration is a time.Duration that reads from TOML strings like "15m".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// tuningFile is the on-disk overlay for scoring weights and cache TTLs.
type tuningFile struct {
	Scoring   *ScoringConfig `toml:"scoring"`
	CacheTTLs *CacheTTLs     `toml:"cache_ttl"`
}

// LoadTuning overlays scoring weights and cache TTLs from a TOML file.
// Keys absent from the file keep their current value.
func (c *Config) LoadTuning(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tuning file: %w", err)
	}
	defer f.Close()

	tf := tuningFile{Scoring: &c.Scoring, CacheTTLs: &c.CacheTTLs}
	if err := toml.NewDecoder(f).Decode(&tf); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	return nil
}

// ResetLocation resolves QuotaResetZone, falling back to UTC.
func (c *Config) ResetLocation() *time.Location {
	if c.QuotaResetZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.QuotaResetZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
