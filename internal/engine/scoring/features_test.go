package scoring

import (
	"testing"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/stretchr/testify/assert"
)

func i64(n int64) *int64 { return &n }

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEngagementRate(t *testing.T) {
	tests := []struct {
		name     string
		likes    *int64
		comments *int64
		views    int64
		want     float64
	}{
		{"no interaction", i64(0), i64(0), 100, 0},
		{"clip boundary", i64(50), i64(25), 100, 1.0},
		{"capped", i64(500), i64(500), 100, 1.0},
		{"typical", i64(40), i64(5), 1000, 0.05},
		{"zero views", i64(10), i64(10), 0, 0},
		{"hidden counters", nil, nil, 1000, 0},
		{"hidden likes", nil, i64(10), 1000, 0.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EngagementRate(tt.likes, tt.comments, tt.views), 1e-12)
		})
	}
}

func TestCredibility(t *testing.T) {
	e := NewExtractor(engine.DefaultScoringConfig())

	established := &engine.ChannelRecord{
		SubscriberCount: 1_000_000,
		TotalViewCount:  100_000_000,
		CreatedAt:       now.AddDate(-10, 0, 0),
	}
	got := e.Credibility(established, now)
	assert.Greater(t, got, 0.8)
	assert.LessOrEqual(t, got, 1.0)

	assert.Equal(t, 0.5, e.Credibility(nil, now), "unknown channel is neutral")

	hidden := &engine.ChannelRecord{HiddenSubscribers: true, TotalViewCount: 1e9, CreatedAt: now.AddDate(-10, 0, 0)}
	got = e.Credibility(hidden, now)
	assert.GreaterOrEqual(t, got, 0.1)
	assert.LessOrEqual(t, got, 0.3)

	empty := &engine.ChannelRecord{}
	assert.Equal(t, 0.1, e.Credibility(empty, now), "missing data gets the floor, not zero")

	young := &engine.ChannelRecord{SubscriberCount: 5_000_000, TotalViewCount: 50_000_000, CreatedAt: now.AddDate(0, 0, -10)}
	assert.Equal(t, 0.3, e.Credibility(young, now), "young channels are capped")
}

func TestFreshness(t *testing.T) {
	e := NewExtractor(engine.DefaultScoringConfig())

	after := now.AddDate(0, -6, 0)
	before := now.AddDate(0, -1, 0)
	inside := now.AddDate(0, -3, 0)
	assert.Equal(t, 1.0, e.Freshness(inside, &after, &before, now))

	outside := after.Add(-180 * day)
	assert.InDelta(t, 0.5, e.Freshness(outside, &after, nil, now), 1e-9)

	late := before.Add(360 * day)
	assert.InDelta(t, 0.25, e.Freshness(late, nil, &before, now), 1e-9)

	assert.InDelta(t, 0.5, e.Freshness(now.Add(-365*day), nil, nil, now), 1e-9)
	assert.Equal(t, 0.3, e.Freshness(now.AddDate(-20, 0, 0), nil, nil, now), "floor")
	assert.Equal(t, 1.0, e.Freshness(now.Add(time.Hour), nil, nil, now))
	assert.Equal(t, 0.3, e.Freshness(time.Time{}, nil, nil, now))
}

func TestQuality(t *testing.T) {
	e := NewExtractor(engine.DefaultScoringConfig())

	assert.InDelta(t, 1.0, e.Quality(0.05, 10_000_000, 1, 1), 1e-9)
	assert.InDelta(t, 0.0, e.Quality(0, 0, 0, 0), 1e-9)

	low := e.Quality(0.01, 1_000, 0.3, 0.5)
	high := e.Quality(0.04, 2_000_000, 0.8, 0.9)
	assert.Less(t, low, high)

	// Mega-viral views cannot push quality past the weight of views.
	viral := e.Quality(0, 5_000_000_000, 0, 0)
	assert.InDelta(t, 0.25, viral, 1e-9)

	zero := NewExtractor(engine.ScoringConfig{})
	assert.Equal(t, 0.0, zero.Quality(1, 1000, 1, 1))
}

func TestExtract_Bounds(t *testing.T) {
	e := NewExtractor(engine.DefaultScoringConfig())
	videos := []engine.VideoRecord{
		{ViewCount: 0},
		{ViewCount: 1, LikeCount: i64(1_000_000), CommentCount: i64(1_000_000), PublishedAt: now},
		{ViewCount: 9_000_000_000, PublishedAt: now.AddDate(-30, 0, 0)},
	}
	channels := []*engine.ChannelRecord{
		nil,
		{SubscriberCount: 1 << 40, TotalViewCount: 1, CreatedAt: now.AddDate(-50, 0, 0)},
		{SubscriberCount: -5, TotalViewCount: -1, CreatedAt: now.AddDate(1, 0, 0)},
	}
	for _, v := range videos {
		for _, ch := range channels {
			f := e.Extract(v, ch, engine.SearchQuery{}, now)
			for _, x := range []float64{f.Engagement, f.Credibility, f.Freshness, f.Quality} {
				assert.GreaterOrEqual(t, x, 0.0)
				assert.LessOrEqual(t, x, 1.0)
			}
		}
	}
}
