// Package scoring computes per-video features (engagement, channel
// credibility, freshness, quality) and query relevance. Every score lies in
// [0,1] and identical inputs give identical outputs.
package scoring

import (
	"math"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

const (
	day            = 24 * time.Hour
	year           = 365 * day
	youngChannel   = 30 * day
	audienceDigits = 7    // log10 of a subscriber count treated as full audience
	ratioTarget    = 0.01 // subscribers per channel view treated as full loyalty
	matureYears    = 5
)

// Features are the query-independent scores of one video.
type Features struct {
	Engagement  float64
	Credibility float64
	Freshness   float64
	Quality     float64
}

// Extractor computes Features with configurable weights.
type Extractor struct {
	cfg engine.ScoringConfig
}

// NewExtractor returns an Extractor using cfg.
func NewExtractor(cfg engine.ScoringConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract scores v. ch may be nil when the channel could not be fetched.
func (e *Extractor) Extract(v engine.VideoRecord, ch *engine.ChannelRecord, q engine.SearchQuery, now time.Time) Features {
	f := Features{
		Engagement:  EngagementRate(v.LikeCount, v.CommentCount, v.ViewCount),
		Credibility: e.Credibility(ch, now),
		Freshness:   e.Freshness(v.PublishedAt, q.PublishedAfter, q.PublishedBefore, now),
	}
	f.Quality = e.Quality(f.Engagement, v.ViewCount, f.Credibility, f.Freshness)
	return f
}

// EngagementRate is (likes + 2×comments) / views capped at 1, and 0 for
// videos without views. Hidden counters count as zero.
func EngagementRate(likes, comments *int64, views int64) float64 {
	if views <= 0 {
		return 0
	}
	var l, c int64
	if likes != nil {
		l = *likes
	}
	if comments != nil {
		c = *comments
	}
	return clip01(float64(l+2*c) / float64(views))
}

// Credibility blends audience size (0.4), subscriber-to-view loyalty (0.3)
// and channel age (0.3). Channels with no visible subscribers or younger
// than 30 days land in [floor, cap] instead of near zero; an unknown channel
// gets the neutral score.
func (e *Extractor) Credibility(ch *engine.ChannelRecord, now time.Time) float64 {
	if ch == nil {
		return clip01(e.cfg.CredibilityNeutral)
	}
	subs := float64(max(ch.SubscriberCount, 0))

	audience := math.Min(math.Log10(1+subs)/audienceDigits, 1)
	var loyalty float64
	if ch.TotalViewCount > 0 {
		loyalty = math.Min(subs/float64(ch.TotalViewCount)/ratioTarget, 1)
	}
	var age float64
	if !ch.CreatedAt.IsZero() && now.After(ch.CreatedAt) {
		age = math.Min(now.Sub(ch.CreatedAt).Hours()/year.Hours()/matureYears, 1)
	}
	score := 0.4*audience + 0.3*loyalty + 0.3*age

	young := !ch.CreatedAt.IsZero() && now.Sub(ch.CreatedAt) < youngChannel
	if ch.SubscriberCount <= 0 || ch.HiddenSubscribers || young {
		score = math.Max(e.cfg.CredibilityFloor, math.Min(score, e.cfg.CredibilityCap))
	}
	return clip01(score)
}

// Freshness is 1 inside the query's date window and halves every
// WindowHalfLifeDays outside it. Without a window it halves every
// FreshnessHalfLifeDays of age, never dropping below FreshnessFloor.
func (e *Extractor) Freshness(published time.Time, after, before *time.Time, now time.Time) float64 {
	if published.IsZero() {
		return clip01(e.cfg.FreshnessFloor)
	}
	if after != nil || before != nil {
		var outside time.Duration
		switch {
		case after != nil && published.Before(*after):
			outside = after.Sub(published)
		case before != nil && published.After(*before):
			outside = published.Sub(*before)
		default:
			return 1
		}
		return clip01(halfLife(outside, e.cfg.WindowHalfLifeDays))
	}
	age := now.Sub(published)
	if age <= 0 {
		return 1
	}
	return clip01(math.Max(halfLife(age, e.cfg.FreshnessHalfLifeDays), e.cfg.FreshnessFloor))
}

func halfLife(d time.Duration, days float64) float64 {
	if days <= 0 {
		return 0
	}
	return math.Pow(0.5, d.Hours()/24/days)
}

// Quality is the weighted mean of saturated engagement, log-scaled views,
// credibility and freshness.
func (e *Extractor) Quality(engagement float64, views int64, credibility, freshness float64) float64 {
	c := e.cfg
	var eng float64
	if c.EngagementSaturation > 0 {
		eng = math.Min(engagement/c.EngagementSaturation, 1)
	}
	var vw float64
	if views > 0 && c.ViewSaturation > 1 {
		vw = math.Min(math.Log10(1+float64(views))/math.Log10(1+c.ViewSaturation), 1)
	}
	return weighted(
		[]float64{eng, vw, credibility, freshness},
		[]float64{c.EngagementWeight, c.ViewsWeight, c.CredibilityWeight, c.FreshnessWeight},
	)
}

// weighted returns Σ wᵢxᵢ / Σ wᵢ over non-negative weights, clipped to [0,1].
func weighted(xs, ws []float64) float64 {
	var sum, total float64
	for i, x := range xs {
		w := math.Max(ws[i], 0)
		sum += w * x
		total += w
	}
	if total == 0 {
		return 0
	}
	return clip01(sum / total)
}

func clip01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
