package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/youtube/youtubetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = engine.RetryConfig{
	MaxAttempts: 3,
	InitialWait: time.Millisecond,
	MaxWait:     5 * time.Millisecond,
	Multiplier:  2,
}

func newTestClient(t *testing.T, srv *youtubetest.Server, key string, workers int) *Client {
	t.Helper()
	cache := engine.NewResponseCache(nil, time.Minute, 0, time.Minute)
	t.Cleanup(cache.Close)
	return NewClient(Options{
		APIKey:     key,
		BaseURL:    srv.URL,
		Ledger:     engine.NewQuotaLedger(10000, nil, time.UTC),
		Cache:      cache,
		Retry:      fastRetry,
		MaxWorkers: workers,
	})
}

func seedVideos(srv *youtubetest.Server, n int, title string) []string {
	ids := make([]string, n)
	for i := range n {
		id := fmt.Sprintf("vid%05d", i)
		ids[i] = id
		srv.AddVideo(youtubetest.Video{
			ID:          id,
			ChannelID:   fmt.Sprintf("ch%d", i%3),
			Title:       fmt.Sprintf("%s %d", title, i),
			PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Duration:    "PT10M",
			Views:       int64(1000 + i),
			Likes:       youtubetest.Int64(10),
		})
	}
	return ids
}

func TestVideoDetails_BatchesAndKeepsOrder(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 120, "sourdough")

	reversed := make([]string, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}

	c := newTestClient(t, srv, "k1", 4)
	recs, err := c.VideoDetails(context.Background(), reversed)
	require.NoError(t, err)
	require.Len(t, recs, 120)
	for i, r := range recs {
		assert.Equal(t, reversed[i], r.VideoID)
	}
	assert.Equal(t, 600, recs[0].DurationSeconds)
	assert.Equal(t, 3, srv.Calls("videos"))
	assert.Equal(t, 3, c.Ledger().Snapshot().Used)
}

func TestVideoDetails_CacheHitChargesNothing(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 5, "bread")

	c := newTestClient(t, srv, "k1", 2)
	_, err := c.VideoDetails(context.Background(), ids)
	require.NoError(t, err)

	// Same ids in another order hit the same cache entry.
	shuffled := []string{ids[3], ids[0], ids[4], ids[1], ids[2]}
	recs, err := c.VideoDetails(context.Background(), shuffled)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
	assert.Equal(t, 1, srv.Calls("videos"))
	assert.Equal(t, 1, c.Ledger().Snapshot().Used)
}

func TestVideoDetails_SingleFlight(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 3, "bread")
	srv.Delay("videos", 50*time.Millisecond)

	c := newTestClient(t, srv, "k1", 2)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := c.VideoDetails(context.Background(), ids)
			assert.NoError(t, err)
			assert.Len(t, recs, 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, srv.Calls("videos"))
	assert.Equal(t, 1, c.Ledger().Snapshot().Used)
}

func TestCall_RetriesServerErrors(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 2, "bread")
	srv.Fail("videos", 0, 2, 503, "backendError")

	c := newTestClient(t, srv, "k1", 1)
	recs, err := c.VideoDetails(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 3, srv.Calls("videos"))
	assert.Equal(t, 1, c.Ledger().Snapshot().Used)
}

func TestCall_RetriesGiveUp(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 2, "bread")
	srv.Fail("videos", 0, -1, 500, "backendError")

	c := newTestClient(t, srv, "k1", 1)
	_, err := c.VideoDetails(context.Background(), ids)
	require.Error(t, err)

	var te *engine.TransientAPIError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3, srv.Calls("videos"))

	s := c.Ledger().Snapshot()
	assert.Equal(t, 0, s.Used)
	assert.Equal(t, 0, s.Reserved)
}

func TestCall_RemoteQuotaExhaustsLedger(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	seedVideos(srv, 2, "bread")
	srv.Fail("search", 0, -1, 403, "quotaExceeded")

	c := newTestClient(t, srv, "k1", 1)
	_, err := c.SearchVideoIDs(context.Background(), engine.SearchQuery{Text: "bread", MaxResults: 10})
	require.Error(t, err)
	assert.True(t, engine.IsQuotaExceeded(err))
	assert.Equal(t, 1, srv.Calls("search"), "quota errors are not retried")
	assert.Equal(t, 0, c.Ledger().Remaining())

	// Further calls are rejected locally.
	_, err = c.VideoDetails(context.Background(), []string{"vid00000"})
	assert.True(t, engine.IsQuotaExceeded(err))
	assert.Equal(t, 0, srv.Calls("videos"))
}

func TestCall_TooManyRequestsIsQuota(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.Fail("videos", 0, -1, 429, "rateLimitExceeded")

	c := newTestClient(t, srv, "k1", 1)
	_, err := c.VideoDetails(context.Background(), []string{"x"})
	assert.True(t, engine.IsQuotaExceeded(err))
	assert.Equal(t, 1, srv.Calls("videos"))
}

func TestCall_InvalidCredential(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.RejectKey("secret-bad-key")

	c := newTestClient(t, srv, "secret-bad-key", 1)
	_, err := c.VideoDetails(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.True(t, engine.IsInvalidCredential(err))
	assert.NotContains(t, err.Error(), "secret-bad-key")
	assert.Equal(t, 1, srv.Calls("videos"))
	assert.Equal(t, 0, c.Ledger().Snapshot().Used)
}

func TestCall_SharedFlightKeepsCredentialFailuresApart(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 3, "bread")
	srv.RejectKey("rejected-key")
	srv.Delay("videos", 50*time.Millisecond)

	cache := engine.NewResponseCache(nil, time.Minute, 0, time.Minute)
	defer cache.Close()
	newClient := func(key string) *Client {
		return NewClient(Options{
			APIKey:  key,
			BaseURL: srv.URL,
			Ledger:  engine.NewQuotaLedger(10000, nil, time.UTC),
			Cache:   cache,
			Retry:   fastRetry,
		})
	}
	bad, good := newClient("rejected-key"), newClient("service-key")

	badErr := make(chan error, 1)
	go func() {
		_, err := bad.VideoDetails(context.Background(), ids)
		badErr <- err
	}()
	time.Sleep(15 * time.Millisecond)

	recs, err := good.VideoDetails(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.True(t, engine.IsInvalidCredential(<-badErr))

	assert.Equal(t, 1, srv.KeyCalls("rejected-key"))
	assert.Equal(t, 1, srv.KeyCalls("service-key"))
	assert.Equal(t, 1, good.Ledger().Snapshot().Used)
	assert.Equal(t, 0, bad.Ledger().Snapshot().Used)
}

func TestVideoDetails_PartialBatchFailure(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 120, "bread")
	// Second batch fails permanently.
	srv.Fail("videos", 1, 1, 400, "badRequest")

	c := newTestClient(t, srv, "k1", 1)
	recs, err := c.VideoDetails(context.Background(), ids)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "videos batch 2")
	assert.Len(t, recs, 70)

	var apiErr *engine.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
}

func TestSearchVideoIDs_Paginates(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	seedVideos(srv, 120, "sourdough")

	c := newTestClient(t, srv, "k1", 1)
	ids, err := c.SearchVideoIDs(context.Background(), engine.SearchQuery{Text: "sourdough", MaxResults: 120})
	require.NoError(t, err)
	assert.Len(t, ids, 120)
	assert.Equal(t, 3, srv.Calls("search"))
	assert.Equal(t, 300, c.Ledger().Snapshot().Used)
}

func TestSearchVideoIDs_LaterPageFails(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	seedVideos(srv, 120, "sourdough")
	srv.Fail("search", 1, -1, 400, "invalidPageToken")

	c := newTestClient(t, srv, "k1", 1)
	ids, err := c.SearchVideoIDs(context.Background(), engine.SearchQuery{Text: "sourdough", MaxResults: 120})
	require.Error(t, err)
	assert.Len(t, ids, 50)
}

func TestSearchParams(t *testing.T) {
	maxDur := 200
	after := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := searchParams(engine.SearchQuery{
		Language:       "es",
		Region:         "mx",
		PublishedAfter: &after,
		MaxDuration:    &maxDur,
	}, "pan casero", 25, "tok")

	assert.Equal(t, "pan casero", p.Get("q"))
	assert.Equal(t, "25", p.Get("maxResults"))
	assert.Equal(t, "es", p.Get("relevanceLanguage"))
	assert.Equal(t, "MX", p.Get("regionCode"))
	assert.Equal(t, "2024-05-01T00:00:00Z", p.Get("publishedAfter"))
	assert.Equal(t, "short", p.Get("videoDuration"))
	assert.Equal(t, "tok", p.Get("pageToken"))
}

func TestChannelDetails(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	created := time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)
	srv.AddChannel(youtubetest.Channel{ID: "ch1", Title: "Bakers", Subscribers: 120000, Views: 5e6, VideoCount: 80, CreatedAt: created})
	srv.AddChannel(youtubetest.Channel{ID: "ch2", Title: "Quiet", Hidden: true, CreatedAt: created})

	c := newTestClient(t, srv, "k1", 2)
	chans, err := c.ChannelDetails(context.Background(), []string{"ch1", "ch2", "ch1", "", "missing"})
	require.NoError(t, err)
	require.Len(t, chans, 2)
	assert.Equal(t, int64(120000), chans["ch1"].SubscriberCount)
	assert.True(t, chans["ch1"].CreatedAt.Equal(created))
	assert.True(t, chans["ch2"].HiddenSubscribers)
	assert.Equal(t, 1, srv.Calls("channels"))
}

func TestTopComments(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.AddVideo(youtubetest.Video{
		ID: "v1",
		TopComments: []string{
			"<b>Great</b> recipe &amp; tips",
			"",
			strings.Repeat("long ", 100),
		},
	})

	c := newTestClient(t, srv, "k1", 1)
	comments, err := c.TopComments(context.Background(), "v1", 5)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Contains(t, comments[0], "Great")
	assert.Contains(t, comments[0], "tips")
	assert.NotContains(t, comments[0], "<b>")
	assert.LessOrEqual(t, len([]rune(comments[1])), 203)
}

func TestProvider_CallerKeyIsolated(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	ids := seedVideos(srv, 3, "bread")

	cache := engine.NewResponseCache(nil, time.Minute, 0, time.Minute)
	defer cache.Close()
	quotas := engine.NewQuotaRegistry(10000, nil, time.UTC)
	p := NewProvider(engine.Config{
		YouTubeAPIKey:  "service-key",
		YouTubeAPIBase: srv.URL,
		Retry:          fastRetry,
	}, cache, quotas)

	caller := p.Client("caller-key")
	assert.Same(t, caller, p.Client("caller-key"))
	assert.NotSame(t, caller, p.Default())

	_, err := caller.VideoDetails(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 1, quotas.Ledger("caller-key").Snapshot().Used)
	assert.Equal(t, 0, quotas.Default().Snapshot().Used)
	assert.Equal(t, 1, srv.KeyCalls("caller-key"))
	assert.Equal(t, 0, srv.KeyCalls("service-key"))
}

func TestProvider_EvictsIdleCallerClients(t *testing.T) {
	quotas := engine.NewQuotaRegistry(10000, nil, time.UTC)
	quotas.SetCallerLimit(2)
	p := NewProvider(engine.Config{YouTubeAPIKey: "service-key", Retry: fastRetry}, nil, quotas)

	def := p.Default()
	first := p.Client("caller-1")
	for i := range 50 {
		p.Client(fmt.Sprintf("caller-%d", i+2))
	}

	assert.LessOrEqual(t, p.Len(), 3)
	assert.LessOrEqual(t, quotas.Len(), 3)
	assert.Same(t, def, p.Default())
	assert.NotSame(t, first, p.Client("caller-1"))
}

func TestProvider_ValidateKey(t *testing.T) {
	srv := youtubetest.NewServer()
	defer srv.Close()
	srv.RejectKey("bad")

	cache := engine.NewResponseCache(nil, time.Minute, 0, time.Minute)
	defer cache.Close()
	p := NewProvider(engine.Config{YouTubeAPIBase: srv.URL, Retry: fastRetry}, cache,
		engine.NewQuotaRegistry(10000, nil, time.UTC))

	require.NoError(t, p.ValidateKey(context.Background(), "good"))
	require.NoError(t, p.ValidateKey(context.Background(), "good"))
	assert.Equal(t, 2, srv.KeyCalls("good"), "validation bypasses the cache")

	err := p.ValidateKey(context.Background(), "bad")
	var ce *engine.InvalidCredentialError
	assert.True(t, errors.As(err, &ce))
}

func TestClassifyError(t *testing.T) {
	body := func(reason string) []byte {
		return fmt.Appendf(nil, `{"error":{"code":400,"message":"m","errors":[{"reason":%q}]}}`, reason)
	}
	tests := []struct {
		name   string
		status int
		body   []byte
		check  func(error) bool
	}{
		{"quota reason", 403, body("quotaExceeded"), engine.IsQuotaExceeded},
		{"daily limit", 403, body("dailyLimitExceeded"), engine.IsQuotaExceeded},
		{"429", 429, nil, engine.IsQuotaExceeded},
		{"401", 401, nil, engine.IsInvalidCredential},
		{"key invalid", 400, body("keyInvalid"), engine.IsInvalidCredential},
		{"5xx", 502, []byte("bad gateway"), engine.IsTransient},
		{"user rate", 403, body("userRateLimitExceeded"), engine.IsTransient},
		{"other", 404, body("videoNotFound"), func(err error) bool {
			var ae *engine.APIError
			return errors.As(err, &ae) && ae.Reason == "videoNotFound" && !engine.IsTransient(err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(engine.OpVideos, tt.status, tt.body)
			assert.True(t, tt.check(err), "got %T: %v", err, err)
		})
	}
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(0, time.Second, 0)
	assert.True(t, l.Allow())

	l = NewLimiter(2, time.Second, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
