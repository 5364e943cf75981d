package vidserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/history"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/pipeline"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/youtube"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/youtube/youtubetest"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv      *youtubetest.Server
	quotas   *engine.QuotaRegistry
	recorder *history.Recorder
	session  *mcp.ClientSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := youtubetest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddChannel(youtubetest.Channel{ID: "ch1", Title: "Bakery", Subscribers: 50000, Views: 9e6,
		CreatedAt: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)})
	srv.AddVideo(youtubetest.Video{
		ID: "v1", ChannelID: "ch1", Title: "Sourdough bread for beginners",
		PublishedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Duration: "PT14M",
		Views: 120000, Likes: youtubetest.Int64(4000),
	})

	cfg := engine.Config{
		YouTubeAPIKey:  "service-key",
		YouTubeAPIBase: srv.URL,
		Retry:          engine.RetryConfig{MaxAttempts: 1},
		Scoring:        engine.DefaultScoringConfig(),
	}
	cache := engine.NewResponseCache(nil, time.Minute, 0, time.Minute)
	t.Cleanup(cache.Close)
	quotas := engine.NewQuotaRegistry(10000, nil, time.UTC)
	provider := youtube.NewProvider(cfg, cache, quotas)

	store, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	rec := history.NewRecorder(store, 8)

	svc := pipeline.New(cfg, provider, nil, pipeline.WithRecorder(rec))

	server := mcp.NewServer(&mcp.Implementation{Name: "go_vidsearch", Version: "test"}, nil)
	RegisterTools(server, Deps{Service: svc, Cache: cache})

	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return &fixture{srv: srv, quotas: quotas, recorder: rec, session: cs}
}

func call[T any](t *testing.T, f *fixture, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	var out T
	res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		return out, res
	}
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	return out, res
}

func TestRegisterTools_Lists(t *testing.T) {
	f := newFixture(t)
	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		require.NotNil(t, tool.Annotations)
		assert.True(t, tool.Annotations.ReadOnlyHint, tool.Name)
	}
	assert.ElementsMatch(t, []string{"video_search", "idea_interpret", "quota_status", "search_history"}, names)
	assert.Len(t, names, ToolCount)
}

func TestVideoSearchTool(t *testing.T) {
	f := newFixture(t)
	out, res := call[engine.SearchResponse](t, f, "video_search", map[string]any{"idea": "sourdough bread for beginners"})
	require.False(t, res.IsError)
	require.Len(t, out.Videos, 1)
	assert.Equal(t, "v1", out.Videos[0].VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", out.Videos[0].URL)
	assert.Equal(t, 102, out.QuotaUsed)

	_, res = call[engine.SearchResponse](t, f, "video_search", map[string]any{"idea": "  "})
	assert.True(t, res.IsError)
}

func TestIdeaInterpretTool(t *testing.T) {
	f := newFixture(t)
	out, res := call[engine.InterpretOutput](t, f, "idea_interpret", map[string]any{"idea": "how to bake sourdough bread"})
	require.False(t, res.IsError)
	assert.Equal(t, "learn", out.QueryInfo.Intent)
	assert.Contains(t, out.QueryInfo.DetectedContentTypes, "tutorial")
	assert.NotEmpty(t, out.SearchText)
	assert.Equal(t, 0, f.srv.Calls("search"), "interpretation never calls the API")
}

func TestQuotaStatusTool(t *testing.T) {
	f := newFixture(t)
	call[engine.SearchResponse](t, f, "video_search", map[string]any{"idea": "sourdough bread"})

	out, res := call[engine.QuotaStatusOutput](t, f, "quota_status", map[string]any{})
	require.False(t, res.IsError)
	assert.Equal(t, "default", out.Credential)
	assert.Equal(t, 10000, out.Quota.Budget)
	assert.Equal(t, 102, out.Quota.Used)
	assert.Equal(t, 10000-102, out.Quota.Remaining)
	assert.Equal(t, 100, out.Quota.Costs[engine.OpSearch])
	assert.Greater(t, out.Cache.Entries, 0)

	caller, _ := call[engine.QuotaStatusOutput](t, f, "quota_status", map[string]any{"api_key": "mine"})
	assert.NotEqual(t, "default", caller.Credential)
	assert.NotContains(t, caller.Credential, "mine")
	assert.Equal(t, 0, caller.Quota.Used)
	assert.Equal(t, 10000, caller.Quota.Remaining)
	assert.Equal(t, 1, f.quotas.Len(), "inspecting an unknown key must not register a ledger")
}

func TestSearchHistoryTool(t *testing.T) {
	f := newFixture(t)
	first, _ := call[engine.SearchResponse](t, f, "video_search", map[string]any{"idea": "sourdough bread"})
	f.recorder.Close()

	out, res := call[history.ListResult](t, f, "search_history", map[string]any{"limit": 5})
	require.False(t, res.IsError)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, first.SearchID, out.Searches[0].SearchID)
	assert.Equal(t, []string{"v1"}, out.Searches[0].VideoIDs)
}

func TestSearchHistoryTool_Disabled(t *testing.T) {
	h := &handlers{}
	_, _, err := h.searchHistory(context.Background(), nil, engine.HistoryInput{})
	assert.Error(t, err)
}
