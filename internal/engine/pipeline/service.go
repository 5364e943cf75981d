// Package pipeline runs a video search end to end: interpret the idea, query
// the API, score, rank, optionally enrich the top results, and record the
// search.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/history"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/idea"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/ranking"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/scoring"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/youtube"
)

const (
	DefaultMaxResults = 50
	MaxResultsLimit   = 200
	defaultWorkers    = 10
	defaultComments   = 5
)

// ErrNoCredential is returned when neither the caller nor the service
// supplies an API key.
var ErrNoCredential = errors.New("no YouTube API key configured")

// Suggester produces extra search suggestions for an idea.
type Suggester interface {
	Suggest(ctx context.Context, idea string, keywords []string, n int) ([]string, error)
}

// Service is safe for concurrent use. The only state shared between
// searches lives in the provider's cache and ledgers.
type Service struct {
	cfg         engine.Config
	provider    *youtube.Provider
	transcripts *youtube.TranscriptFetcher
	interpreter *idea.Interpreter
	extractor   *scoring.Extractor
	scorer      *scoring.Scorer
	recorder    *history.Recorder
	suggester   Suggester
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder records every completed search.
func WithRecorder(r *history.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithSuggester adds a suggestion source tried before the lexical one.
func WithSuggester(sg Suggester) Option {
	return func(s *Service) { s.suggester = sg }
}

// WithLLM uses client for suggestions; a nil client is ignored.
func WithLLM(client *llm.Client) Option {
	return func(s *Service) {
		if sg := engine.NewLLMSuggester(client); sg != nil {
			s.suggester = sg
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service. transcripts may be nil, in which case transcript
// requests are annotated as unavailable.
func New(cfg engine.Config, provider *youtube.Provider, transcripts *youtube.TranscriptFetcher, opts ...Option) *Service {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultWorkers
	}
	if cfg.CommentsPerVideo <= 0 {
		cfg.CommentsPerVideo = defaultComments
	}
	s := &Service{
		cfg:         cfg,
		provider:    provider,
		transcripts: transcripts,
		interpreter: idea.New(),
		extractor:   scoring.NewExtractor(cfg.Scoring),
		scorer:      scoring.NewScorer(cfg.Scoring),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interpreter returns the idea interpreter used by the service.
func (s *Service) Interpreter() *idea.Interpreter { return s.interpreter }

// Provider returns the API client provider.
func (s *Service) Provider() *youtube.Provider { return s.provider }

// Recorder returns the history recorder, or nil.
func (s *Service) Recorder() *history.Recorder { return s.recorder }

// Run executes one search. Partial API failures and cancellation after at
// least one candidate resolved yield a degraded response, not an error.
func (s *Service) Run(ctx context.Context, req engine.SearchRequest) (engine.SearchResponse, error) {
	var resp engine.SearchResponse
	err := engine.TrackOperation(ctx, "video_search", func(ctx context.Context) error {
		var err error
		resp, err = s.run(ctx, req)
		return err
	})
	return resp, err
}

// search is the per-request state.
type search struct {
	req      engine.SearchRequest
	idea     engine.Idea
	query    engine.SearchQuery
	client   *youtube.Client
	fellBack bool
	degraded bool
	warnings []string
}

func (st *search) warn(degrade bool, format string, args ...any) {
	st.warnings = append(st.warnings, fmt.Sprintf(format, args...))
	if degrade {
		st.degraded = true
	}
}

func (s *Service) run(ctx context.Context, req engine.SearchRequest) (engine.SearchResponse, error) {
	engine.IncrSearchRequests()
	start := s.now()

	interpreted, err := s.interpreter.Interpret(req.Idea)
	if err != nil {
		return engine.SearchResponse{}, err
	}
	if req.APIKey == "" && !s.provider.HasDefault() {
		return engine.SearchResponse{}, ErrNoCredential
	}

	filters, unknown := filtersOf(req)
	st := &search{
		req:    req,
		idea:   interpreted,
		query:  s.interpreter.BuildQuery(interpreted, filters, clampResults(req.MaxResults), start),
		client: s.provider.Client(req.APIKey),
	}
	for _, raw := range unknown {
		st.warn(false, "unknown content type ignored: %q", raw)
	}

	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}
	ctx, meter := engine.WithQuotaMeter(ctx)

	results, total, err := s.collect(ctx, st, start)
	if err != nil {
		return engine.SearchResponse{}, err
	}

	resp := engine.SearchResponse{
		SearchID:       uuid.NewString(),
		QueryInfo:      engine.NewQueryInfo(st.idea),
		TotalResults:   total,
		Videos:         make([]engine.VideoResult, 0, len(results)),
		QuotaUsed:      meter.Units(),
		QuotaRemaining: st.client.Ledger().Remaining(),
		Suggestions:    s.suggestions(ctx, st.idea),
		Degraded:       st.degraded,
		Warnings:       st.warnings,
	}
	for _, r := range results {
		resp.Videos = append(resp.Videos, engine.NewVideoResult(r))
	}
	resp.SearchTimeMS = s.now().Sub(start).Milliseconds()

	if resp.Degraded {
		engine.IncrDegradedSearches()
	}
	slog.Info("video search done",
		slog.String("search_id", resp.SearchID),
		slog.String("idea", st.idea.Text),
		slog.Int("results", len(resp.Videos)),
		slog.Int("total", resp.TotalResults),
		slog.Int("quota_used", resp.QuotaUsed),
		slog.Bool("degraded", resp.Degraded),
		slog.Int64("ms", resp.SearchTimeMS))
	s.record(resp, st)
	return resp, nil
}

// collect runs search → details → scoring → ranking → enrichment and returns
// the final ranked slice plus the pre-truncation total.
func (s *Service) collect(ctx context.Context, st *search, now time.Time) ([]engine.ScoredResult, int, error) {
	ids, err := s.searchIDs(ctx, st)
	if err != nil {
		if len(ids) == 0 {
			return nil, 0, err
		}
		st.warn(true, "search incomplete: %v", err)
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	videos, err := st.client.VideoDetails(ctx, ids)
	if s.fallback(st, err) {
		videos, err = st.client.VideoDetails(ctx, ids)
	}
	if err != nil {
		if len(videos) == 0 {
			return nil, 0, fmt.Errorf("video details: %w", err)
		}
		st.warn(true, "video details incomplete: %v", err)
	}

	channels := map[string]engine.ChannelRecord{}
	if ctx.Err() == nil {
		channels, err = st.client.ChannelDetails(ctx, channelIDs(videos))
		if s.fallback(st, err) {
			channels, err = st.client.ChannelDetails(ctx, channelIDs(videos))
		}
		if err != nil {
			st.warn(true, "channel details incomplete: %v", err)
		}
	}

	results := make([]engine.ScoredResult, 0, len(videos))
	for _, v := range videos {
		var chp *engine.ChannelRecord
		if ch, ok := channels[v.ChannelID]; ok {
			chp = &ch
		}
		f := s.extractor.Extract(v, chp, st.query, now)
		results = append(results, engine.ScoredResult{
			Video:            v,
			QualityScore:     f.Quality,
			EngagementRate:   f.Engagement,
			CredibilityScore: f.Credibility,
		})
	}
	idf := s.scorer.Score(st.idea.Keywords, results)
	out := ranking.Rank(results, st.query, s.interpreter)

	if len(out.Results) > 0 && (st.req.IncludeTranscripts || st.req.IncludeComments) && ctx.Err() == nil {
		s.enrich(ctx, st, out.Results)
		if st.req.IncludeTranscripts {
			s.scorer.Rescore(st.idea.Keywords, out.Results, idf)
			out.Results = ranking.Rank(out.Results, st.query, s.interpreter).Results
		}
	}

	if err := ctx.Err(); err != nil && !st.degraded {
		st.warn(true, "search interrupted: %v", err)
	}
	return out.Results, out.Total, nil
}

// searchIDs runs the search call, falling back to the service credential
// when a caller-supplied key is rejected.
func (s *Service) searchIDs(ctx context.Context, st *search) ([]string, error) {
	ids, err := st.client.SearchVideoIDs(ctx, st.query)
	if s.fallback(st, err) {
		return st.client.SearchVideoIDs(ctx, st.query)
	}
	return ids, err
}

// fallback switches st to the service credential when err says the
// caller-supplied key was rejected. It reports whether the caller should
// repeat the failed call. Cached responses can let a bad key get past the
// search step, so every client call goes through here.
func (s *Service) fallback(st *search, err error) bool {
	if err == nil || st.fellBack || st.req.APIKey == "" || !engine.IsInvalidCredential(err) || !s.provider.HasDefault() {
		return false
	}
	engine.IncrCredentialFallbacks()
	slog.Warn("caller API key rejected, using service key", slog.Any("error", err))
	st.warn(false, "supplied API key rejected; used the service key")
	st.client = s.provider.Default()
	st.fellBack = true
	return true
}

// enrich attaches transcripts and comments to results in place. Failures are
// per video and never fail the search.
func (s *Service) enrich(ctx context.Context, st *search, results []engine.ScoredResult) {
	notes, rejected := s.enrichPass(ctx, st, results)
	if s.fallback(st, rejected) {
		notes, _ = s.enrichPass(ctx, st, results)
	}
	for _, ns := range notes {
		for _, n := range ns {
			st.warn(false, "%s", n)
		}
	}
}

// enrichPass fetches whatever results still lack and returns per-result
// notes plus the first credential rejection seen, if any.
func (s *Service) enrichPass(ctx context.Context, st *search, results []engine.ScoredResult) ([][]string, error) {
	notes := make([][]string, len(results))
	transcriptErrs := make([]error, len(results))
	commentErrs := make([]error, len(results))
	client := st.client

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxWorkers)
	for i := range results {
		id := results[i].Video.VideoID
		if st.req.IncludeTranscripts && results[i].Transcript == nil {
			g.Go(func() error {
				if s.transcripts == nil {
					notes[i] = append(notes[i], "transcript unavailable: "+id)
					return nil
				}
				text, err := s.transcripts.Fetch(ctx, client, id)
				if err != nil || text == "" {
					transcriptErrs[i] = err
					notes[i] = append(notes[i], "transcript unavailable: "+id)
					return nil
				}
				results[i].Transcript = &text
				return nil
			})
		}
		if st.req.IncludeComments && results[i].TopComments == nil {
			g.Go(func() error {
				comments, err := client.TopComments(ctx, id, s.cfg.CommentsPerVideo)
				if err != nil {
					commentErrs[i] = err
					slog.Debug("comments failed", slog.String("id", id), slog.Any("error", err))
					return nil
				}
				results[i].TopComments = comments
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, err := range append(transcriptErrs, commentErrs...) {
		if engine.IsInvalidCredential(err) {
			return notes, err
		}
	}
	return notes, nil
}

func (s *Service) suggestions(ctx context.Context, in engine.Idea) []string {
	var out []string
	seen := map[string]bool{strings.ToLower(in.Text): true}
	add := func(qs []string) {
		for _, q := range qs {
			k := strings.ToLower(strings.TrimSpace(q))
			if k == "" || seen[k] || len(out) >= idea.MaxSuggestions {
				continue
			}
			seen[k] = true
			out = append(out, strings.TrimSpace(q))
		}
	}

	if s.suggester != nil && ctx.Err() == nil {
		qs, err := s.suggester.Suggest(ctx, in.Text, in.Keywords, idea.MaxSuggestions)
		if err != nil {
			slog.Debug("llm suggestions failed", slog.Any("error", err))
		}
		add(qs)
	}
	add(idea.Suggest(in))
	if out == nil {
		out = []string{}
	}
	return out
}

func (s *Service) record(resp engine.SearchResponse, st *search) {
	if s.recorder == nil {
		return
	}
	ids := make([]string, len(resp.Videos))
	for i, v := range resp.Videos {
		ids[i] = v.VideoID
	}
	s.recorder.Record(history.Entry{
		SearchID:     resp.SearchID,
		Idea:         st.idea.Text,
		Keywords:     st.idea.Keywords,
		ContentTypes: resp.QueryInfo.DetectedContentTypes,
		Intent:       string(st.idea.Intent),
		TotalResults: resp.TotalResults,
		VideoIDs:     ids,
		QuotaUsed:    resp.QuotaUsed,
		Degraded:     resp.Degraded,
		DurationMS:   resp.SearchTimeMS,
		CreatedAt:    s.now().UTC(),
	})
}

func clampResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return min(n, MaxResultsLimit)
}

// filtersOf turns the request's filters into engine form. Content types that
// name no known type are returned separately instead of widening to other.
func filtersOf(req engine.SearchRequest) (engine.Filters, []string) {
	f := engine.Filters{
		Language:        req.Language,
		Region:          req.Region,
		PublishedAfter:  req.PublishedAfter,
		PublishedBefore: req.PublishedBefore,
		MinDuration:     req.MinDuration,
		MaxDuration:     req.MaxDuration,
	}
	var unknown []string
	seen := make(map[engine.ContentType]bool)
	for _, raw := range req.ContentTypes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ct, ok := engine.LookupContentType(raw)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(raw))
			continue
		}
		if !seen[ct] {
			seen[ct] = true
			f.ContentTypes = append(f.ContentTypes, ct)
		}
	}
	return f, unknown
}

func channelIDs(videos []engine.VideoRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range videos {
		if v.ChannelID != "" && !seen[v.ChannelID] {
			seen[v.ChannelID] = true
			out = append(out, v.ChannelID)
		}
	}
	return out
}
