package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/html"
)

const (
	watchBase       = "https://www.youtube.com"
	playerMarker    = "ytInitialPlayerResponse = "
	defaultMaxChars = 4000
	maxPageBytes    = 4 << 20
)

// TranscriptOptions configures a TranscriptFetcher.
type TranscriptOptions struct {
	WatchBaseURL string
	HTTPClient   *http.Client
	Cache        *engine.ResponseCache
	TTL          time.Duration
	MaxChars     int
	Langs        []string // preferred caption languages, most wanted first
}

// TranscriptFetcher lists caption tracks through the Data API (quota-charged)
// and downloads the chosen track's timed text from the watch page.
type TranscriptFetcher struct {
	watchBase string
	http      *http.Client
	cache     *engine.ResponseCache
	ttl       time.Duration
	maxChars  int
	langs     []string
}

// NewTranscriptFetcher builds a fetcher with defaults for unset options.
func NewTranscriptFetcher(o TranscriptOptions) *TranscriptFetcher {
	f := &TranscriptFetcher{
		watchBase: strings.TrimRight(o.WatchBaseURL, "/"),
		http:      o.HTTPClient,
		cache:     o.Cache,
		ttl:       o.TTL,
		maxChars:  o.MaxChars,
		langs:     o.Langs,
	}
	if f.watchBase == "" {
		f.watchBase = watchBase
	}
	if f.http == nil {
		f.http = &http.Client{Timeout: 20 * time.Second}
	}
	if f.ttl <= 0 {
		f.ttl = 7 * 24 * time.Hour
	}
	if f.maxChars <= 0 {
		f.maxChars = defaultMaxChars
	}
	if len(f.langs) == 0 {
		f.langs = []string{"en"}
	}
	return f
}

// Fetch returns the cleaned transcript of videoID. Every failure wraps
// engine.ErrTranscriptUnavailable so callers can treat it as soft.
func (f *TranscriptFetcher) Fetch(ctx context.Context, c *Client, videoID string) (string, error) {
	engine.IncrTranscriptRequests()
	text, err := f.fetch(ctx, c, videoID)
	if err != nil {
		engine.IncrTranscriptFailures()
		slog.Debug("youtube: transcript failed", slog.String("id", videoID), slog.Any("error", err))
		if errors.Is(err, engine.ErrTranscriptUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", engine.ErrTranscriptUnavailable, videoID, err)
	}
	return text, nil
}

func (f *TranscriptFetcher) fetch(ctx context.Context, c *Client, videoID string) (string, error) {
	tracks, err := c.CaptionTracks(ctx, videoID)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("%w: %s has no caption tracks", engine.ErrTranscriptUnavailable, videoID)
	}
	track := pickTrack(tracks, f.langs)

	load := func(ctx context.Context) ([]byte, error) {
		text, err := f.download(ctx, videoID, track)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}

	var data []byte
	if f.cache != nil {
		data, _, err = f.cache.Do(ctx, engine.CacheKey("transcript", videoID, track.Language, track.Kind), f.ttl, load)
	} else {
		data, err = load(ctx)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// download scrapes the watch page's player response for caption URLs and
// fetches the timed text of the track matching want.
func (f *TranscriptFetcher) download(ctx context.Context, videoID string, want CaptionTrack) (string, error) {
	page, err := f.get(ctx, f.watchBase+"/watch?v="+url.QueryEscape(videoID)+"&hl=en")
	if err != nil {
		return "", fmt.Errorf("watch page: %w", err)
	}
	pr, err := parsePlayerResponse(page)
	if err != nil {
		return "", err
	}
	if pr.Captions == nil {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			return "", fmt.Errorf("%w: %s", engine.ErrTranscriptUnavailable, pr.PlayabilityStatus.Reason)
		}
		return "", fmt.Errorf("%w: no captions in player response", engine.ErrTranscriptUnavailable)
	}

	langs := append([]string{want.Language}, f.langs...)
	ct, ok := pickScrapedTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, want, langs)
	if !ok {
		return "", fmt.Errorf("%w: no downloadable caption track", engine.ErrTranscriptUnavailable)
	}

	body, err := f.get(ctx, ct.BaseURL)
	if err != nil {
		return "", fmt.Errorf("timedtext: %w", err)
	}
	text, err := parseTimedText(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty timed text", engine.ErrTranscriptUnavailable)
	}
	return engine.TruncateAtWord(text, f.maxChars), nil
}

// get performs a browser-like GET with exponential backoff on network errors
// and 5xx/429 responses.
func (f *TranscriptFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", stealth.RandomUserAgent())
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := f.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		if engine.IsRetryableStatus(resp.StatusCode) || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(20*time.Second))
}

// parsePlayerResponse finds ytInitialPlayerResponse among the page's scripts.
func parsePlayerResponse(page []byte) (*playerResponse, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse watch page: %w", err)
	}
	var pr *playerResponse
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.Text()
		idx := strings.Index(src, playerMarker)
		if idx < 0 {
			return true
		}
		raw := extractJSON([]byte(src[idx+len(playerMarker):]))
		if raw == nil {
			return true
		}
		var p playerResponse
		if err := json.Unmarshal(raw, &p); err != nil {
			return true
		}
		pr = &p
		return false
	})
	if pr == nil {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	return pr, nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

var cueRe = regexp.MustCompile(`\[(?:[A-Za-z ]+)\]`)

// parseTimedText flattens timedtext XML into one line of plain text,
// dropping sound cues like [Music].
func parseTimedText(body []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}
	parts := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := html.UnescapeString(line.Text)
		text = cueRe.ReplaceAllString(text, " ")
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func langMatch(code, want string) bool {
	code, want = strings.ToLower(code), strings.ToLower(want)
	return code == want || strings.HasPrefix(code, want+"-")
}

// pickTrack chooses among API-listed tracks: a manual track in a preferred
// language, then an auto-generated one, then any English track, then the first.
func pickTrack(tracks []CaptionTrack, langs []string) CaptionTrack {
	for _, lang := range langs {
		for _, t := range tracks {
			if langMatch(t.Language, lang) && t.Kind != "asr" {
				return t
			}
		}
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if langMatch(t.Language, lang) {
				return t
			}
		}
	}
	for _, t := range tracks {
		if langMatch(t.Language, "en") {
			return t
		}
	}
	return tracks[0]
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickScrapedTrack maps the chosen API track onto a downloadable watch-page
// track, falling back through the preferred languages.
func pickScrapedTrack(tracks []captionTrack, want CaptionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	wantASR := want.Kind == "asr"
	for _, t := range usable {
		if langMatch(t.LanguageCode, want.Language) && (t.Kind == "asr") == wantASR {
			return t, true
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if langMatch(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	return usable[0], true
}
