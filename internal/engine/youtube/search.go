package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"golang.org/x/sync/errgroup"
)

const (
	searchPageSize   = 50
	maxSearchResults = 200
	commentMaxRunes  = 200
)

// SearchVideoIDs runs search.list for q, following pages until MaxResults ids
// are collected. When a later page fails the ids gathered so far are returned
// together with the error.
func (c *Client) SearchVideoIDs(ctx context.Context, q engine.SearchQuery) ([]string, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = searchPageSize
	}
	limit = min(limit, maxSearchResults)

	text := q.Text
	if text == "" {
		text = strings.Join(q.Terms, " ")
	}

	seen := make(map[string]bool, limit)
	ids := make([]string, 0, limit)
	pageToken := ""
	for len(ids) < limit {
		params := searchParams(q, text, min(searchPageSize, limit-len(ids)), pageToken)

		var resp searchListResponse
		if err := c.call(ctx, engine.OpSearch, "search", params, &resp); err != nil {
			if len(ids) > 0 {
				return ids, fmt.Errorf("search page %d: %w", len(ids)/searchPageSize+1, err)
			}
			return nil, fmt.Errorf("search: %w", err)
		}

		for _, it := range resp.Items {
			id := it.ID.VideoID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	slog.Debug("youtube: search done", slog.String("q", text), slog.Int("ids", len(ids)))
	return ids, nil
}

func searchParams(q engine.SearchQuery, text string, pageSize int, pageToken string) url.Values {
	p := url.Values{}
	p.Set("part", "id")
	p.Set("type", "video")
	p.Set("q", text)
	p.Set("order", "relevance")
	p.Set("safeSearch", "moderate")
	p.Set("maxResults", strconv.Itoa(pageSize))
	if q.Language != "" && q.Language != "all" {
		p.Set("relevanceLanguage", q.Language)
	}
	if q.Region != "" {
		p.Set("regionCode", strings.ToUpper(q.Region))
	}
	if q.PublishedAfter != nil {
		p.Set("publishedAfter", q.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if q.PublishedBefore != nil {
		p.Set("publishedBefore", q.PublishedBefore.UTC().Format(time.RFC3339))
	}
	// The API's buckets: short < 4 min, medium 4-20 min, long > 20 min.
	switch {
	case q.MaxDuration != nil && *q.MaxDuration <= 240:
		p.Set("videoDuration", "short")
	case q.MinDuration != nil && *q.MinDuration >= 1200:
		p.Set("videoDuration", "long")
	}
	if pageToken != "" {
		p.Set("pageToken", pageToken)
	}
	return p
}

// chunk splits ids into groups of at most n.
func chunk(ids []string, n int) [][]string {
	var out [][]string
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// fanOut runs fn for every batch on the bounded worker pool and joins errors.
func (c *Client) fanOut(ctx context.Context, batches [][]string, fn func(ctx context.Context, i int, batch []string) error) error {
	errs := make([]error, len(batches))
	var g errgroup.Group
	g.SetLimit(c.maxWorkers)
	for i, b := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, i, b)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// VideoDetails fetches videos.list for ids in batches of 50, concurrently.
// Records come back in the order of ids; ids whose batch failed are missing
// and the batch errors are joined into err.
func (c *Client) VideoDetails(ctx context.Context, ids []string) ([]engine.VideoRecord, error) {
	batches := chunk(ids, maxBatch)
	results := make([][]engine.VideoRecord, len(batches))

	err := c.fanOut(ctx, batches, func(ctx context.Context, i int, batch []string) error {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails,statistics")
		params.Set("id", strings.Join(batch, ","))
		params.Set("maxResults", strconv.Itoa(maxBatch))

		var resp videoListResponse
		if err := c.call(ctx, engine.OpVideos, "videos", params, &resp); err != nil {
			return fmt.Errorf("videos batch %d: %w", i+1, err)
		}
		recs := make([]engine.VideoRecord, 0, len(resp.Items))
		for _, it := range resp.Items {
			recs = append(recs, toVideoRecord(it))
		}
		results[i] = recs
		return nil
	})

	byID := make(map[string]engine.VideoRecord, len(ids))
	for _, recs := range results {
		for _, r := range recs {
			byID[r.VideoID] = r
		}
	}
	out := make([]engine.VideoRecord, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, err
}

// ChannelDetails fetches channels.list for the unique ids in batches of 50.
func (c *Client) ChannelDetails(ctx context.Context, ids []string) (map[string]engine.ChannelRecord, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	batches := chunk(uniq, maxBatch)
	results := make([]channelListResponse, len(batches))
	err := c.fanOut(ctx, batches, func(ctx context.Context, i int, batch []string) error {
		params := url.Values{}
		params.Set("part", "snippet,statistics")
		params.Set("id", strings.Join(batch, ","))
		params.Set("maxResults", strconv.Itoa(maxBatch))
		if err := c.call(ctx, engine.OpChannels, "channels", params, &results[i]); err != nil {
			return fmt.Errorf("channels batch %d: %w", i+1, err)
		}
		return nil
	})

	out := make(map[string]engine.ChannelRecord, len(uniq))
	for _, resp := range results {
		for _, it := range resp.Items {
			out[it.ID] = engine.ChannelRecord{
				ChannelID:         it.ID,
				Title:             it.Snippet.Title,
				SubscriberCount:   parseCount(it.Statistics.SubscriberCount),
				HiddenSubscribers: it.Statistics.HiddenSubscriberCount,
				TotalViewCount:    parseCount(it.Statistics.ViewCount),
				VideoCount:        parseCount(it.Statistics.VideoCount),
				CreatedAt:         parseTime(it.Snippet.PublishedAt),
			}
		}
	}
	return out, err
}

// TopComments returns up to n top-level comments of a video, most relevant
// first, rendered from HTML to Markdown and capped at 200 runes each.
func (c *Client) TopComments(ctx context.Context, videoID string, n int) ([]string, error) {
	engine.IncrCommentRequests()
	if n <= 0 {
		n = 5
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)
	params.Set("order", "relevance")
	params.Set("textFormat", "html")
	params.Set("maxResults", strconv.Itoa(min(n, 100)))

	var resp commentThreadListResponse
	if err := c.call(ctx, engine.OpComments, "commentThreads", params, &resp); err != nil {
		return nil, fmt.Errorf("comments %s: %w", videoID, err)
	}

	out := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		raw := it.Snippet.TopLevelComment.Snippet.TextDisplay
		text, err := htmltomarkdown.ConvertString(raw)
		if err != nil {
			text = engine.CleanHTML(raw)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, engine.TruncateRunes(text, commentMaxRunes, "..."))
	}
	return out, nil
}

// CaptionTrack describes one caption track of a video.
type CaptionTrack struct {
	Language string
	Kind     string // standard, asr, forced
	Name     string
}

// CaptionTracks lists the caption tracks of a video via captions.list.
func (c *Client) CaptionTracks(ctx context.Context, videoID string) ([]CaptionTrack, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)

	var resp captionListResponse
	if err := c.call(ctx, engine.OpCaptions, "captions", params, &resp); err != nil {
		return nil, fmt.Errorf("captions %s: %w", videoID, err)
	}
	tracks := make([]CaptionTrack, 0, len(resp.Items))
	for _, it := range resp.Items {
		tracks = append(tracks, CaptionTrack{
			Language: it.Snippet.Language,
			Kind:     strings.ToLower(it.Snippet.TrackKind),
			Name:     it.Snippet.Name,
		})
	}
	return tracks, nil
}

func toVideoRecord(it videoItem) engine.VideoRecord {
	s := it.Snippet
	rec := engine.VideoRecord{
		VideoID:         it.ID,
		ChannelID:       s.ChannelID,
		ChannelTitle:    s.ChannelTitle,
		Title:           s.Title,
		Description:     s.Description,
		PublishedAt:     parseTime(s.PublishedAt),
		DurationSeconds: parseDuration(it.ContentDetails.Duration),
		ViewCount:       parseCount(it.Statistics.ViewCount),
		LikeCount:       parseOptCount(it.Statistics.LikeCount),
		CommentCount:    parseOptCount(it.Statistics.CommentCount),
		Tags:            s.Tags,
		CategoryID:      s.CategoryID,
		Language:        s.DefaultAudioLanguage,
	}
	if rec.Language == "" {
		rec.Language = s.DefaultLanguage
	}
	switch {
	case s.Thumbnails.High != nil:
		rec.ThumbnailURL = s.Thumbnails.High.URL
	case s.Thumbnails.Medium != nil:
		rec.ThumbnailURL = s.Thumbnails.Medium.URL
	case s.Thumbnails.Default != nil:
		rec.ThumbnailURL = s.Thumbnails.Default.URL
	}
	if rr := it.ContentDetails.RegionRestriction; rr != nil {
		rec.RegionAllowed = rr.Allowed
		rec.RegionBlocked = rr.Blocked
	}
	return rec
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseOptCount(s *string) *int64 {
	if s == nil {
		return nil
	}
	n := parseCount(*s)
	return &n
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
