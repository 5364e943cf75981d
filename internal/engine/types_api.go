package engine

import "time"

// SearchRequest is the input of video_search.
type SearchRequest struct {
	Idea               string     `json:"idea" jsonschema:"Free-text video idea, e.g. how to bake sourdough bread at home"`
	MaxResults         int        `json:"max_results,omitempty" jsonschema:"Maximum videos to return, 1-200 (default 50)"`
	ContentTypes       []string   `json:"content_types,omitempty" jsonschema:"Only keep these content types: tutorial, review, vlog, animation, music, gaming, news, comedy, documentary, educational, entertainment"`
	Language           string     `json:"language,omitempty" jsonschema:"Language code, e.g. en; empty keeps every language"`
	Region             string     `json:"region,omitempty" jsonschema:"ISO 3166 region code, e.g. US; empty keeps every region"`
	PublishedAfter     *time.Time `json:"published_after,omitempty" jsonschema:"Only videos published after this RFC3339 time"`
	PublishedBefore    *time.Time `json:"published_before,omitempty" jsonschema:"Only videos published before this RFC3339 time"`
	MinDuration        *int       `json:"min_duration,omitempty" jsonschema:"Minimum duration in seconds"`
	MaxDuration        *int       `json:"max_duration,omitempty" jsonschema:"Maximum duration in seconds"`
	IncludeTranscripts bool       `json:"include_transcripts,omitempty" jsonschema:"Fetch captions and use them for relevance (costs quota)"`
	IncludeComments    bool       `json:"include_comments,omitempty" jsonschema:"Attach top comments to each video"`
	APIKey             string     `json:"api_key,omitempty" jsonschema:"Optional YouTube Data API key; its quota is tracked separately"`
}

// QueryInfo describes how the idea was interpreted.
type QueryInfo struct {
	OriginalIdea         string   `json:"original_idea"`
	ProcessedKeywords    []string `json:"processed_keywords"`
	DetectedContentTypes []string `json:"detected_content_types"`
	MainTopics           []string `json:"main_topics,omitempty"`
	Intent               string   `json:"intent"`
	Confidence           float64  `json:"confidence"`
}

// NewQueryInfo summarizes an interpreted idea.
func NewQueryInfo(idea Idea) QueryInfo {
	types := make([]string, len(idea.ContentTypes))
	for i, ct := range idea.ContentTypes {
		types[i] = string(ct)
	}
	return QueryInfo{
		OriginalIdea:         idea.Text,
		ProcessedKeywords:    idea.Keywords,
		DetectedContentTypes: types,
		MainTopics:           idea.Topics,
		Intent:               string(idea.Intent),
		Confidence:           idea.Confidence,
	}
}

// VideoResult is one ranked video in the response.
type VideoResult struct {
	VideoID        string    `json:"video_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ChannelTitle   string    `json:"channel_title"`
	ChannelID      string    `json:"channel_id"`
	PublishedAt    time.Time `json:"published_at"`
	Duration       int       `json:"duration"`
	ViewCount      int64     `json:"view_count"`
	LikeCount      *int64    `json:"like_count,omitempty"`
	CommentCount   *int64    `json:"comment_count,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url"`
	URL            string    `json:"url"`
	Rank           int       `json:"rank"`
	RelevanceScore float64   `json:"relevance_score"`
	QualityScore   float64   `json:"quality_score"`
	EngagementRate *float64  `json:"engagement_rate,omitempty"`
	Tags           []string  `json:"tags"`
	Transcript     *string   `json:"transcript,omitempty"`
	TopComments    []string  `json:"top_comments,omitempty"`
}

// SearchResponse is the output of video_search.
type SearchResponse struct {
	SearchID       string        `json:"search_id"`
	QueryInfo      QueryInfo     `json:"query_info"`
	TotalResults   int           `json:"total_results"`
	Videos         []VideoResult `json:"videos"`
	SearchTimeMS   int64         `json:"search_time_ms"`
	QuotaUsed      int           `json:"quota_used"`
	QuotaRemaining int           `json:"quota_remaining"`
	Suggestions    []string      `json:"suggestions"`
	Degraded       bool          `json:"degraded,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// NewVideoResult flattens a ranked result for output.
func NewVideoResult(r ScoredResult) VideoResult {
	v := r.Video
	out := VideoResult{
		VideoID:        v.VideoID,
		Title:          v.Title,
		Description:    v.Description,
		ChannelTitle:   v.ChannelTitle,
		ChannelID:      v.ChannelID,
		PublishedAt:    v.PublishedAt,
		Duration:       v.DurationSeconds,
		ViewCount:      v.ViewCount,
		LikeCount:      v.LikeCount,
		CommentCount:   v.CommentCount,
		ThumbnailURL:   v.ThumbnailURL,
		URL:            "https://www.youtube.com/watch?v=" + v.VideoID,
		Rank:           r.FinalRank,
		RelevanceScore: r.RelevanceScore,
		QualityScore:   r.QualityScore,
		Tags:           v.Tags,
		Transcript:     r.Transcript,
		TopComments:    r.TopComments,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if v.ViewCount > 0 {
		er := r.EngagementRate
		out.EngagementRate = &er
	}
	return out
}

// QuotaStatusInput is the input of quota_status.
type QuotaStatusInput struct {
	APIKey string `json:"api_key,omitempty" jsonschema:"Report on this caller key's ledger instead of the service default"`
}

// QuotaStatusOutput is the output of quota_status.
type QuotaStatusOutput struct {
	Credential string     `json:"credential"`
	Quota      QuotaState `json:"quota"`
	Cache      CacheStats `json:"cache"`
}

// InterpretInput is the input of idea_interpret.
type InterpretInput struct {
	Idea string `json:"idea" jsonschema:"Free-text video idea"`
}

// InterpretOutput is the output of idea_interpret.
type InterpretOutput struct {
	QueryInfo   QueryInfo `json:"query_info"`
	SearchText  string    `json:"search_text"`
	Suggestions []string  `json:"suggestions"`
}

// HistoryInput is the input of search_history.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of recent searches (default 20, max 100)"`
}
