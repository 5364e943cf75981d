package engine

import (
	"strings"
	"time"
)

// ContentType is the closed set of video genres an idea can map to.
type ContentType string

const (
	ContentTutorial      ContentType = "tutorial"
	ContentReview        ContentType = "review"
	ContentVlog          ContentType = "vlog"
	ContentAnimation     ContentType = "animation"
	ContentMusic         ContentType = "music"
	ContentGaming        ContentType = "gaming"
	ContentNews          ContentType = "news"
	ContentComedy        ContentType = "comedy"
	ContentDocumentary   ContentType = "documentary"
	ContentEducational   ContentType = "educational"
	ContentEntertainment ContentType = "entertainment"
	ContentOther         ContentType = "other"
)

// AllContentTypes lists every content type in canonical order.
var AllContentTypes = []ContentType{
	ContentTutorial, ContentReview, ContentVlog, ContentAnimation, ContentMusic, ContentGaming,
	ContentNews, ContentComedy, ContentDocumentary, ContentEducational, ContentEntertainment, ContentOther,
}

// ParseContentType maps a string to a ContentType; unknown values become ContentOther.
func ParseContentType(s string) ContentType {
	if ct, ok := LookupContentType(s); ok {
		return ct
	}
	return ContentOther
}

// LookupContentType is ParseContentType without the fallback.
func LookupContentType(s string) (ContentType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, ct := range AllContentTypes {
		if string(ct) == s {
			return ct, true
		}
	}
	return "", false
}

// Intent is what the user wants out of the idea.
type Intent string

const (
	IntentLearn     Intent = "learn"
	IntentDiscover  Intent = "discover"
	IntentCompare   Intent = "compare"
	IntentEntertain Intent = "entertain"
	IntentUnknown   Intent = "unknown"
)

// Idea is the interpreted form of a free-text video idea.
type Idea struct {
	Text         string        `json:"text"`
	Keywords     []string      `json:"keywords"` // unique stems, most salient first
	Terms        []string      `json:"terms"`    // surface words used for the API query
	Topics       []string      `json:"topics,omitempty"`
	ContentTypes []ContentType `json:"content_types"`
	Intent       Intent        `json:"intent"`
	Confidence   float64       `json:"confidence"`
}

// Filters are the caller-supplied constraints of a search.
type Filters struct {
	ContentTypes    []ContentType
	Language        string
	Region          string
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
	MinDuration     *int // seconds
	MaxDuration     *int // seconds
}

// SearchQuery is what the pipeline sends to the API and uses for ranking.
type SearchQuery struct {
	Text            string
	Keywords        []string
	Terms           []string
	ContentTypes    []ContentType // filter set; empty = no content-type filter
	Language        string
	Region          string
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
	MinDuration     *int
	MaxDuration     *int
	MaxResults      int
}

// VideoRecord is a video as returned by the videos endpoint.
type VideoRecord struct {
	VideoID         string
	ChannelID       string
	ChannelTitle    string
	Title           string
	Description     string
	PublishedAt     time.Time
	DurationSeconds int
	ViewCount       int64
	LikeCount       *int64 // nil when hidden
	CommentCount    *int64 // nil when disabled
	Tags            []string
	ThumbnailURL    string
	Language        string
	CategoryID      string
	RegionAllowed   []string
	RegionBlocked   []string
}

// ChannelRecord is a channel as returned by the channels endpoint.
type ChannelRecord struct {
	ChannelID         string
	Title             string
	SubscriberCount   int64
	HiddenSubscribers bool
	TotalViewCount    int64
	VideoCount        int64
	CreatedAt         time.Time
}

// ScoredResult is a candidate video with all computed scores.
type ScoredResult struct {
	Video              VideoRecord
	QualityScore       float64
	EngagementRate     float64
	CredibilityScore   float64
	SemanticSimilarity float64
	KeywordMatchScore  float64
	RelevanceScore     float64
	FinalRank          int
	Transcript         *string
	TopComments        []string
}
