// Package ranking filters, deduplicates, orders and numbers scored results.
package ranking

import (
	"slices"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// Filter names used in Outcome.Dropped.
const (
	DropLanguage    = "language"
	DropRegion      = "region"
	DropContentType = "content_type"
	DropDuration    = "duration"
	DropPublished   = "published"
	DropDuplicate   = "duplicate"
)

// Classifier decides whether a video's text reads as a content type.
type Classifier interface {
	MatchesContentType(text string, ct engine.ContentType) bool
}

// Outcome is the ranked list plus bookkeeping.
type Outcome struct {
	Results []engine.ScoredResult
	Total   int            // results that passed filtering, before truncation
	Dropped map[string]int // filter name → discarded results
}

// YouTube category ids that imply a content type on their own: Film &
// Animation, Music, Gaming, People & Blogs, Comedy, Entertainment, News &
// Politics, Howto & Style, Education, Science & Technology.
var categoryTypes = map[string]engine.ContentType{
	"1":  engine.ContentAnimation,
	"10": engine.ContentMusic,
	"20": engine.ContentGaming,
	"22": engine.ContentVlog,
	"23": engine.ContentComedy,
	"24": engine.ContentEntertainment,
	"25": engine.ContentNews,
	"26": engine.ContentTutorial,
	"27": engine.ContentEducational,
	"28": engine.ContentEducational,
}

// Rank applies q's filters, drops repeated video ids (first one wins),
// sorts by relevance desc, views desc, video id asc, assigns 1-based ranks
// and truncates to q.MaxResults. cls may be nil to skip the content-type
// filter. Unknown values (empty language, zero duration or date) never
// exclude a video.
func Rank(results []engine.ScoredResult, q engine.SearchQuery, cls Classifier) Outcome {
	out := Outcome{Dropped: make(map[string]int)}
	seen := make(map[string]bool, len(results))
	kept := make([]engine.ScoredResult, 0, len(results))

	for _, r := range results {
		if reason := rejects(r.Video, q, cls); reason != "" {
			out.Dropped[reason]++
			continue
		}
		if seen[r.Video.VideoID] {
			out.Dropped[DropDuplicate]++
			continue
		}
		seen[r.Video.VideoID] = true
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool { return less(kept[i], kept[j]) })
	for i := range kept {
		kept[i].FinalRank = i + 1
	}

	out.Total = len(kept)
	if q.MaxResults > 0 && len(kept) > q.MaxResults {
		kept = kept[:q.MaxResults]
	}
	out.Results = kept
	return out
}

func less(a, b engine.ScoredResult) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if a.Video.ViewCount != b.Video.ViewCount {
		return a.Video.ViewCount > b.Video.ViewCount
	}
	return a.Video.VideoID < b.Video.VideoID
}

// rejects returns the name of the first filter v fails, or "".
func rejects(v engine.VideoRecord, q engine.SearchQuery, cls Classifier) string {
	switch {
	case !languageOK(v.Language, q.Language):
		return DropLanguage
	case !regionOK(v, q.Region):
		return DropRegion
	case !contentTypeOK(v, q.ContentTypes, cls):
		return DropContentType
	case !durationOK(v.DurationSeconds, q.MinDuration, q.MaxDuration):
		return DropDuration
	case !publishedOK(v, q):
		return DropPublished
	}
	return ""
}

func baseLang(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	return s
}

func languageOK(have, want string) bool {
	want = baseLang(want)
	if want == "" || want == "all" || have == "" {
		return true
	}
	return baseLang(have) == want
}

func regionOK(v engine.VideoRecord, region string) bool {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return true
	}
	if len(v.RegionAllowed) > 0 && !slices.Contains(v.RegionAllowed, region) {
		return false
	}
	return !slices.Contains(v.RegionBlocked, region)
}

func contentTypeOK(v engine.VideoRecord, want []engine.ContentType, cls Classifier) bool {
	if len(want) == 0 || cls == nil {
		return true
	}
	if ct, ok := categoryTypes[v.CategoryID]; ok && slices.Contains(want, ct) {
		return true
	}
	text := v.Title + " " + strings.Join(v.Tags, " ") + " " + v.Description
	for _, ct := range want {
		if cls.MatchesContentType(text, ct) {
			return true
		}
	}
	return false
}

func durationOK(secs int, minSecs, maxSecs *int) bool {
	if secs <= 0 {
		return true
	}
	if minSecs != nil && secs < *minSecs {
		return false
	}
	if maxSecs != nil && secs > *maxSecs {
		return false
	}
	return true
}

func publishedOK(v engine.VideoRecord, q engine.SearchQuery) bool {
	if v.PublishedAt.IsZero() {
		return true
	}
	if q.PublishedAfter != nil && v.PublishedAt.Before(*q.PublishedAfter) {
		return false
	}
	if q.PublishedBefore != nil && v.PublishedAt.After(*q.PublishedBefore) {
		return false
	}
	return true
}
