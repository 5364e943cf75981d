package idea

import (
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// Inferred filter bounds.
const (
	shortMaxSeconds = 300
	longMinSeconds  = 600
	maxQueryTerms   = 8
)

// BuildQuery turns an interpreted idea and the caller's filters into the
// query sent to the API. Explicit filters always win; duration and date
// bounds the caller left unset are inferred from words like "quick" or
// "latest".
func (in *Interpreter) BuildQuery(idea engine.Idea, f engine.Filters, maxResults int, now time.Time) engine.SearchQuery {
	q := engine.SearchQuery{
		Text:            SearchText(idea),
		Keywords:        idea.Keywords,
		Terms:           idea.Terms,
		ContentTypes:    f.ContentTypes,
		Language:        strings.ToLower(strings.TrimSpace(f.Language)),
		Region:          strings.ToUpper(strings.TrimSpace(f.Region)),
		PublishedAfter:  f.PublishedAfter,
		PublishedBefore: f.PublishedBefore,
		MinDuration:     f.MinDuration,
		MaxDuration:     f.MaxDuration,
		MaxResults:      maxResults,
	}

	d := newDoc(idea.Text)
	if q.MinDuration == nil && q.MaxDuration == nil {
		switch {
		case d.hasAny(newEntries(shortWords)):
			q.MaxDuration = intPtr(shortMaxSeconds)
		case d.hasAny(newEntries(longWords)):
			q.MinDuration = intPtr(longMinSeconds)
		}
	}
	if q.PublishedAfter == nil && q.PublishedBefore == nil {
		switch {
		case d.hasAny(newEntries(recentWords)):
			t := now.AddDate(-1, 0, 0)
			q.PublishedAfter = &t
		case d.hasAny(newEntries(classicWords)):
			t := now.AddDate(-5, 0, 0)
			q.PublishedBefore = &t
		}
	}
	return q
}

// SearchText is the text sent as the API's q parameter: the most salient
// surface terms, or the idea itself when there are none.
func SearchText(idea engine.Idea) string {
	terms := idea.Terms
	if len(terms) > maxQueryTerms {
		terms = terms[:maxQueryTerms]
	}
	if len(terms) == 0 {
		return idea.Text
	}
	return strings.Join(terms, " ")
}

func intPtr(n int) *int { return &n }
