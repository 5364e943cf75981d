// Package idea turns a free-text video idea into keywords, content-type tags,
// an intent and a confidence, and builds the search query from them. All
// functions are pure.
package idea

import (
	"math"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// Defaults for Interpreter.
const (
	DefaultMaxKeywords    = 20
	DefaultMinTokenLen    = 3
	DefaultMinTypeScore   = 3
	DefaultMinIntentScore = 3
	maxContentTypes       = 3
	maxTopics             = 10
)

// Interpreter classifies ideas against a fixed lexicon.
type Interpreter struct {
	MaxKeywords    int
	MinTokenLen    int
	MinTypeScore   int
	MinIntentScore int

	types   map[engine.ContentType][]entry
	intents []intentEntries
	topics  []entry
}

type intentEntries struct {
	intent  engine.Intent
	entries []entry
}

// New returns an Interpreter with default thresholds.
func New() *Interpreter {
	in := &Interpreter{
		MaxKeywords:    DefaultMaxKeywords,
		MinTokenLen:    DefaultMinTokenLen,
		MinTypeScore:   DefaultMinTypeScore,
		MinIntentScore: DefaultMinIntentScore,
		types:          make(map[engine.ContentType][]entry, len(contentWords)),
		topics:         newEntries(topicWords),
	}
	for ct, words := range contentWords {
		in.types[ct] = newEntries(words)
	}
	for _, iw := range intentWords {
		in.intents = append(in.intents, intentEntries{intent: iw.intent, entries: newEntries(iw.words)})
	}
	return in
}

// Interpret analyzes text. It fails with engine.ErrEmptyIdea on blank input
// and otherwise always yields at least one keyword.
func (in *Interpreter) Interpret(text string) (engine.Idea, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return engine.Idea{}, engine.ErrEmptyIdea
	}
	d := newDoc(text)

	keywords, terms := in.keywords(text)
	types, typeScore := in.contentTypes(d)
	intent, intentScore := in.intent(d)

	idea := engine.Idea{
		Text:         text,
		Keywords:     keywords,
		Terms:        terms,
		Topics:       in.topicsOf(d),
		ContentTypes: types,
		Intent:       intent,
	}
	idea.Confidence = confidence(len(keywords), typeScore, intentScore)
	return idea, nil
}

type scoredTerm struct {
	stem    string
	surface string
	first   int
	score   float64
}

// keywords ranks unique stems by salience: frequency counts double and
// earlier words get up to 10 bonus points.
func (in *Interpreter) keywords(text string) (stems, surfaces []string) {
	words := engine.Words(text)
	byStem := make(map[string]*scoredTerm)
	var order []*scoredTerm
	for i, w := range words {
		if len([]rune(w)) < in.MinTokenLen || engine.IsStopWord(w) {
			continue
		}
		st := engine.Stem(w)
		t, ok := byStem[st]
		if !ok {
			t = &scoredTerm{stem: st, surface: w, first: i}
			t.score = math.Max(0, 10-float64(i)/float64(len(words))*10)
			byStem[st] = t
			order = append(order, t)
		}
		t.score += 2
	}

	if len(order) == 0 {
		return fallbackTokens(text)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].first < order[j].first
	})
	if len(order) > in.MaxKeywords {
		order = order[:in.MaxKeywords]
	}
	stems = make([]string, len(order))
	surfaces = make([]string, len(order))
	for i, t := range order {
		stems[i] = t.stem
		surfaces[i] = t.surface
	}
	return stems, surfaces
}

// fallbackTokens is used when every word was filtered out: the folded
// whitespace tokens, or the raw ones if folding leaves nothing.
func fallbackTokens(text string) (stems, surfaces []string) {
	seen := make(map[string]bool)
	add := func(tok string) {
		if tok != "" && !seen[tok] {
			seen[tok] = true
			surfaces = append(surfaces, tok)
		}
	}
	for _, w := range engine.Words(text) {
		add(w)
	}
	if len(surfaces) == 0 {
		for _, f := range strings.Fields(text) {
			add(strings.ToLower(f))
		}
	}
	return surfaces, surfaces
}

// contentTypes returns the best-scoring types (at most three) and the top
// score, or [other] and 0.
func (in *Interpreter) contentTypes(d doc) ([]engine.ContentType, int) {
	type scored struct {
		ct    engine.ContentType
		score int
		pos   int
	}
	var hits []scored
	for pos, ct := range engine.AllContentTypes {
		entries, ok := in.types[ct]
		if !ok {
			continue
		}
		if s := d.scoreAll(entries); s >= in.MinTypeScore {
			hits = append(hits, scored{ct, s, pos})
		}
	}
	if len(hits) == 0 {
		return []engine.ContentType{engine.ContentOther}, 0
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos < hits[j].pos
	})
	if len(hits) > maxContentTypes {
		hits = hits[:maxContentTypes]
	}
	out := make([]engine.ContentType, len(hits))
	for i, h := range hits {
		out[i] = h.ct
	}
	return out, hits[0].score
}

func (in *Interpreter) intent(d doc) (engine.Intent, int) {
	best, bestScore := engine.IntentUnknown, 0
	for _, ie := range in.intents {
		if s := d.scoreAll(ie.entries); s > bestScore {
			best, bestScore = ie.intent, s
		}
	}
	if bestScore < in.MinIntentScore {
		return engine.IntentUnknown, 0
	}
	return best, bestScore
}

func (in *Interpreter) topicsOf(d doc) []string {
	var out []string
	for _, e := range in.topics {
		if d.score(e) > 0 {
			out = append(out, e.text)
			if len(out) == maxTopics {
				break
			}
		}
	}
	return out
}

func strength(score int) float64 {
	return math.Min(float64(score)/phraseScore, 1)
}

func confidence(keywords, typeScore, intentScore int) float64 {
	c := 0.2 + math.Min(0.05*float64(keywords), 0.3) + 0.3*strength(typeScore) + 0.2*strength(intentScore)
	return math.Max(0, math.Min(c, 1))
}

// ContentTypesOf returns every content type text matches, in canonical
// order; [other] when none does.
func (in *Interpreter) ContentTypesOf(text string) []engine.ContentType {
	d := newDoc(text)
	var out []engine.ContentType
	for _, ct := range engine.AllContentTypes {
		if entries, ok := in.types[ct]; ok && d.scoreAll(entries) >= in.MinTypeScore {
			out = append(out, ct)
		}
	}
	if len(out) == 0 {
		return []engine.ContentType{engine.ContentOther}
	}
	return out
}

// MatchesContentType reports whether text reads as content type ct. Text
// that matches no type counts as ContentOther.
func (in *Interpreter) MatchesContentType(text string, ct engine.ContentType) bool {
	d := newDoc(text)
	if ct != engine.ContentOther {
		return d.scoreAll(in.types[ct]) >= in.MinTypeScore
	}
	for _, entries := range in.types {
		if d.scoreAll(entries) >= in.MinTypeScore {
			return false
		}
	}
	return true
}
