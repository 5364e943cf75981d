package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// field indexes, in decreasing importance.
const (
	fieldTitle = iota
	fieldTags
	fieldDescription
	fieldTranscript
	numFields
)

// Scorer computes semantic similarity, keyword match and the final
// relevance of candidates against a query.
type Scorer struct {
	cfg engine.ScoringConfig
}

// NewScorer returns a Scorer using cfg.
func NewScorer(cfg engine.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// candidate is one result tokenized per field.
type candidate struct {
	tf     map[string]float64 // term → raw count across all fields
	fields [numFields]map[string]bool
}

func fieldTexts(r engine.ScoredResult) [numFields]string {
	var out [numFields]string
	out[fieldTitle] = r.Video.Title
	out[fieldTags] = strings.Join(r.Video.Tags, " ")
	out[fieldDescription] = r.Video.Description
	if r.Transcript != nil {
		out[fieldTranscript] = *r.Transcript
	}
	return out
}

func newCandidate(r engine.ScoredResult) candidate {
	c := candidate{tf: make(map[string]float64)}
	for i, text := range fieldTexts(r) {
		set := make(map[string]bool)
		for _, w := range engine.Words(text) {
			st := engine.Stem(w)
			set[st] = true
			set[w] = true
			if !engine.IsStopWord(w) {
				c.tf[st]++
			}
		}
		c.fields[i] = set
	}
	return c
}

// IDF maps each query stem to its inverse document frequency over a
// candidate set.
type IDF map[string]float64

// Score fills SemanticSimilarity, KeywordMatchScore and RelevanceScore of
// every result in place. QualityScore must already be set. keywords are the
// idea's stems. The returned IDF covers the whole results slice and can be
// handed to Rescore later.
func (s *Scorer) Score(keywords []string, results []engine.ScoredResult) IDF {
	query := uniqueSorted(keywords)
	cands := candidates(results)
	idf := inverseDocFreq(query, cands)
	s.apply(query, idf, cands, results)
	return idf
}

// Rescore scores results against an IDF computed earlier over a larger
// candidate set, so a result whose text did not change keeps its scores.
// A nil idf is computed from results.
func (s *Scorer) Rescore(keywords []string, results []engine.ScoredResult, idf IDF) {
	query := uniqueSorted(keywords)
	cands := candidates(results)
	if idf == nil {
		idf = inverseDocFreq(query, cands)
	}
	s.apply(query, idf, cands, results)
}

func candidates(results []engine.ScoredResult) []candidate {
	cands := make([]candidate, len(results))
	for i := range results {
		cands[i] = newCandidate(results[i])
	}
	return cands
}

func (s *Scorer) apply(query []string, idf IDF, cands []candidate, results []engine.ScoredResult) {
	for i := range results {
		r := &results[i]
		r.SemanticSimilarity = cosine(query, idf, cands[i].tf)
		r.KeywordMatchScore = s.keywordMatch(query, cands[i])
		r.RelevanceScore = weighted(
			[]float64{r.SemanticSimilarity, r.KeywordMatchScore, r.QualityScore},
			[]float64{s.cfg.SemanticWeight, s.cfg.KeywordWeight, s.cfg.QualityWeight},
		)
	}
}

// inverseDocFreq returns the smoothed idf ln((1+N)/(1+df))+1 of each query
// term over the candidate set.
func inverseDocFreq(query []string, cands []candidate) IDF {
	n := float64(len(cands))
	idf := make(IDF, len(query))
	for _, t := range query {
		df := 0.0
		for _, c := range cands {
			if c.tf[t] > 0 {
				df++
			}
		}
		idf[t] = math.Log((1+n)/(1+df)) + 1
	}
	return idf
}

// cosine compares the query vector (idf per keyword) with the document's
// sublinear tf-idf vector. Terms outside the query only add to the
// document norm, where the idf of an unseen term is taken as 1.
func cosine(query []string, idf map[string]float64, tf map[string]float64) float64 {
	if len(query) == 0 || len(tf) == 0 {
		return 0
	}
	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	var docNorm float64
	for _, t := range terms {
		w := (1 + math.Log(tf[t])) * idfOr1(idf, t)
		docNorm += w * w
	}
	var dot, queryNorm float64
	for _, t := range query {
		qw := idf[t]
		queryNorm += qw * qw
		if n := tf[t]; n > 0 {
			dot += qw * (1 + math.Log(n)) * qw
		}
	}
	if docNorm == 0 || queryNorm == 0 {
		return 0
	}
	return clip01(dot / (math.Sqrt(docNorm) * math.Sqrt(queryNorm)))
}

func idfOr1(idf map[string]float64, t string) float64 {
	if v, ok := idf[t]; ok {
		return v
	}
	return 1
}

// keywordMatch sums, per keyword, the weight of the most important field it
// appears in, normalized by the best possible total.
func (s *Scorer) keywordMatch(query []string, c candidate) float64 {
	weights := [numFields]float64{
		fieldTitle:       s.cfg.TitleWeight,
		fieldTags:        s.cfg.TagsWeight,
		fieldDescription: s.cfg.DescriptionWeight,
		fieldTranscript:  s.cfg.TranscriptWeight,
	}
	top := 0.0
	for _, w := range weights {
		top = math.Max(top, w)
	}
	if len(query) == 0 || top <= 0 {
		return 0
	}
	var sum float64
	for _, kw := range query {
		best := 0.0
		for f, set := range c.fields {
			if set[kw] {
				best = math.Max(best, weights[f])
			}
		}
		sum += best
	}
	return clip01(sum / (float64(len(query)) * top))
}

func uniqueSorted(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
