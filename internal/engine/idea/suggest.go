package idea

import (
	"slices"
	"strings"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// MaxSuggestions caps Suggest's output.
const MaxSuggestions = 10

var intentPrefix = map[engine.Intent]string{
	engine.IntentLearn:     "how to",
	engine.IntentCompare:   "best",
	engine.IntentDiscover:  "top",
	engine.IntentEntertain: "funny",
}

// Suggest returns related searches for idea in a fixed order: synonym
// rewrites, intent and content-type variants, topic combinations and
// keyword pairs. The idea's own search text is never suggested.
func Suggest(idea engine.Idea) []string {
	terms := idea.Terms
	if len(terms) == 0 {
		return nil
	}
	base := terms
	if len(base) > 3 {
		base = base[:3]
	}
	baseText := strings.Join(base, " ")

	var out []string
	seen := map[string]bool{SearchText(idea): true, baseText: true}
	add := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if len(s) <= 3 || seen[s] || len(out) >= MaxSuggestions {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for i, t := range base {
		for _, syn := range synonyms[t] {
			variant := append([]string(nil), base...)
			variant[i] = syn
			add(strings.Join(variant, " "))
		}
	}

	if p, ok := intentPrefix[idea.Intent]; ok && !strings.HasPrefix(baseText, p+" ") {
		add(p + " " + baseText)
	}
	for i, ct := range idea.ContentTypes {
		if i == 2 {
			break
		}
		if ct != engine.ContentOther && !slices.Contains(base, string(ct)) {
			add(terms[0] + " " + string(ct))
		}
	}
	for i, topic := range idea.Topics {
		if i == 2 {
			break
		}
		if topic != terms[0] {
			add(terms[0] + " " + topic)
		}
	}

	pairs := terms
	if len(pairs) > 4 {
		pairs = pairs[:4]
	}
	for i := range pairs {
		for j := i + 1; j < len(pairs); j++ {
			add(pairs[i] + " " + pairs[j])
		}
	}
	return out
}

