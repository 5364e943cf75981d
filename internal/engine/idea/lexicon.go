package idea

import (
	"strings"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
)

// Match weights for one lexicon entry.
const (
	phraseScore = 5
	wordScore   = 3
	stemScore   = 2
)

var contentWords = map[engine.ContentType][]string{
	engine.ContentTutorial: {
		"tutorial", "how to", "guide", "learn", "teach", "step by step",
		"beginner", "instructions", "walkthrough", "demo", "training",
		"course", "lesson", "explain", "demonstrate", "diy", "recipe",
	},
	engine.ContentReview: {
		"review", "opinion", "thoughts", "first impressions", "unboxing",
		"comparison", "vs", "versus", "critique", "breakdown", "evaluation",
		"rating", "pros and cons", "worth it",
	},
	engine.ContentVlog: {
		"vlog", "daily", "day in my life", "routine", "lifestyle", "diary",
		"journey", "behind the scenes", "story time",
	},
	engine.ContentAnimation: {
		"animation", "animated", "cartoon", "anime", "motion graphics",
		"2d", "3d", "stop motion",
	},
	engine.ContentMusic: {
		"music", "song", "album", "band", "concert", "cover", "remix",
		"instrumental", "lyrics", "music video", "singing", "guitar", "piano",
		"playlist",
	},
	engine.ContentGaming: {
		"gaming", "gameplay", "let's play", "playthrough", "speedrun",
		"video game", "game", "console", "esports", "multiplayer", "minecraft",
	},
	engine.ContentNews: {
		"news", "breaking", "current events", "politics", "world news",
		"report", "journalism", "press conference", "announcement",
	},
	engine.ContentComedy: {
		"comedy", "funny", "humor", "jokes", "stand up", "sketch", "parody",
		"satire", "meme", "comedian", "hilarious", "prank",
	},
	engine.ContentDocumentary: {
		"documentary", "investigation", "biography", "true story",
		"real life", "deep dive", "expose", "history of",
	},
	engine.ContentEducational: {
		"educational", "education", "school", "university", "academic",
		"science", "math", "physics", "chemistry", "biology", "history",
		"geography", "literature", "study", "exam", "lecture",
	},
	engine.ContentEntertainment: {
		"entertainment", "fun", "viral", "trending", "celebrity", "gossip",
		"interview", "talk show", "challenge", "reaction",
	},
}

// intentWords is evaluated in this order; the first intent wins ties.
var intentWords = []struct {
	intent engine.Intent
	words  []string
}{
	{engine.IntentLearn, []string{
		"how to", "learn", "teach me", "explain", "tutorial", "guide",
		"instructions", "step by step", "beginner", "understand", "master",
	}},
	{engine.IntentCompare, []string{
		"compare", "vs", "versus", "difference between", "better", "best",
		"which", "pros and cons", "review", "alternatives",
	}},
	{engine.IntentDiscover, []string{
		"find", "discover", "explore", "search for", "looking for",
		"recommendations", "recommend", "suggest", "show me", "what are", "ideas",
	}},
	{engine.IntentEntertain, []string{
		"funny", "entertainment", "fun", "enjoy", "relaxing", "chill",
		"interesting", "cool", "awesome", "hilarious",
	}},
}

var topicWords = []string{
	"programming", "coding", "software", "app development", "web development",
	"artificial intelligence", "machine learning", "data science",
	"cybersecurity", "blockchain", "cryptocurrency",
	"drawing", "painting", "photography", "design", "music production",
	"video editing", "creative writing",
	"cooking", "baking", "fitness", "health", "travel", "fashion", "beauty",
	"productivity", "gardening",
	"business", "entrepreneurship", "marketing", "finance", "investing",
	"real estate",
	"mathematics", "physics", "chemistry", "biology", "history",
	"language learning",
}

// synonyms expand a surface term into related search words.
var synonyms = map[string][]string{
	"tutorial": {"guide", "walkthrough", "lesson"},
	"guide":    {"tutorial", "walkthrough"},
	"review":   {"analysis", "opinion", "critique"},
	"music":    {"song", "track"},
	"game":     {"gameplay", "playthrough"},
	"cooking":  {"recipe", "kitchen"},
	"cook":     {"recipe", "kitchen"},
	"bake":     {"recipe", "baking"},
	"recipe":   {"cooking", "homemade"},
	"workout":  {"exercise", "training"},
	"learn":    {"tutorial", "course"},
	"beginner": {"basics", "introduction"},
	"cheap":    {"budget", "affordable"},
}

// Filter hints inferred from the idea text.
var (
	shortWords   = []string{"short", "quick", "brief"}
	longWords    = []string{"long", "detailed", "comprehensive", "in depth"}
	recentWords  = []string{"recent", "latest", "new"}
	classicWords = []string{"classic", "vintage", "old"}
)

// entry is a normalized lexicon item.
type entry struct {
	text   string // folded words joined by one space
	stem   string // set for single words only
	phrase bool
}

func newEntry(s string) entry {
	words := engine.Words(s)
	e := entry{text: strings.Join(words, " ")}
	if len(words) > 1 {
		e.phrase = true
	} else if len(words) == 1 {
		e.stem = engine.Stem(words[0])
	}
	return e
}

func newEntries(list []string) []entry {
	out := make([]entry, 0, len(list))
	for _, s := range list {
		if e := newEntry(s); e.text != "" {
			out = append(out, e)
		}
	}
	return out
}

// doc is a text prepared for lexicon matching.
type doc struct {
	padded string // " w1 w2 ... wn "
	words  map[string]bool
	stems  map[string]bool
}

func newDoc(text string) doc {
	words := engine.Words(text)
	d := doc{
		padded: " " + strings.Join(words, " ") + " ",
		words:  make(map[string]bool, len(words)),
		stems:  make(map[string]bool, len(words)),
	}
	for _, w := range words {
		d.words[w] = true
		d.stems[engine.Stem(w)] = true
	}
	return d
}

func (d doc) score(e entry) int {
	switch {
	case e.phrase:
		if strings.Contains(d.padded, " "+e.text+" ") {
			return phraseScore
		}
	case d.words[e.text]:
		return wordScore
	case d.stems[e.stem]:
		return stemScore
	}
	return 0
}

func (d doc) scoreAll(entries []entry) int {
	total := 0
	for _, e := range entries {
		total += d.score(e)
	}
	return total
}

func (d doc) hasAny(entries []entry) bool {
	for _, e := range entries {
		if e.phrase {
			if d.score(e) > 0 {
				return true
			}
		} else if d.words[e.text] {
			return true
		}
	}
	return false
}
