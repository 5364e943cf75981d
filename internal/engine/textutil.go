package engine

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/anatolykoptev/go-kit/strutil"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// CleanHTML strips HTML tags, unescapes entities and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}

// TruncateAtWord truncates a string to maxLen runes at a word boundary.
func TruncateAtWord(s string, maxLen int) string {
	return strutil.TruncateAtWord(s, maxLen)
}

// Fold lowercases s and strips diacritics ("Crème Brûlée" → "creme brulee").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Words splits folded text into letter/digit runs, keeping inner apostrophes
// out ("don't" → "don", "t").
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Stem returns the English Snowball stem of a lowercase word.
func Stem(word string) string {
	return english.Stem(word, false)
}

// Terms returns the stemmed content terms of s: stop words and tokens
// shorter than minLen runes are dropped.
func Terms(s string, minLen int) []string {
	words := Words(s)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < minLen || IsStopWord(w) {
			continue
		}
		out = append(out, Stem(w))
	}
	return out
}

// IsStopWord reports whether w is an English function word.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

var stopWords = func() map[string]struct{} {
	list := strings.Fields(`
		a about above after again against all also am an and any are aren as at
		be because been before being below between both but by
		can could couldn did didn do does doesn doing don down during
		each few for from further get gets got had hadn has hasn have haven having he her here hers herself him himself his how
		i if in into is isn it its itself just let like ll me more most my myself
		no nor not now of off on once only or other our ours ourselves out over own
		re same she should shouldn so some such
		than that the their theirs them themselves then there these they this those through to too
		under until up us ve very was wasn we were weren what when where which while who whom why will with won would wouldn
		you your yours yourself yourselves
		want wanna need looking find show give some really
		video videos youtube watch`)
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}()
