package idea

import (
	"testing"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggest(t *testing.T) {
	in := New()
	idea, err := in.Interpret("how to bake sourdough bread at home")
	require.NoError(t, err)

	got := Suggest(idea)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), MaxSuggestions)
	assert.Contains(t, got, "recipe sourdough bread")
	assert.Contains(t, got, "how to bake sourdough bread")
	assert.Contains(t, got, "bake tutorial")
	assert.Contains(t, got, "bake baking")
	assert.NotContains(t, got, SearchText(idea))

	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s], "duplicate %q", s)
		seen[s] = true
	}
	assert.Equal(t, got, Suggest(idea), "stable across calls")
}

func TestSuggest_NoTerms(t *testing.T) {
	assert.Nil(t, Suggest(engine.Idea{Text: "x"}))
}

func TestSuggest_Cap(t *testing.T) {
	idea := engine.Idea{
		Terms:        []string{"tutorial", "review", "music", "game", "cooking", "workout"},
		ContentTypes: []engine.ContentType{engine.ContentTutorial, engine.ContentReview},
		Intent:       engine.IntentLearn,
	}
	assert.Len(t, Suggest(idea), MaxSuggestions)
}
