package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
)

const suggestPrompt = `You help people find YouTube videos.
Rewrite the video idea below into %d short, distinct YouTube search queries (2-6 words each).
Cover different angles: beginner vs advanced, specific techniques, related topics.
Return ONLY a JSON array of strings.

Idea: %s
Keywords: %s`

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// LLMSuggester turns an idea into extra search suggestions with an LLM.
type LLMSuggester struct {
	client *llm.Client
}

// NewLLMSuggester returns nil when client is nil so callers can skip it.
func NewLLMSuggester(client *llm.Client) *LLMSuggester {
	if client == nil {
		return nil
	}
	return &LLMSuggester{client: client}
}

// Suggest asks the LLM for up to n search queries. Temperature and token
// limit come from the client.
func (s *LLMSuggester) Suggest(ctx context.Context, idea string, keywords []string, n int) ([]string, error) {
	prompt := fmt.Sprintf(suggestPrompt, n, idea, strings.Join(keywords, ", "))
	metrics.LLMCalls.Add(1)
	raw, err := s.client.Complete(ctx, "", prompt)
	if err != nil {
		metrics.LLMErrors.Add(1)
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		metrics.LLMErrors.Add(1)
		return nil, fmt.Errorf("suggest: parse failed on %q: %w", raw, err)
	}
	clean := out[:0]
	for _, q := range out {
		q = strings.TrimSpace(q)
		if q != "" && len(q) <= 120 {
			clean = append(clean, q)
		}
	}
	if len(clean) > n {
		clean = clean[:n]
	}
	return clean, nil
}
