package vidserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/history"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerSearchHistory(server *mcp.Server, h *handlers) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_history",
		Description: "List recent video searches, newest first: idea, keywords, intent, result count, returned video IDs, quota used and whether the result was degraded.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.searchHistory)
}

func (h *handlers) searchHistory(ctx context.Context, _ *mcp.CallToolRequest, input engine.HistoryInput) (*mcp.CallToolResult, history.ListResult, error) {
	if h.Service == nil || h.Service.Recorder() == nil {
		return nil, history.ListResult{}, errors.New("search history is disabled")
	}
	entries, err := h.Service.Recorder().Recent(ctx, input.Limit)
	if err != nil {
		return nil, history.ListResult{}, err
	}
	return nil, history.ListResult{Searches: entries, Total: len(entries)}, nil
}
