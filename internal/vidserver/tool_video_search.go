package vidserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerVideoSearch(server *mcp.Server, h *handlers) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_search",
		Description: "Find YouTube videos for a free-text video idea. Interprets the idea (keywords, content types, intent), searches the YouTube Data API, scores every candidate for relevance and quality, and returns a deterministically ranked list with query diagnostics, quota usage and follow-up search suggestions. Optional filters: content types, language, region, publish dates, duration. Transcripts cost extra quota.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, OpenWorldHint: boolPtr(true)},
	}, h.videoSearch)
}

func (h *handlers) videoSearch(ctx context.Context, _ *mcp.CallToolRequest, input engine.SearchRequest) (*mcp.CallToolResult, engine.SearchResponse, error) {
	if h.Service == nil {
		return nil, engine.SearchResponse{}, errors.New("video search is not configured")
	}
	resp, err := h.Service.Run(ctx, input)
	if err != nil {
		return nil, engine.SearchResponse{}, err
	}
	return nil, resp, nil
}

func boolPtr(b bool) *bool { return &b }
