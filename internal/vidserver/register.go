// Package vidserver exposes the video search engine as MCP tools.
package vidserver

import (
	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 4

// Deps are the collaborators the tools need.
type Deps struct {
	Service *pipeline.Service
	Cache   *engine.ResponseCache
}

type handlers struct {
	Deps
}

// RegisterTools registers video_search, idea_interpret, quota_status and
// search_history on server.
func RegisterTools(server *mcp.Server, d Deps) {
	h := &handlers{Deps: d}
	registerVideoSearch(server, h)
	registerIdeaInterpret(server, h)
	registerQuotaStatus(server, h)
	registerSearchHistory(server, h)
}
