package vidserver

import (
	"context"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/anatolykoptev/go_vidsearch/internal/engine/idea"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerIdeaInterpret(server *mcp.Server, h *handlers) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "idea_interpret",
		Description: "Show how a video idea is understood without calling YouTube: salient keywords, detected content types, topics, intent, confidence, the search text that would be sent, and alternative queries. Costs no quota.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.ideaInterpret)
}

func (h *handlers) ideaInterpret(_ context.Context, _ *mcp.CallToolRequest, input engine.InterpretInput) (*mcp.CallToolResult, engine.InterpretOutput, error) {
	in := idea.New()
	if h.Service != nil {
		in = h.Service.Interpreter()
	}
	interpreted, err := in.Interpret(input.Idea)
	if err != nil {
		return nil, engine.InterpretOutput{}, err
	}
	out := engine.InterpretOutput{
		QueryInfo:   engine.NewQueryInfo(interpreted),
		SearchText:  idea.SearchText(interpreted),
		Suggestions: idea.Suggest(interpreted),
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	return nil, out, nil
}
