package vidserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_vidsearch/internal/engine"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerQuotaStatus(server *mcp.Server, h *handlers) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "quota_status",
		Description: "Report the YouTube Data API quota ledger (budget, used, reserved, remaining, next reset, per-operation costs) and response cache statistics. Pass api_key to inspect a caller key's separate ledger.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.quotaStatus)
}

func (h *handlers) quotaStatus(_ context.Context, _ *mcp.CallToolRequest, input engine.QuotaStatusInput) (*mcp.CallToolResult, engine.QuotaStatusOutput, error) {
	if h.Service == nil {
		return nil, engine.QuotaStatusOutput{}, errors.New("video search is not configured")
	}
	out := engine.QuotaStatusOutput{
		Credential: engine.CredentialID(input.APIKey),
		Quota:      h.Service.Provider().Quotas().Snapshot(input.APIKey),
	}
	if h.Cache != nil {
		out.Cache = h.Cache.Stats()
	}
	return nil, out, nil
}
