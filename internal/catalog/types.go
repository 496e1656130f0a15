package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool is the AI-facing descriptor of one active endpoint.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	APIID       string             `json:"api_id"`
	EndpointID  string             `json:"endpoint_id"`
}

// ParametersMap renders the parameter schema as a plain JSON object.
func (t Tool) ParametersMap() map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if t.Parameters == nil {
		return out
	}
	raw, err := json.Marshal(t.Parameters)
	if err != nil {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return out
	}
	if _, ok := decoded["properties"]; !ok {
		decoded["properties"] = map[string]any{}
	}
	return decoded
}

// Source builds the tool list of a tenant.
type Source interface {
	Build(ctx context.Context, tenantID string) ([]Tool, error)
}

// Cache stores built tool lists per tenant.
type Cache interface {
	Get(ctx context.Context, tenantID string) ([]Tool, bool, error)
	Set(ctx context.Context, tenantID string, tools []Tool, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string) error
}

// Index keys tools by name.
func Index(tools []Tool) map[string]Tool {
	out := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		out[tool.Name] = tool
	}
	return out
}
