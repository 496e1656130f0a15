package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/useembed/useembed/internal/registry"
)

// ActiveLister is the registry read used to build catalogs.
type ActiveLister interface {
	ListActive(ctx context.Context, tenantID string) ([]registry.API, error)
}

// Builder derives tool catalogs straight from the registry.
type Builder struct {
	store ActiveLister
}

func NewBuilder(store ActiveLister) *Builder {
	return &Builder{store: store}
}

func (b *Builder) Build(ctx context.Context, tenantID string) ([]Tool, error) {
	apis, err := b.store.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active apis: %w", err)
	}
	return BuildTools(apis), nil
}

// BuildTools converts APIs into tool descriptors, skipping inactive APIs and endpoints.
func BuildTools(apis []registry.API) []Tool {
	tools := []Tool{}
	for _, api := range apis {
		if !api.IsActive {
			continue
		}
		for _, ep := range api.Endpoints {
			if !ep.IsActive {
				continue
			}
			tools = append(tools, Tool{
				Name:        registry.ToolName(api.Name, ep.Name),
				Description: describe(api, ep),
				Parameters:  ParametersSchema(ep.Parameters),
				APIID:       api.ID,
				EndpointID:  ep.ID,
			})
		}
	}
	return tools
}

func describe(api registry.API, ep registry.Endpoint) string {
	summary := ep.Description
	if summary == "" {
		summary = ep.Name
	}
	return fmt.Sprintf("%s: %s. Endpoint: %s %s", api.Name, summary, ep.Method, ep.Path)
}

// ParametersSchema builds the object schema for an endpoint's parameters.
func ParametersSchema(params []registry.Parameter) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		prop := &jsonschema.Schema{Type: p.Type, Description: p.Description}
		if len(p.Enum) > 0 {
			prop.Enum = append([]any(nil), p.Enum...)
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		schema.Properties[p.Name] = prop
		schema.PropertyOrder = append(schema.PropertyOrder, p.Name)
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}
