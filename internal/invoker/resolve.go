package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/useembed/useembed/internal/catalog"
	"github.com/useembed/useembed/internal/registry"
)

// APIStore is the registry read side used to resolve tool calls.
type APIStore interface {
	Get(ctx context.Context, tenantID, id string) (registry.API, error)
	FindByName(ctx context.Context, tenantID, name string) (registry.API, error)
}

type target struct {
	api      registry.API
	endpoint registry.Endpoint
	tool     *catalog.Tool
}

// resolve maps a tool name to its API and endpoint, by catalog ids when the name is
// known to the catalog and otherwise by splitting the name at each underscore.
func (i *Invoker) resolve(ctx context.Context, name string, cc CallContext) (target, error) {
	if tool, ok := cc.Tools[name]; ok {
		api, err := i.store.Get(ctx, cc.TenantID, tool.APIID)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return target{}, fmt.Errorf("API not found: %s", name)
			}
			return target{}, err
		}
		if api.IsActive {
			for _, ep := range api.Endpoints {
				if ep.ID == tool.EndpointID && ep.IsActive {
					return target{api: api, endpoint: ep, tool: &tool}, nil
				}
			}
		}
		return target{}, fmt.Errorf("Endpoint not found: %s", name)
	}

	apiFound := false
	for idx := strings.Index(name, "_"); idx > 0 && idx < len(name)-1; {
		apiName := strings.ReplaceAll(name[:idx], "_", " ")
		endpointName := name[idx+1:]
		api, err := i.store.FindByName(ctx, cc.TenantID, apiName)
		switch {
		case err == nil:
			apiFound = true
			for _, ep := range api.Endpoints {
				if ep.Name == endpointName && ep.IsActive {
					return target{api: api, endpoint: ep}, nil
				}
			}
		case !errors.Is(err, registry.ErrNotFound):
			return target{}, err
		}
		next := strings.Index(name[idx+1:], "_")
		if next < 0 {
			break
		}
		idx += next + 1
	}
	if apiFound {
		return target{}, fmt.Errorf("Endpoint not found: %s", name)
	}
	return target{}, fmt.Errorf("API not found: %s", name)
}
