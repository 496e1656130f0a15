package invoker

import (
	"fmt"

	"github.com/useembed/useembed/internal/catalog"
)

func validateArguments(t target, args map[string]any) error {
	schema := catalog.ParametersSchema(t.endpoint.Parameters)
	if t.tool != nil && t.tool.Parameters != nil {
		schema = t.tool.Parameters
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve argument schema: %w", err)
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
