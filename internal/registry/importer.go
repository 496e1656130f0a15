package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// DefinitionFile is the YAML layout accepted by the importer.
//
//	apis:
//	  - name: Orders
//	    base_url: https://api.example.com
//	    auth: {kind: bearer, config: {token: "..."}}
//	    endpoints:
//	      - name: get_status
//	        method: GET
//	        path: /orders/{id}/status
//	        parameters:
//	          - {name: id, in: path, type: string, required: true}
type DefinitionFile struct {
	APIs []APIInput `yaml:"apis"`
}

type ImportSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

func ParseDefinitions(r io.Reader) ([]APIInput, error) {
	var file DefinitionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return file.APIs, nil
}

// Import upserts every definition by API name. Definitions are validated before any write.
func (s *Service) Import(ctx context.Context, tenantID string, defs []APIInput) (ImportSummary, error) {
	for i, def := range defs {
		if err := s.Validate(def); err != nil {
			return ImportSummary{}, fmt.Errorf("definition %d (%s): %w", i, def.Name, err)
		}
	}
	var summary ImportSummary
	for _, def := range defs {
		_, created, err := s.Upsert(ctx, tenantID, def)
		if err != nil {
			return summary, fmt.Errorf("import %s: %w", def.Name, err)
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}
	s.logger.Info("api definitions imported",
		slog.String("tenant_id", tenantID),
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
	)
	return summary, nil
}
