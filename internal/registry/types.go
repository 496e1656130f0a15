package registry

import (
	"context"
	"time"
)

// AuthKind enumerates how outbound calls to a registered API authenticate.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthAPIKey AuthKind = "api_key"
	AuthBasic  AuthKind = "basic"
	AuthOAuth2 AuthKind = "oauth2"
)

// ParamLocation is where a parameter value is bound in the outbound request.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InBody   ParamLocation = "body"
)

// API is a tenant's registered REST API.
type API struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	BaseURL     string            `json:"base_url"`
	Auth        Auth              `json:"auth"`
	Headers     map[string]string `json:"headers,omitempty"`
	Endpoints   []Endpoint        `json:"endpoints"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Auth holds the auth kind and its opaque settings.
//
// bearer: token. api_key: header_name, key, optional in=query.
// basic: username, password. oauth2: token_url, client_id, client_secret, optional scopes.
type Auth struct {
	Kind   AuthKind       `json:"kind" yaml:"kind"`
	Config map[string]any `json:"config,omitempty" yaml:"config"`
}

// Endpoint is one operation of an API.
type Endpoint struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
	RequestBody map[string]any `json:"request_body,omitempty"`
	IsActive    bool           `json:"is_active"`
}

// Parameter describes one input of an endpoint.
type Parameter struct {
	Name        string        `json:"name" yaml:"name" validate:"required"`
	In          ParamLocation `json:"in" yaml:"in" validate:"required,oneof=path query header body"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Required    bool          `json:"required,omitempty" yaml:"required"`
	Type        string        `json:"type" yaml:"type" validate:"required,oneof=string number integer boolean array object"`
	Default     any           `json:"default,omitempty" yaml:"default"`
	Enum        []any         `json:"enum,omitempty" yaml:"enum"`
}

// APIInput is the write model used by the dashboard and the YAML importer.
type APIInput struct {
	Name        string            `json:"name" yaml:"name" validate:"required,max=100"`
	Description string            `json:"description,omitempty" yaml:"description"`
	BaseURL     string            `json:"base_url" yaml:"base_url" validate:"required,url"`
	Auth        Auth              `json:"auth" yaml:"auth"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers"`
	Endpoints   []EndpointInput   `json:"endpoints" yaml:"endpoints" validate:"dive"`
	IsActive    *bool             `json:"is_active,omitempty" yaml:"is_active"`
}

type EndpointInput struct {
	ID          string         `json:"id,omitempty" yaml:"id"`
	Name        string         `json:"name" yaml:"name" validate:"required,max=64"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Method      string         `json:"method" yaml:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path        string         `json:"path" yaml:"path" validate:"required,startswith=/"`
	Parameters  []Parameter    `json:"parameters,omitempty" yaml:"parameters" validate:"dive"`
	RequestBody map[string]any `json:"request_body,omitempty" yaml:"request_body"`
	IsActive    *bool          `json:"is_active,omitempty" yaml:"is_active"`
}

// Store is the registry persistence contract.
type Store interface {
	// ListActive returns the tenant's active APIs in creation order.
	ListActive(ctx context.Context, tenantID string) ([]API, error)
	List(ctx context.Context, tenantID string) ([]API, error)
	Get(ctx context.Context, tenantID, id string) (API, error)
	// FindByName matches name case-insensitively among the tenant's active APIs.
	FindByName(ctx context.Context, tenantID, name string) (API, error)
	Create(ctx context.Context, api API) (API, error)
	Update(ctx context.Context, api API) (API, error)
	Delete(ctx context.Context, tenantID, id string) error
}
