package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("api not found")
	ErrNameConflict = errors.New("api name already registered")
	ErrInvalid      = errors.New("invalid api definition")
)

var (
	placeholderPattern = regexp.MustCompile(`\{([^{}/]+)\}`)
	toolNamePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// ChangeFunc is notified after a tenant's registry changes.
type ChangeFunc func(ctx context.Context, tenantID string)

// Service validates and persists registered APIs.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
	onChange []ChangeFunc
	now      func() time.Time
}

func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.With(slog.String("service", "registry")),
		now:      time.Now,
	}
}

// OnChange registers fn to run after every successful write.
func (s *Service) OnChange(fn ChangeFunc) {
	if fn != nil {
		s.onChange = append(s.onChange, fn)
	}
}

func (s *Service) Store() Store { return s.store }

func (s *Service) List(ctx context.Context, tenantID string) ([]API, error) {
	return s.store.List(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (API, error) {
	return s.store.Get(ctx, tenantID, id)
}

func (s *Service) Create(ctx context.Context, tenantID string, in APIInput) (API, error) {
	if err := s.Validate(in); err != nil {
		return API{}, err
	}
	now := s.now().UTC()
	api := fromInput(in, nil)
	api.ID = uuid.NewString()
	api.TenantID = tenantID
	api.CreatedAt = now
	api.UpdatedAt = now
	created, err := s.store.Create(ctx, api)
	if err != nil {
		return API{}, err
	}
	s.changed(ctx, tenantID)
	return created, nil
}

// Update replaces the definition of an existing API. Endpoints are matched to existing
// ones by id, then by name, so their ids survive edits.
func (s *Service) Update(ctx context.Context, tenantID, id string, in APIInput) (API, error) {
	if err := s.Validate(in); err != nil {
		return API{}, err
	}
	existing, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return API{}, err
	}
	api := fromInput(in, &existing)
	api.ID = existing.ID
	api.TenantID = existing.TenantID
	api.CreatedAt = existing.CreatedAt
	api.UpdatedAt = s.now().UTC()
	updated, err := s.store.Update(ctx, api)
	if err != nil {
		return API{}, err
	}
	s.changed(ctx, tenantID)
	return updated, nil
}

// Upsert creates the API or, when one with the same name exists, updates it.
func (s *Service) Upsert(ctx context.Context, tenantID string, in APIInput) (API, bool, error) {
	apis, err := s.store.List(ctx, tenantID)
	if err != nil {
		return API{}, false, err
	}
	for _, api := range apis {
		if strings.EqualFold(api.Name, strings.TrimSpace(in.Name)) {
			updated, err := s.Update(ctx, tenantID, api.ID, in)
			return updated, false, err
		}
	}
	created, err := s.Create(ctx, tenantID, in)
	return created, true, err
}

func (s *Service) SetActive(ctx context.Context, tenantID, id string, active bool) (API, error) {
	api, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return API{}, err
	}
	api.IsActive = active
	api.UpdatedAt = s.now().UTC()
	updated, err := s.store.Update(ctx, api)
	if err != nil {
		return API{}, err
	}
	s.changed(ctx, tenantID)
	return updated, nil
}

func (s *Service) SetEndpointActive(ctx context.Context, tenantID, apiID, endpointID string, active bool) (API, error) {
	api, err := s.store.Get(ctx, tenantID, apiID)
	if err != nil {
		return API{}, err
	}
	found := false
	for i := range api.Endpoints {
		if api.Endpoints[i].ID == endpointID {
			api.Endpoints[i].IsActive = active
			found = true
			break
		}
	}
	if !found {
		return API{}, fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	api.UpdatedAt = s.now().UTC()
	updated, err := s.store.Update(ctx, api)
	if err != nil {
		return API{}, err
	}
	s.changed(ctx, tenantID)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.changed(ctx, tenantID)
	return nil
}

// Validate checks field constraints, derived tool names and path placeholders.
func (s *Service) Validate(in APIInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	switch in.Auth.Kind {
	case "", AuthNone, AuthBearer, AuthAPIKey, AuthBasic, AuthOAuth2:
	default:
		return fmt.Errorf("%w: unsupported auth kind %q", ErrInvalid, in.Auth.Kind)
	}
	seen := map[string]struct{}{}
	for _, ep := range in.Endpoints {
		name := strings.TrimSpace(ep.Name)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate endpoint name %q", ErrInvalid, name)
		}
		seen[name] = struct{}{}
		if tool := ToolName(in.Name, name); !toolNamePattern.MatchString(tool) {
			return fmt.Errorf("%w: derived tool name %q must match %s", ErrInvalid, tool, toolNamePattern.String())
		}
		if err := checkPlaceholders(ep); err != nil {
			return err
		}
	}
	return nil
}

// ToolName derives the AI-facing tool name of an endpoint.
func ToolName(apiName, endpointName string) string {
	return whitespacePattern.ReplaceAllString(apiName, "_") + "_" + endpointName
}

// PathPlaceholders lists the {name} placeholders of a path template in order.
func PathPlaceholders(path string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func checkPlaceholders(ep EndpointInput) error {
	pathParams := map[string]struct{}{}
	for _, p := range ep.Parameters {
		if p.In == InPath {
			pathParams[p.Name] = struct{}{}
		}
	}
	for _, name := range PathPlaceholders(ep.Path) {
		if _, ok := pathParams[name]; !ok {
			return fmt.Errorf("%w: endpoint %q path placeholder {%s} has no path parameter", ErrInvalid, ep.Name, name)
		}
	}
	return nil
}

func fromInput(in APIInput, existing *API) API {
	api := API{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		BaseURL:     strings.TrimRight(strings.TrimSpace(in.BaseURL), "/"),
		Auth:        in.Auth,
		Headers:     in.Headers,
		IsActive:    true,
	}
	if api.Auth.Kind == "" {
		api.Auth.Kind = AuthNone
	}
	if existing != nil {
		api.IsActive = existing.IsActive
	}
	if in.IsActive != nil {
		api.IsActive = *in.IsActive
	}
	api.Endpoints = make([]Endpoint, 0, len(in.Endpoints))
	for _, epIn := range in.Endpoints {
		ep := Endpoint{
			Name:        strings.TrimSpace(epIn.Name),
			Description: strings.TrimSpace(epIn.Description),
			Method:      strings.ToUpper(strings.TrimSpace(epIn.Method)),
			Path:        strings.TrimSpace(epIn.Path),
			Parameters:  epIn.Parameters,
			RequestBody: epIn.RequestBody,
			IsActive:    true,
		}
		if prev, ok := matchEndpoint(existing, epIn); ok {
			ep.ID = prev.ID
			ep.IsActive = prev.IsActive
		} else {
			ep.ID = uuid.NewString()
		}
		if epIn.IsActive != nil {
			ep.IsActive = *epIn.IsActive
		}
		api.Endpoints = append(api.Endpoints, ep)
	}
	return api
}

func matchEndpoint(existing *API, in EndpointInput) (Endpoint, bool) {
	if existing == nil {
		return Endpoint{}, false
	}
	if in.ID != "" {
		for _, ep := range existing.Endpoints {
			if ep.ID == in.ID {
				return ep, true
			}
		}
	}
	for _, ep := range existing.Endpoints {
		if ep.Name == strings.TrimSpace(in.Name) {
			return ep, true
		}
	}
	return Endpoint{}, false
}

func (s *Service) changed(ctx context.Context, tenantID string) {
	for _, fn := range s.onChange {
		fn(ctx, tenantID)
	}
}
