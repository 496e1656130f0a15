package tenants

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

type Service struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.With(slog.String("service", "tenants")),
		now:      time.Now,
	}
}

// Create registers a tenant with a fresh API key. A taken slug gets a random suffix.
func (s *Service) Create(ctx context.Context, name, ownerID string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("tenant name is required")
	}
	key, err := NewAPIKey()
	if err != nil {
		return Tenant{}, err
	}
	now := s.now().UTC()
	t := Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      Slugify(name),
		APIKey:    key,
		OwnerID:   ownerID,
		Settings:  defaultSettings(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.Create(ctx, t)
	if errors.Is(err, ErrSlugConflict) {
		t.Slug = t.Slug + "-" + uuid.NewString()[:6]
		err = s.store.Create(ctx, t)
	}
	if err != nil {
		return Tenant{}, err
	}
	s.logger.Info("tenant created", slog.String("tenant_id", t.ID), slog.String("slug", t.Slug))
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	return s.store.Get(ctx, id)
}

// GetByAPIKey resolves an active tenant from its widget API key.
func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return Tenant{}, ErrInvalidAPIKey
	}
	t, err := s.store.GetByAPIKey(ctx, apiKey)
	if errors.Is(err, ErrNotFound) {
		return Tenant{}, ErrInvalidAPIKey
	}
	if err != nil {
		return Tenant{}, err
	}
	if !t.IsActive {
		return Tenant{}, ErrInvalidAPIKey
	}
	return t, nil
}

func (s *Service) RotateAPIKey(ctx context.Context, id string) (Tenant, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.APIKey, err = NewAPIKey(); err != nil {
		return Tenant{}, err
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, t); err != nil {
		return Tenant{}, err
	}
	s.logger.Info("tenant api key rotated", slog.String("tenant_id", id))
	return t, nil
}

func (s *Service) UpdateSettings(ctx context.Context, id string, settings Settings) (Tenant, error) {
	if err := s.validate.Struct(settings); err != nil {
		return Tenant{}, fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	t.Settings = settings
	t.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, t); err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (s *Service) SetOwner(ctx context.Context, id, ownerID string) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	t.OwnerID = ownerID
	t.UpdatedAt = s.now().UTC()
	return s.store.Update(ctx, t)
}

// CustomPrompt returns the tenant's additional system instructions.
func (s *Service) CustomPrompt(ctx context.Context, tenantID string) (string, error) {
	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return t.Settings.CustomSystemPrompt, nil
}

// NewAPIKey returns "ue_" followed by 24 random bytes in unpadded base64url.
func NewAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func Slugify(name string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "tenant"
	}
	return slug
}
