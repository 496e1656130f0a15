package tenants

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("tenant not found")
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrSlugConflict  = errors.New("tenant slug already taken")
	ErrInvalid       = errors.New("invalid tenant settings")
)

const APIKeyPrefix = "ue_"

// Tenant is one customer product embedding the assistant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	APIKey    string    `json:"api_key"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Settings  Settings  `json:"settings"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings configure the widget and the assistant for a tenant.
type Settings struct {
	Greeting           string   `json:"greeting,omitempty" validate:"max=500"`
	Placeholder        string   `json:"placeholder,omitempty" validate:"max=200"`
	Theme              Theme    `json:"theme"`
	AllowedDomains     []string `json:"allowed_domains,omitempty" validate:"dive,hostname_rfc1123"`
	CustomSystemPrompt string   `json:"custom_system_prompt,omitempty" validate:"max=4000"`
}

type Theme struct {
	PrimaryColor string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	Position     string `json:"position,omitempty" validate:"omitempty,oneof=bottom-right bottom-left"`
}

// PublicSettings is what the widget may see.
type PublicSettings struct {
	Name        string `json:"name"`
	Greeting    string `json:"greeting,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Theme       Theme  `json:"theme"`
}

func (t Tenant) Public() PublicSettings {
	return PublicSettings{
		Name:        t.Name,
		Greeting:    t.Settings.Greeting,
		Placeholder: t.Settings.Placeholder,
		Theme:       t.Settings.Theme,
	}
}

type Store interface {
	Create(ctx context.Context, t Tenant) error
	Get(ctx context.Context, id string) (Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (Tenant, error)
	Update(ctx context.Context, t Tenant) error
}

func defaultSettings() Settings {
	return Settings{
		Greeting:    "Hi! How can I help you today?",
		Placeholder: "Type your message...",
		Theme:       Theme{PrimaryColor: "#6366f1", Position: "bottom-right"},
	}
}
