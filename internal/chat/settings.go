package chat

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/useembed/useembed/internal/config"
)

const DefaultTemperature = 0.7

// ProviderSettings are the static settings of one provider.
type ProviderSettings struct {
	APIKey      string
	BaseURL     string
	Model       string
	// Temperature is nil when unset; zero is a valid setting.
	Temperature *float64
	MaxTokens   int
}

func (s ProviderSettings) withDefaults(model string, maxTokens int) ProviderSettings {
	if s.Model == "" {
		s.Model = model
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = maxTokens
	}
	if s.Temperature == nil {
		t := DefaultTemperature
		s.Temperature = &t
	}
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	return s
}

func (s ProviderSettings) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return s.Model
}

func (s ProviderSettings) temperature(opts Options) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	if s.Temperature == nil {
		return DefaultTemperature
	}
	return *s.Temperature
}

func (s ProviderSettings) maxTokens(opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return s.MaxTokens
}

// NewProvider builds the adapter named by cfg.Kind.
func NewProvider(cfg config.ProviderConfig, timeout time.Duration) (Provider, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	settings := ProviderSettings{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	httpClient := &http.Client{Timeout: timeout}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "gemini", "google":
		return NewGeminiProvider(settings, httpClient)
	case "openai":
		return NewOpenAIProvider(settings, httpClient), nil
	case "anthropic":
		return NewAnthropicProvider(settings, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", cfg.Kind)
	}
}
