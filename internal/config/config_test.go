package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.AI.MaxRetries != 3 || cfg.AI.RetryDelay != "1s" {
		t.Fatalf("unexpected retry defaults: %+v", cfg.AI)
	}
	if cfg.Conversation.HistoryLimit != 20 || cfg.Conversation.MaxToolRounds != 1 {
		t.Fatalf("unexpected conversation defaults: %+v", cfg.Conversation)
	}
	if cfg.AI.Fallback != nil {
		t.Fatalf("fallback should be unset by default")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[database]
driver = "memory"

[ai]
max_retries = 5

[ai.primary]
kind = "openai"
model = "gpt-4o"

[ai.fallback]
kind = "anthropic"
api_key = "k"
temperature = 0.0

[invoker]
validate_arguments = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Database.Driver != "memory" {
		t.Fatalf("unexpected server/database: %+v %+v", cfg.Server, cfg.Database)
	}
	if cfg.AI.Primary.Kind != "openai" || cfg.AI.Primary.Model != "gpt-4o" || cfg.AI.MaxRetries != 5 {
		t.Fatalf("unexpected ai: %+v", cfg.AI)
	}
	if cfg.AI.Fallback == nil || cfg.AI.Fallback.Kind != "anthropic" {
		t.Fatalf("fallback not decoded: %+v", cfg.AI.Fallback)
	}
	if cfg.AI.Primary.Temperature != nil {
		t.Fatalf("unset temperature should stay nil, got %v", *cfg.AI.Primary.Temperature)
	}
	if cfg.AI.Fallback.Temperature == nil || *cfg.AI.Fallback.Temperature != 0 {
		t.Fatalf("explicit zero temperature lost: %v", cfg.AI.Fallback.Temperature)
	}
	if !cfg.Invoker.ValidateArguments || cfg.Invoker.MaxItems != DefaultInvokerMaxItems {
		t.Fatalf("unexpected invoker: %+v", cfg.Invoker)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("empty: %v", got)
	}
	if got := Duration("bogus", time.Second); got != time.Second {
		t.Fatalf("invalid: %v", got)
	}
	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Fatalf("valid: %v", got)
	}
}
