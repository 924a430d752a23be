package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

func TestParseOverlaysDefaults(t *testing.T) {
	yaml := `
persona:
  identity:
    name: Ava
    role: support agent
api:
  model: gpt-4o
memory:
  short_term_capacity: 50
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Persona.Identity.Name != "Ava" {
		t.Errorf("identity name = %q", cfg.Persona.Identity.Name)
	}
	if cfg.API.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.API.Model)
	}
	if cfg.Memory.ShortTermCapacity != 50 {
		t.Errorf("capacity = %d", cfg.Memory.ShortTermCapacity)
	}
	// Untouched fields keep defaults.
	if cfg.API.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url default lost: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 120*time.Second {
		t.Errorf("timeout default lost: %v", cfg.API.Timeout())
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VOX_TEST_SET", "actual")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "set variable", in: "key: ${VOX_TEST_SET}", want: "key: actual"},
		{name: "unset keeps placeholder", in: "key: ${VOX_TEST_UNSET}", want: "key: ${VOX_TEST_UNSET}"},
		{name: "unset uses default", in: "key: ${VOX_TEST_UNSET:-fallback}", want: "key: fallback"},
		{name: "set ignores default", in: "key: ${VOX_TEST_SET:-fallback}", want: "key: actual"},
		{name: "unset required errors", in: "key: ${VOX_TEST_UNSET:?api key required}", wantErr: true},
		{name: "set required ok", in: "key: ${VOX_TEST_SET:?required}", want: "key: actual"},
		{name: "bare variable", in: "key: $VOX_TEST_SET", want: "key: actual"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnv(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), "api key required") {
					t.Errorf("error should carry the message: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("VOXAGENT_API_KEY", "sk-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "voxagent.yaml")
	if err := os.WriteFile(path, []byte("api:\n  model: gpt-4o\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.APIKey != "sk-from-env" {
		t.Errorf("api key = %q, want env value", cfg.API.APIKey)
	}
}

func TestLoadResolvesDatabasePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxagent.yaml")
	if err := os.WriteFile(path, []byte("memory:\n  path: data/agent.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := filepath.Join(dir, "data", "agent.db")
	if cfg.Memory.Path != want {
		t.Errorf("path = %q, want %q", cfg.Memory.Path, want)
	}
}

func TestSaveSanitizesAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxagent.yaml")

	cfg := DefaultConfig()
	cfg.API.APIKey = "sk-real-secret"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-real-secret") {
		t.Fatal("real key written to disk")
	}
	if !strings.Contains(string(data), "${VOXAGENT_API_KEY}") {
		t.Error("expected env reference in saved config")
	}
}

func TestSaveBacksUpExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxagent.yaml")

	if err := os.WriteFile(path, []byte("old: content\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("save: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(bak) != "old: content\n" {
		t.Errorf("backup = %q", bak)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "missing model", mutate: func(c *Config) { c.API.Model = "" }, wantErr: true},
		{name: "negative capacity", mutate: func(c *Config) { c.Memory.ShortTermCapacity = -1 }, wantErr: true},
		{name: "zero max tokens", mutate: func(c *Config) { c.Prompt.MaxTokens = 0 }, wantErr: true},
		{name: "importance out of range", mutate: func(c *Config) { c.Memory.MinImportance = 11 }, wantErr: true},
		{name: "unknown persist type", mutate: func(c *Config) { c.Memory.PersistTypes = []string{"bogus"} }, wantErr: true},
		{name: "valid persist types", mutate: func(c *Config) { c.Memory.PersistTypes = []string{"decision", "error"} }},
		{name: "retention enabled without age", mutate: func(c *Config) {
			c.Memory.Retention.Enabled = true
			c.Memory.Retention.MaxAgeDays = 0
		}, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPersistenceRulesConversion(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Memory.MinImportance = 5
	cfg.Memory.PersistTypes = []string{"decision", "system"}

	rules := cfg.PersistenceRules()
	if rules.MinImportance != 5 {
		t.Errorf("min importance = %d", rules.MinImportance)
	}
	want := []memory.RecordType{memory.TypeDecision, memory.TypeSystem}
	if len(rules.Types) != len(want) {
		t.Fatalf("types = %v", rules.Types)
	}
	for i, typ := range want {
		if rules.Types[i] != typ {
			t.Errorf("types[%d] = %q, want %q", i, rules.Types[i], typ)
		}
	}
}
