// Package config defines VoxAgent's YAML configuration: the agent's
// persona facets, model API settings, memory storage, and prompt budgets.
// Loading handles .env files, environment variable expansion, and the
// keyring-backed secret chain.
package config

import (
	"fmt"
	"time"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
	"github.com/voxagent/voxagent/pkg/voxagent/prompt"
)

// Config is the root configuration.
type Config struct {
	// Persona holds the prompt facets rendered into the system prompt.
	Persona prompt.BuilderConfig `yaml:"persona"`

	API     APIConfig     `yaml:"api"`
	Memory  MemoryConfig  `yaml:"memory"`
	Prompt  PromptConfig  `yaml:"prompt"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the model endpoint.
type APIConfig struct {
	// BaseURL of an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey may be a literal, an env reference like ${VOXAGENT_API_KEY},
	// or empty when the keyring holds the key.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`

	// TimeoutSeconds is the per-request HTTP timeout (default: 120).
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

// Timeout returns the request timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// MemoryConfig configures the storage tiers.
type MemoryConfig struct {
	// Path of the SQLite database. Empty disables long-term storage.
	Path string `yaml:"path"`

	ShortTermCapacity int `yaml:"short_term_capacity"`

	// MinImportance and PersistTypes override the default persistence
	// policy when set.
	MinImportance int      `yaml:"min_importance"`
	PersistTypes  []string `yaml:"persist_types"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures the scheduled pruning of old records.
type RetentionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MaxAgeDays     int    `yaml:"max_age_days"`
	KeepImportance int    `yaml:"keep_importance"`
	Schedule       string `yaml:"schedule"`
}

// PromptConfig configures token budgets.
type PromptConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	HistoryTokens int `yaml:"history_tokens"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format: text or json.
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with working defaults. A model API key
// is the only thing a fresh install must supply.
func DefaultConfig() *Config {
	return &Config{
		Persona: prompt.BuilderConfig{
			Identity: prompt.Identity{
				Name: "VoxAgent",
				Role: "a helpful assistant",
			},
		},
		API: APIConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
		Memory: MemoryConfig{
			Path:              "voxagent.db",
			ShortTermCapacity: memory.DefaultShortTermCapacity,
			Retention: RetentionConfig{
				Enabled:        false,
				MaxAgeDays:     90,
				KeepImportance: 8,
				Schedule:       "@daily",
			},
		},
		Prompt: PromptConfig{
			MaxTokens:     prompt.DefaultMaxTokens,
			HistoryTokens: 4000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks for configuration mistakes that would fail at runtime.
func (c *Config) Validate() error {
	if c.API.Model == "" {
		return fmt.Errorf("api.model is required")
	}
	if c.Memory.ShortTermCapacity < 0 {
		return fmt.Errorf("memory.short_term_capacity must not be negative")
	}
	if c.Prompt.MaxTokens <= 0 {
		return fmt.Errorf("prompt.max_tokens must be positive")
	}
	if c.Memory.MinImportance < 0 || c.Memory.MinImportance > 10 {
		return fmt.Errorf("memory.min_importance must be 0-10")
	}
	for _, t := range c.Memory.PersistTypes {
		switch memory.RecordType(t) {
		case memory.TypeConversation, memory.TypeDecision, memory.TypeError,
			memory.TypeToolExecution, memory.TypeSystem:
		default:
			return fmt.Errorf("memory.persist_types: unknown type %q", t)
		}
	}
	if c.Memory.Retention.Enabled && c.Memory.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("memory.retention.max_age_days must be positive when retention is enabled")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// PersistenceRules converts the memory section to the manager's policy
// struct.
func (c *Config) PersistenceRules() memory.PersistenceRules {
	types := make([]memory.RecordType, 0, len(c.Memory.PersistTypes))
	for _, t := range c.Memory.PersistTypes {
		types = append(types, memory.RecordType(t))
	}
	return memory.PersistenceRules{
		MinImportance: c.Memory.MinImportance,
		Types:         types,
	}
}

// RetentionPolicy converts the retention section to the pruner's policy
// struct.
func (c *Config) RetentionPolicy() memory.RetentionPolicy {
	return memory.RetentionPolicy{
		Enabled:        c.Memory.Retention.Enabled,
		MaxAgeDays:     c.Memory.Retention.MaxAgeDays,
		KeepImportance: c.Memory.Retention.KeepImportance,
		Schedule:       c.Memory.Retention.Schedule,
	}
}
