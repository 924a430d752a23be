// Package commands implements the VoxAgent CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxagent/voxagent/pkg/voxagent/agent"
	"github.com/voxagent/voxagent/pkg/voxagent/config"
	"github.com/voxagent/voxagent/pkg/voxagent/memory"
	"github.com/voxagent/voxagent/pkg/voxagent/prompt"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxagent",
		Short: "VoxAgent - multi-channel conversational agent",
		Long: `VoxAgent is a conversational agent SDK and CLI with tiered memory,
deterministic prompt assembly, and a pre-model security gate.

Examples:
  voxagent chat "where is my order?"
  voxagent chat            # interactive session
  voxagent setup           # guided configuration
  voxagent memory search refund`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newMemoryCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves and loads the configuration honoring the --config
// flag. Falls back to defaults when no file exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// newLogger builds the slog logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// runtime bundles the wired components for a command invocation.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	agent  *agent.Agent
	mem    *memory.Manager
	store  *memory.SQLiteStore
	pruner *memory.Pruner
}

// Close releases the store and stops the pruner.
func (r *runtime) Close() {
	if r.pruner != nil {
		r.pruner.Stop()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("closing store", "error", err)
		}
	}
}

// buildRuntime wires config into a ready agent: SQLite-backed long-term
// memory when a path is configured, the model client, prompt pipeline,
// and retention pruner.
func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)
	config.ResolveAPIKey(cfg, logger)

	rt := &runtime{cfg: cfg, logger: logger}

	memOpts := []memory.ManagerOption{
		memory.WithShortTermCapacity(cfg.Memory.ShortTermCapacity),
		memory.WithPersistenceRules(cfg.PersistenceRules()),
	}
	if cfg.Memory.Path != "" {
		store, err := memory.NewSQLiteStore(cfg.Memory.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
		rt.store = store
		memOpts = append(memOpts, memory.WithLongTerm(memory.NewLongTermMemory(store, logger)))

		rt.pruner = memory.NewPruner(store, cfg.RetentionPolicy(), logger)
		if err := rt.pruner.Start(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("starting retention pruner: %w", err)
		}
	}
	rt.mem = memory.NewManager(logger, memOpts...)

	model := agent.NewOpenAIClient(agent.OpenAIConfig{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     cfg.API.APIKey,
		Model:      cfg.API.Model,
		Timeout:    cfg.API.Timeout(),
		MaxRetries: cfg.API.MaxRetries,
	}, logger)

	optimizer := prompt.NewOptimizer(
		prompt.WithMaxTokens(cfg.Prompt.MaxTokens),
		prompt.WithSummarizer(model),
	)
	builder := prompt.NewBuilder(cfg.Persona)

	rt.agent = agent.New(logger, rt.mem, builder, optimizer, model,
		agent.WithHistoryTokens(cfg.Prompt.HistoryTokens))
	return rt, nil
}
