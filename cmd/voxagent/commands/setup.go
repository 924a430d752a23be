package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/voxagent/voxagent/pkg/voxagent/config"
)

// newSetupCmd creates the `voxagent setup` command.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Guides you through creating voxagent.yaml: the agent's persona,
the model endpoint, and memory settings. The API key is stored in the
OS keyring when available, never in the config file.

Examples:
  voxagent setup`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()

	var (
		apiKey       string
		useKeyring   = config.KeyringAvailable()
		storeKeyring = useKeyring
		traits       string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Agent name").
				Description("How the agent introduces itself.").
				Value(&cfg.Persona.Identity.Name),
			huh.NewInput().
				Title("Agent role").
				Placeholder("customer support agent").
				Value(&cfg.Persona.Identity.Role),
			huh.NewInput().
				Title("Company").
				Value(&cfg.Persona.Identity.Company),
			huh.NewInput().
				Title("Personality traits").
				Description("Comma-separated, e.g. friendly, patient.").
				Value(&traits),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("Any model your endpoint serves.").
				Value(&cfg.API.Model),
			huh.NewInput().
				Title("API base URL").
				Description("OpenAI-compatible endpoint.").
				Value(&cfg.API.BaseURL),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Memory database path").
				Description("SQLite file for long-term memory. Empty disables persistence.").
				Value(&cfg.Memory.Path),
			huh.NewConfirm().
				Title("Store API key in the OS keyring?").
				Description("Recommended. Otherwise the key must come from VOXAGENT_API_KEY.").
				Value(&storeKeyring),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup aborted: %w", err)
	}

	for _, t := range strings.Split(traits, ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.Persona.Personality.Traits = append(cfg.Persona.Personality.Traits, t)
		}
	}

	if apiKey != "" {
		if storeKeyring && useKeyring {
			if err := config.StoreKeyring(config.KeyringAPIKey, apiKey); err != nil {
				return fmt.Errorf("storing API key in keyring: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
		} else {
			fmt.Println("Keyring not used; export VOXAGENT_API_KEY to supply the key at runtime.")
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := "voxagent.yaml"
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Try: voxagent chat \"hello\"")
	return nil
}
