// Package commands implements the traveler CLI.
package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-traveler/traveler/internal/config"
)

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "traveler",
		Short: "Agentic Traveler conversational travel assistant",
		Long: `Agentic Traveler answers travel questions, plans trips and learns
traveler preferences over time.

Examples:
  traveler serve
  traveler chat --user 12345
  traveler users import travelers.json`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (overrides $"+config.ConfigFileEnv+")")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newUsersCmd(),
	)
	return root
}

// loadConfig resolves the config file from --config, falling back to the
// environment variable.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if strings.TrimSpace(path) == "" {
		return config.Load()
	}
	return config.LoadFile(strings.TrimSpace(path))
}
