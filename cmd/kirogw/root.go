package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kirohq/gateway/pkg/cli"
	"kirohq/gateway/pkg/config"
	"kirohq/gateway/pkg/storage"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "kirogw",
	Short: "API gateway for the Kiro assistant upstream",
	Long: `Kirogw accepts OpenAI-compatible and Anthropic-compatible chat
requests and proxies them to the Kiro assistant upstream, handling the
binary event-stream protocol, account pooling, credential refresh,
client API keys and usage accounting.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The env file feeds the legacy flat overrides applied during
		// config loading, so it must load first.
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return cli.NewConfigError("", fmt.Sprintf("env file: %v", err))
			}
		} else {
			godotenv.Load()
		}
		return nil
	},
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file path (default .env if present)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig initializes the config singleton from the --config flag.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return config.MustGetConfig(), nil
}

// openStore loads the configuration and opens the gateway database.
// Used by the management subcommands; run wires its own store through
// the server.
func openStore() (*storage.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(storage.DefaultConfig(cfg.Database.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return store, cfg, nil
}
