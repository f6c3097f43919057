package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kirohq/gateway/pkg/cli"
	"kirohq/gateway/pkg/server"
	"kirohq/gateway/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway server",
	Long: `Start the gateway server with the specified configuration.

Examples:
  # Start with default config
  kirogw run

  # Start with a custom config
  kirogw run --config /etc/kirogw/config.yaml

  # Override the listen address
  kirogw run --listen 0.0.0.0:8080

  # Validate the configuration without starting
  kirogw run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	srv, err := server.New(server.Options{
		Config:     cfg,
		ConfigPath: cfgFile,
		Version:    Version,
	})
	if err != nil {
		return err
	}

	ctx, cancel := cli.SignalContext()
	defer cancel()
	return srv.Start(ctx)
}
