package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jobspy_api/internal/shared/config"
	"jobspy_api/internal/shared/logger"
	"jobspy_api/internal/shared/types"
)

const defaultConfigPath = "configs/jobspy.ini"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobspy-api",
		Short: "Job search API with a rotating free-proxy pool",
		Long: `jobspy-api serves a job search API that scrapes public job listings.
Outbound scraping goes through a pool of validated free proxies that is
refreshed in the background.

Configuration is read from an optional ini file and then from environment
variables such as USE_PROXIES and MAX_PROXY_WORKERS, which take precedence.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the ini config file (optional)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewRefreshCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig assembles the configuration and initializes logging.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return types.Config{}, fmt.Errorf("failed to read config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return types.Config{}, fmt.Errorf("failed to load config '%s': %w", path, err)
	}
	if err := logger.InitWithWriter(cfg.LogConf, cmd.ErrOrStderr()); err != nil {
		return types.Config{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
