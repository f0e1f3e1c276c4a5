package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobspy_api/internal/app"
	"jobspy_api/proxypool"
)

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one proxy refresh cycle and print the working proxies",
		Long: `Fetch candidates from the configured providers, validate them with the
configured concurrency and print the proxies that would enter the pool.`,
		Args: cobra.NoArgs,
		RunE: runRefreshCmd,
	}
}

func runRefreshCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := app.NewManager(cfg.ProxyConf)
	if err != nil {
		return err
	}
	defer m.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := m.Refresh(ctx)
	if errors.Is(err, proxypool.ErrProxiesDisabled) {
		return errors.New("proxy support is disabled (USE_PROXIES=false)")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cycle %s: %d candidates, %d succeeded, %d in pool (%s)\n",
		report.ID, report.Candidates, report.Succeeded, report.WorkingCount, report.Duration.Round(time.Millisecond))
	if report.FetchErr != nil {
		fmt.Fprintf(out, "fetch error: %v\n", report.FetchErr)
	}
	for _, p := range m.Pool().Snapshot().Entries {
		fmt.Fprintf(out, "%-28s %-16s %v\n", p.String(), p.Source, p.Latency.Round(time.Millisecond))
	}
	return nil
}
