package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/health"
	"github.com/taspa/console/internal/metrics"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/server"
	"github.com/taspa/console/internal/session"
	"github.com/taspa/console/internal/tui"
	"github.com/taspa/console/internal/version"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long: `Open the interactive terminal dashboard.

The dashboard restores the stored session, or shows the sign-in form. Each
role sees the sections it may open: analytics and profile for everyone,
directions and users for administrators, scraping jobs for developers.

With --metrics-addr the dashboard also serves Prometheus metrics and health
probes while it runs:
  /metrics         request, refresh, login and navigation counters
  /health/live     liveness
  /health/ready    API reachable and session signed in
  /health/startup  session restored

Examples:
  taspa dashboard
  taspa dashboard --route /admin/users
  taspa dashboard --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().String("metrics-addr", "", "serve metrics and health probes on this address")
	dashboardCmd.Flags().String("route", string(nav.RouteRoot), "route to open first")

	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !tui.IsInteractive() {
		return errors.New(errors.ErrCodeInputInvalid, "the dashboard needs an interactive terminal").
			WithSuggestion("Use the taspa subcommands in scripts, e.g. 'taspa auth status'")
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	route, _ := cmd.Flags().GetString("route")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		start := nav.Clean(route)
		if !a.router.Known(start) {
			return errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown route %q", route)).
				WithSuggestion("Start at one of the menu routes, e.g. /home or /admin/users")
		}

		probes := health.NewProbeManager(version.GetInfo().Version)
		probes.AddChecker(health.NewAPIChecker(a.client, a.cfg.APIBase))
		probes.AddChecker(health.NewSessionChecker(a.ctrl.Snapshot))

		if metricsAddr != "" {
			srv := server.NewServer(probes, server.Config{
				Address: metricsAddr,
				Metrics: metrics.HandlerFor(a.registry),
				Logger:  a.logger,
			})
			addr, err := srv.Start()
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			a.logger.Info("Serving metrics", "address", addr.String())
			defer func() {
				probes.MarkShutdown()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.WithError(err).Warn("Metrics server did not shut down cleanly")
				}
			}()
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go markWhenResolved(runCtx, a.ctrl, probes)

		app := tui.NewApp(a.ctrl, a.client, a.router,
			tui.WithContext(runCtx),
			tui.WithStartRoute(start),
		)
		_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(runCtx)).Run()
		if err != nil && runCtx.Err() == nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	})
}

// markWhenResolved marks the probes initialized once the session first
// settles on signed in or signed out.
func markWhenResolved(ctx context.Context, ctrl *session.Controller, probes *health.ProbeManager) {
	updates, stop := ctrl.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.State.Resolved() {
				probes.MarkInitialized()
				return
			}
		}
	}
}
