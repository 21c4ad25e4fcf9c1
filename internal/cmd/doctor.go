package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/health"
	"github.com/taspa/console/internal/tui"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on configuration, API and session",
	Long: `Run diagnostics to check that taspa can work.

Checks, in order:
  • configuration is valid
  • a credential is stored, decodes, and is not past expiry
  • the API answers its health endpoint
  • the stored session can be restored

The session check runs last because restoring may refresh or clear the
credential the earlier checks looked at.

Examples:
  taspa doctor
  taspa doctor --format json
`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorReport is the complete diagnostics result.
type doctorReport struct {
	Status health.Status   `json:"status"`
	Checks []health.Report `json:"checks"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		checks := []health.Report{{
			Name: "config",
			Result: health.Unhealthy(errors.Message(err)).
				WithDetail("path", opts.configPath).
				WithDetail("code", string(errors.CodeOf(err))),
		}}
		return finishDoctor(cmd, opts.format, checks)
	}
	defer a.close()

	return finishDoctor(cmd, opts.format, diagnose(cmd.Context(), a))
}

// diagnose runs the local and API checks together, then restores the session
// and checks it.
func diagnose(ctx context.Context, a *app) []health.Report {
	local := health.NewManager()
	local.AddChecker(health.NewConfigChecker(a.cfg, a.opts.configPath))
	local.AddChecker(health.NewCredentialChecker(a.store))
	api := health.NewAPIChecker(a.client, a.cfg.APIBase)
	local.AddChecker(api)
	reports := local.Check(ctx)

	for _, r := range reports {
		if r.Name == api.Name() && r.Status == health.StatusUnhealthy {
			return append(reports, health.Report{
				Name:   "session",
				Result: health.Degraded("skipped, the API is not reachable"),
			})
		}
	}

	a.ctrl.Init(ctx)
	sessionCheck := health.NewManager()
	sessionCheck.AddChecker(health.NewSessionChecker(a.ctrl.Snapshot))
	return append(reports, sessionCheck.Check(ctx)...)
}

func finishDoctor(cmd *cobra.Command, format string, checks []health.Report) error {
	report := doctorReport{Status: health.OverallStatus(checks), Checks: checks}

	var err error
	if format == "json" {
		err = printJSON(cmd.OutOrStdout(), report)
	} else {
		err = printDoctor(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}

	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("diagnostics found problems")
	}
	return nil
}

func printDoctor(w io.Writer, report doctorReport) error {
	styles := tui.DefaultStyles()
	mark := map[health.Status]string{
		health.StatusHealthy:   styles.Success.Render("✓"),
		health.StatusDegraded:  styles.Warning.Render("!"),
		health.StatusUnhealthy: styles.Error.Render("✗"),
	}

	fmt.Fprintln(w, styles.Label.Render("taspa diagnostics"))
	fmt.Fprintln(w)
	for _, r := range report.Checks {
		line := fmt.Sprintf("%s %-14s %s", mark[r.Status], r.Name, r.Message)
		if r.Latency > 0 {
			line += styles.Muted.Render(fmt.Sprintf(" (%s)", r.Latency.Round(time.Millisecond)))
		}
		fmt.Fprintln(w, line)

		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("    %s: %v", k, r.Details[k])))
		}
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Overall: %s\n", report.Status)
	return err
}
