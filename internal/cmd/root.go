package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taspa",
	Short: "TASPA analytics console",
	Long: `taspa is the command line and terminal dashboard for the TASPA social
media analytics platform.

It signs you in, keeps the session across runs, and gives each role the
screens and commands it is allowed to use: analytics for everyone, direction
and user administration for administrators, and scraping control for
developers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with ctx, which is canceled on
// interrupt.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "config file (default is $TASPA_HOME/config.yaml)")
	f.String("home", "", "state directory (default is $TASPA_HOME or ~/.taspa)")
	f.String("api-base", "", "API base URL, overrides api_base")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.String("log-format", "", "log format: text, json")
	f.Duration("timeout", 0, "per-request timeout, overrides timeout (0 keeps the configured value)")
	f.StringP("format", "o", "text", "output format: text, json")
	f.Bool("ephemeral", false, "keep the session in memory only, nothing is written to the home directory")
}
