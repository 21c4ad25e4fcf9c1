package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Control scraping jobs (developer)",
	Long: `List, start and stop scraping jobs and tune the scrapers. Requires the
developer role.

Examples:
  taspa jobs list
  taspa jobs start --service vk --direction 3
  taspa jobs stop 17
  taspa jobs config show vk
  taspa jobs config set tiktok --proxy http://p1:8080 --rpm 60`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeveloper(cmd, func(ctx context.Context, a *app) error {
			jobs, err := a.client.ListJobs(ctx)
			if err != nil {
				return err
			}
			if a.opts.format == "json" {
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				dir := "-"
				if j.DirectionID != nil {
					dir = strconv.Itoa(*j.DirectionID)
				}
				rows = append(rows, []string{strconv.Itoa(j.ID), j.ServiceName, dir, j.Status, orDash(j.CreatedAt)})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "Service", "Direction", "Status", "Created"}, rows)
		})
	},
}

var jobsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")
		direction, _ := cmd.Flags().GetInt("direction")
		return withDeveloper(cmd, func(ctx context.Context, a *app) error {
			job, err := a.client.StartJob(ctx, service, direction)
			if err != nil {
				return err
			}
			if a.opts.format == "json" {
				return printJSON(cmd.OutOrStdout(), job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s job %d (%s)\n", job.ServiceName, job.ID, job.Status)
			return nil
		})
	},
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withDeveloper(cmd, func(ctx context.Context, a *app) error {
			if err := a.client.StopJob(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped job %d\n", id)
			return nil
		})
	},
}

var jobsConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change scraper settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsConfigShowCmd = &cobra.Command{
	Use:   "show <service>",
	Short: "Show a scraper's proxies, key and limits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeveloper(cmd, func(ctx context.Context, a *app) error {
			cfg, err := a.client.ScrapeConfig(ctx, args[0])
			if err != nil {
				return err
			}
			return printScrapeConfig(cmd, a, args[0], cfg)
		})
	},
}

var jobsConfigSetCmd = &cobra.Command{
	Use:   "set <service>",
	Short: "Change a scraper's settings; unset flags keep their value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var update platform.ScrapeConfigUpdate
		flags := cmd.Flags()
		if flags.Changed("proxy") || flags.Changed("clear-proxies") {
			proxies, _ := flags.GetStringArray("proxy")
			if proxies == nil {
				proxies = []string{}
			}
			update.Proxies = &proxies
		}
		if flags.Changed("api-key") {
			key, _ := flags.GetString("api-key")
			update.APIKey = &key
		}
		if flags.Changed("rpm") {
			rpm, _ := flags.GetInt("rpm")
			update.RequestsPerMin = &rpm
		}
		if flags.Changed("concurrency") {
			n, _ := flags.GetInt("concurrency")
			update.Concurrency = &n
		}

		return withDeveloper(cmd, func(ctx context.Context, a *app) error {
			cfg, err := a.client.UpdateScrapeConfig(ctx, args[0], update)
			if err != nil {
				return err
			}
			return printScrapeConfig(cmd, a, args[0], cfg)
		})
	},
}

func init() {
	jobsStartCmd.Flags().String("service", "", "scraper service: "+strings.Join(platform.ScrapeServices, ", "))
	jobsStartCmd.Flags().Int("direction", 0, "direction id to scrape")

	f := jobsConfigSetCmd.Flags()
	f.StringArray("proxy", nil, "proxy URL, repeat for several; replaces the list")
	f.Bool("clear-proxies", false, "remove all proxies")
	f.String("api-key", "", "API key the scraper authenticates with")
	f.Int("rpm", 0, "requests per minute")
	f.Int("concurrency", 0, "parallel requests")
	jobsConfigSetCmd.MarkFlagsMutuallyExclusive("proxy", "clear-proxies")
	jobsConfigCmd.AddCommand(jobsConfigShowCmd, jobsConfigSetCmd)

	jobsCmd.AddCommand(jobsListCmd, jobsStartCmd, jobsStopCmd, jobsConfigCmd)
	rootCmd.AddCommand(jobsCmd)
}

func withDeveloper(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteDeveloper); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func printScrapeConfig(cmd *cobra.Command, a *app, service string, cfg *platform.ScrapeConfig) error {
	masked := *cfg
	if cfg.APIKey != nil {
		key := maskKey(*cfg.APIKey)
		masked.APIKey = &key
	}
	if a.opts.format == "json" {
		return printJSON(cmd.OutOrStdout(), masked)
	}

	proxies := "-"
	if len(cfg.Proxies) > 0 {
		proxies = strings.Join(cfg.Proxies, ", ")
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Service:     %s\n", service)
	fmt.Fprintf(w, "Proxies:     %s\n", proxies)
	fmt.Fprintf(w, "API key:     %s\n", orDash(deref(masked.APIKey)))
	fmt.Fprintf(w, "Req/min:     %s\n", intOrDash(cfg.RequestsPerMin))
	fmt.Fprintf(w, "Concurrency: %s\n", intOrDash(cfg.Concurrency))
	return nil
}

// maskKey keeps the last four characters of a secret.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
