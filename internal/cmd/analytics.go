package cmd

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query audience analytics for a direction",
	Long: `Read the numbers behind the analytics screens: VK member totals and
breakdowns, VK communities, Instagram and TikTok accounts and followers.
Exports are rendered by the export service and stored in object storage.

Examples:
  taspa analytics summary 3
  taspa analytics breakdown 3 --by universities --top 10
  taspa analytics accounts 3 --platform tiktok
  taspa analytics export 3 --dataset vk_members --type xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var analyticsSummaryCmd = &cobra.Command{
	Use:   "summary <direction-id>",
	Short: "VK member and group totals with the gender split",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyticsSummary,
}

var analyticsBreakdownCmd = &cobra.Command{
	Use:   "breakdown <direction-id>",
	Short: "VK members grouped by gender, university, school or day",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyticsBreakdown,
}

var analyticsGroupsCmd = &cobra.Command{
	Use:   "groups <direction-id>",
	Short: "VK communities of a direction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAnalytics(cmd, nav.RouteAnalyticsVK, func(ctx context.Context, a *app) error {
			groups, err := a.client.VKGroups(ctx, id)
			if err != nil {
				return err
			}
			if a.opts.format == "json" {
				return printJSON(cmd.OutOrStdout(), groups)
			}
			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				rows = append(rows, []string{orDash(deref(g.Name)), intOrDash(g.MembersCount)})
			}
			return printTable(cmd.OutOrStdout(), []string{"Community", "Members"}, rows)
		})
	},
}

var analyticsSearchCmd = &cobra.Command{
	Use:   "search <direction-id> <query>",
	Short: "Find VK members by id or name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		return withAnalytics(cmd, nav.RouteAnalyticsVK, func(ctx context.Context, a *app) error {
			members, err := a.client.SearchVKMembers(ctx, id, args[1], limit)
			if err != nil {
				return err
			}
			if a.opts.format == "json" {
				return printJSON(cmd.OutOrStdout(), members)
			}
			rows := make([][]string, 0, len(members))
			for _, m := range members {
				rows = append(rows, []string{m.VKUserID, orDash(deref(m.FullName)), orDash(deref(m.Gender)),
					orDash(deref(m.University)), orDash(deref(m.School))})
			}
			return printTable(cmd.OutOrStdout(), []string{"VK ID", "Name", "Gender", "University", "School"}, rows)
		})
	},
}

var analyticsAccountsCmd = &cobra.Command{
	Use:   "accounts <direction-id>",
	Short: "Tracked Instagram or TikTok accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSocial(cmd, args, (*platform.Client).SocialAccounts)
	},
}

var analyticsFollowersCmd = &cobra.Command{
	Use:   "followers <direction-id>",
	Short: "Followers collected from Instagram or TikTok accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSocial(cmd, args, (*platform.Client).SocialUsers)
	},
}

var analyticsExportCmd = &cobra.Command{
	Use:   "export <direction-id>",
	Short: "Export a dataset to PDF or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyticsExport,
}

func init() {
	analyticsBreakdownCmd.Flags().String("by", platform.BreakdownGender, "gender, universities, schools or timeline")
	analyticsBreakdownCmd.Flags().Int("top", 0, "show only the first N rows")
	analyticsSearchCmd.Flags().Int("limit", 0, "maximum results (server default 50)")
	for _, c := range []*cobra.Command{analyticsAccountsCmd, analyticsFollowersCmd} {
		c.Flags().String("platform", "tiktok", strings.Join(platform.SocialPlatforms, " or "))
	}
	analyticsExportCmd.Flags().String("dataset", "vk_members", strings.Join(platform.ExportDatasets, ", "))
	analyticsExportCmd.Flags().String("type", "xlsx", "file type: "+strings.Join(platform.ExportFormats, " or "))

	analyticsCmd.AddCommand(analyticsSummaryCmd, analyticsBreakdownCmd, analyticsGroupsCmd,
		analyticsSearchCmd, analyticsAccountsCmd, analyticsFollowersCmd, analyticsExportCmd)
	rootCmd.AddCommand(analyticsCmd)
}

// analyticsRoute is the screen that guards a platform's data.
func analyticsRoute(platformName string) nav.Route {
	return nav.Route(string(nav.RouteAnalytics) + "/" + platformName)
}

func withAnalytics(cmd *cobra.Command, route nav.Route, fn func(ctx context.Context, a *app) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, route); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

type summaryReport struct {
	*platform.VKSummary
	Gender []platform.Bucket `json:"gender"`
}

func runAnalyticsSummary(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withAnalytics(cmd, nav.RouteAnalyticsVK, func(ctx context.Context, a *app) error {
		summary, err := a.client.VKSummary(ctx, id)
		if err != nil {
			return err
		}
		gender, err := a.client.VKBreakdown(ctx, platform.BreakdownGender, id)
		if err != nil {
			return err
		}
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), summaryReport{VKSummary: summary, Gender: gender})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Direction:   %d\n", summary.DirectionID)
		fmt.Fprintf(w, "Members:     %d\n", summary.TotalMembers)
		fmt.Fprintf(w, "Communities: %d\n", summary.GroupCount)
		if len(gender) == 0 {
			return nil
		}
		fmt.Fprintln(w)
		return printTable(w, []string{"Gender", "Members"}, bucketRows(gender))
	})
}

func runAnalyticsBreakdown(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	by, _ := cmd.Flags().GetString("by")
	top, _ := cmd.Flags().GetInt("top")
	return withAnalytics(cmd, nav.RouteAnalyticsVK, func(ctx context.Context, a *app) error {
		buckets, err := a.client.VKBreakdown(ctx, by, id)
		if err != nil {
			return err
		}
		if top > 0 && len(buckets) > top {
			buckets = buckets[:top]
		}
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), buckets)
		}
		header := map[string]string{
			platform.BreakdownGender:       "Gender",
			platform.BreakdownUniversities: "University",
			platform.BreakdownSchools:      "School",
			platform.BreakdownTimeline:     "Day",
		}[by]
		return printTable(cmd.OutOrStdout(), []string{header, "Members"}, bucketRows(buckets))
	})
}

func runSocial(cmd *cobra.Command, args []string, list func(*platform.Client, context.Context, string, int) ([]platform.SocialAccount, error)) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("platform")
	if !slices.Contains(platform.SocialPlatforms, name) {
		return errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown platform %q", name)).
			WithSuggestion("Use one of: " + strings.Join(platform.SocialPlatforms, ", "))
	}
	return withAnalytics(cmd, analyticsRoute(name), func(ctx context.Context, a *app) error {
		accounts, err := list(a.client, ctx, name, id)
		if err != nil {
			return err
		}
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), accounts)
		}
		rows := make([][]string, 0, len(accounts))
		for _, acc := range accounts {
			rows = append(rows, []string{acc.Username, intOrDash(acc.FollowersCount),
				orDash(deref(acc.Location)), orDash(deref(acc.URL))})
		}
		return printTable(cmd.OutOrStdout(), []string{"Username", "Followers", "Location", "URL"}, rows)
	})
}

func runAnalyticsExport(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	dataset, _ := cmd.Flags().GetString("dataset")
	fileType, _ := cmd.Flags().GetString("type")
	// datasets are named <platform>_<kind>
	owner, _, _ := strings.Cut(dataset, "_")
	route := nav.RouteAnalytics
	if owner == "vk" || slices.Contains(platform.SocialPlatforms, owner) {
		route = analyticsRoute(owner)
	}
	return withAnalytics(cmd, route, func(ctx context.Context, a *app) error {
		res, err := a.client.Export(ctx, platform.ExportRequest{DirectionID: id, Dataset: dataset, Format: fileType})
		if err != nil {
			return err
		}
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Export written to %s/%s\n", res.Bucket, res.ObjectName)
		return nil
	})
}

func bucketRows(buckets []platform.Bucket) [][]string {
	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []string{b.Key, strconv.Itoa(b.Count)})
	}
	return rows
}

func intOrDash(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}
