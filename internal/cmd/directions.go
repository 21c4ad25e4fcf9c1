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

var directionsCmd = &cobra.Command{
	Use:     "directions",
	Aliases: []string{"dir"},
	Short:   "List and manage analysis directions",
	Long: `A direction is a named group of social accounts analysed together.

Anyone signed in can list directions and their sources. Creating, renaming
and deleting them, and attaching sources, requires the admin role.

Examples:
  taspa directions list
  taspa directions create "Regional news"
  taspa directions sources add 3 --type vk_group --identifier club123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var directionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directions",
	Args:  cobra.NoArgs,
	RunE:  runDirectionsList,
}

var directionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a direction (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, a *app) error {
			d, err := a.client.CreateDirection(ctx, args[0])
			if err != nil {
				return err
			}
			return printDirection(cmd, a, "Created", d)
		})
	},
}

var directionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a direction (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ctx context.Context, a *app) error {
			d, err := a.client.RenameDirection(ctx, id, args[1])
			if err != nil {
				return err
			}
			return printDirection(cmd, a, "Renamed", d)
		})
	},
}

var directionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a direction and its sources (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if ok, err := confirm(cmd, fmt.Sprintf("Delete direction %d and all its sources?", id)); err != nil || !ok {
			return err
		}
		return withAdmin(cmd, func(ctx context.Context, a *app) error {
			if err := a.client.DeleteDirection(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted direction %d\n", id)
			return nil
		})
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List and manage the sources of a direction",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list <direction-id>",
	Short: "List sources",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <direction-id>",
	Short: "Attach a source (admin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesAdd,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <direction-id> <source-id>",
	Short: "Detach a source (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dirID, err := parseID(args[0])
		if err != nil {
			return err
		}
		sourceID, err := parseID(args[1])
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ctx context.Context, a *app) error {
			if err := a.client.DeleteSource(ctx, dirID, sourceID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted source %d from direction %d\n", sourceID, dirID)
			return nil
		})
	},
}

func init() {
	directionsDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	sourcesAddCmd.Flags().String("type", "", "source type: "+strings.Join(platform.SourceTypes, ", "))
	sourcesAddCmd.Flags().String("identifier", "", "group or account identifier")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesDeleteCmd)
	directionsCmd.AddCommand(directionsListCmd, directionsCreateCmd, directionsRenameCmd,
		directionsDeleteCmd, sourcesCmd)
	rootCmd.AddCommand(directionsCmd)
}

// withAdmin runs fn when the session may open the directions admin screen.
func withAdmin(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteAdmin); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func runDirectionsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteHome); err != nil {
			return err
		}
		dirs, err := a.client.ListDirections(ctx)
		if err != nil {
			return err
		}

		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), dirs)
		}
		rows := make([][]string, 0, len(dirs))
		for _, d := range dirs {
			rows = append(rows, []string{strconv.Itoa(d.ID), d.Name})
		}
		return printTable(cmd.OutOrStdout(), []string{"ID", "Name"}, rows)
	})
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	dirID, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteHome); err != nil {
			return err
		}
		sources, err := a.client.ListSources(ctx, dirID)
		if err != nil {
			return err
		}

		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), sources)
		}
		rows := make([][]string, 0, len(sources))
		for _, s := range sources {
			rows = append(rows, []string{strconv.Itoa(s.ID), s.SourceType, s.SourceIdentifier})
		}
		return printTable(cmd.OutOrStdout(), []string{"ID", "Type", "Identifier"}, rows)
	})
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	dirID, err := parseID(args[0])
	if err != nil {
		return err
	}
	sourceType, _ := cmd.Flags().GetString("type")
	identifier, _ := cmd.Flags().GetString("identifier")

	return withAdmin(cmd, func(ctx context.Context, a *app) error {
		s, err := a.client.CreateSource(ctx, dirID, sourceType, identifier)
		if err != nil {
			return err
		}
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s to direction %d (id %d)\n",
			s.SourceType, s.SourceIdentifier, s.DirectionID, s.ID)
		return nil
	})
}

func printDirection(cmd *cobra.Command, a *app, verb string, d *platform.Direction) error {
	if a.opts.format == "json" {
		return printJSON(cmd.OutOrStdout(), d)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s direction %q (id %d)\n", verb, d.Name, d.ID)
	return nil
}
