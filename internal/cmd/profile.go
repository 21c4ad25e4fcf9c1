package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/tui"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View and edit your own account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileShow,
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change your name",
	Long: `Change your first or last name. Only the flags you pass are changed.

Examples:
  taspa profile update --first-name Ada --last-name Lovelace`,
	Args: cobra.NoArgs,
	RunE: runProfileUpdate,
}

var profilePasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	Long: `Change your password. The new password must be at least 8 characters.

Without --current and --new the passwords are prompted for, with the new one
entered twice.`,
	Args: cobra.NoArgs,
	RunE: runProfilePassword,
}

func init() {
	profileUpdateCmd.Flags().String("first-name", "", "first name")
	profileUpdateCmd.Flags().String("last-name", "", "last name")

	profilePasswordCmd.Flags().String("current", "", "current password")
	profilePasswordCmd.Flags().String("new", "", "new password")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd, profilePasswordCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		snap, err := a.authorize(ctx, nav.RouteProfile)
		if err != nil {
			return err
		}
		u := snap.User

		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":         u.ID,
				"email":      u.Email,
				"first_name": u.FirstName,
				"last_name":  u.LastName,
				"roles":      u.Roles.Strings(),
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Email:    %s\n", u.Email)
		fmt.Fprintf(out, "Name:     %s\n", orDash(u.FullName()))
		fmt.Fprintf(out, "Initials: %s\n", u.Initials())
		fmt.Fprintf(out, "Roles:    %s\n", u.Roles.String())
		return nil
	})
}

func runProfileUpdate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	first, _ := f.GetString("first-name")
	last, _ := f.GetString("last-name")
	update := platform.ProfileUpdate{
		FirstName: optional(f.Changed("first-name"), first),
		LastName:  optional(f.Changed("last-name"), last),
	}
	if update.FirstName == nil && update.LastName == nil {
		return errors.NewRequiredError("--first-name or --last-name")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteProfile); err != nil {
			return err
		}
		if err := a.ctrl.UpdateProfile(ctx, update); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated: %s\n", a.ctrl.Snapshot().User.DisplayName())
		return nil
	})
}

func runProfilePassword(cmd *cobra.Command, args []string) error {
	current, _ := cmd.Flags().GetString("current")
	next, _ := cmd.Flags().GetString("new")

	if (current == "" || next == "") && tui.ShouldPrompt() {
		change, err := tui.PromptPasswordChange(platform.ValidatePassword)
		if err != nil {
			return err
		}
		current, next = change.Current, change.Next
	}
	if current == "" {
		return errors.NewRequiredError("current password")
	}
	if err := platform.ValidatePassword(next); err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.authorize(ctx, nav.RouteProfile); err != nil {
			return err
		}
		if err := a.client.ChangePassword(ctx, current, next); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
		return nil
	})
}
