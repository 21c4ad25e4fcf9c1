package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/credential"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/session"
	"github.com/taspa/console/internal/tui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out, and inspect the session",
	Long: `Manage the TASPA session.

The access token is kept in credentials.json and the refresh cookie in
cookies.json, both under the taspa home directory. Expired access tokens are
refreshed automatically while the refresh cookie is valid.

Examples:
  taspa auth login --email user@example.com
  taspa auth status
  taspa auth logout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in",
	Long: `Sign in with email and password.

Missing values are prompted for when the terminal is interactive. On success
the command prints the signed-in roles and the screen the dashboard opens on.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password (prompted when omitted)")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	creds := tui.Credentials{Email: email, Password: password}
	if (creds.Email == "" || creds.Password == "") && tui.ShouldPrompt() {
		var err error
		if creds, err = tui.PromptCredentials(creds); err != nil {
			return err
		}
	}
	if creds.Email == "" {
		return errors.NewRequiredError("email")
	}
	if creds.Password == "" {
		return errors.NewRequiredError("password")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res := a.ctrl.Login(ctx, creds.Email, creds.Password)
		if !res.OK {
			return errors.New(errors.ErrCodeLoginFailed, res.Error).
				WithSuggestion("Check the email and password, or ask an administrator to reset the password")
		}

		landing := authz.DefaultLandingRoute(res.Roles)
		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"email":   creds.Email,
				"roles":   res.Roles.Strings(),
				"landing": landing,
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Signed in as %s (%s)\n", creds.Email, res.Roles.String())
		fmt.Fprintf(out, "Landing route: %s\n", landing)
		return nil
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		out := cmd.OutOrStdout()
		if _, ok := a.store.Get(); !ok {
			fmt.Fprintln(out, "Not signed in.")
			return nil
		}

		a.ctrl.Logout()
		waitCtx, cancel := context.WithTimeout(ctx, logoutWait)
		defer cancel()
		if err := a.ctrl.Wait(waitCtx); err != nil {
			a.logger.Debug("server logout still running, exiting anyway")
		}

		fmt.Fprintln(out, "Signed out.")
		return nil
	})
}

// statusReport is the JSON form of auth status.
type statusReport struct {
	State     string     `json:"state"`
	Email     string     `json:"email,omitempty"`
	Name      string     `json:"name,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
	Landing   string     `json:"landing,omitempty"`
	Subject   string     `json:"token_subject,omitempty"`
	ExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	Expired   bool       `json:"token_expired,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var report statusReport

		snap := a.ctrl.Init(ctx)
		if token, ok := a.store.Get(); ok {
			if claims, err := credential.Inspect(token); err == nil {
				report.Subject = claims.Subject
				if !claims.ExpiresAt.IsZero() {
					exp := claims.ExpiresAt
					report.ExpiresAt = &exp
				}
				report.Expired = claims.Expired(time.Now())
			}
		}

		report.State = snap.State.String()
		if snap.Authenticated() {
			report.Email = snap.User.Email
			report.Name = snap.User.FullName()
			report.Roles = snap.User.Roles.Strings()
			report.Landing = authz.DefaultLandingRoute(snap.User.Roles)
		}

		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), report)
		}
		return printStatus(cmd, snap, report)
	})
}

func printStatus(cmd *cobra.Command, snap session.Snapshot, r statusReport) error {
	out := cmd.OutOrStdout()
	if !snap.Authenticated() {
		fmt.Fprintln(out, "Not signed in.")
		fmt.Fprintln(out, "Use 'taspa auth login' to sign in.")
		return nil
	}

	fmt.Fprintf(out, "Signed in as %s\n", snap.User.DisplayName())
	fmt.Fprintf(out, "  Email:   %s\n", r.Email)
	fmt.Fprintf(out, "  Roles:   %s\n", snap.User.Roles.String())
	fmt.Fprintf(out, "  Landing: %s\n", r.Landing)
	if r.ExpiresAt != nil {
		fmt.Fprintf(out, "  Token:   expires %s\n", r.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}
