package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/nav"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/session"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer user accounts (admin)",
	Long: `Administer user accounts. Requires the admin role.

Administrators manage plain user accounts only; developers manage everyone
and are the only ones who can grant admin or developer.

Examples:
  taspa users list
  taspa users create --email new@example.com --password s3cret-pass
  taspa users block 42
  taspa users role 42 admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runUsersCreate,
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change an account's name or email",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersUpdate,
}

var usersBlockCmd = &cobra.Command{
	Use:   "block <id>",
	Short: "Deactivate an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUsersAction(cmd, args[0], "Blocked", (*platform.Client).BlockUser)
	},
}

var usersUnblockCmd = &cobra.Command{
	Use:   "unblock <id>",
	Short: "Reactivate an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUsersAction(cmd, args[0], "Unblocked", (*platform.Client).UnblockUser)
	},
}

var usersRoleCmd = &cobra.Command{
	Use:   "role <id> <role>",
	Short: "Replace an account's role (developer)",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersRole,
}

var usersResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <id>",
	Short: "Set a new password on an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersResetPassword,
}

func init() {
	f := usersCreateCmd.Flags()
	f.String("email", "", "account email")
	f.String("password", "", "initial password, at least 8 characters")
	f.String("role", string(authz.RoleUser), "role: user, admin, developer")
	f.String("first-name", "", "first name")
	f.String("last-name", "", "last name")

	f = usersUpdateCmd.Flags()
	f.String("email", "", "new email")
	f.String("first-name", "", "new first name")
	f.String("last-name", "", "new last name")

	usersResetPasswordCmd.Flags().String("password", "", "new password, at least 8 characters")

	usersCmd.AddCommand(usersListCmd, usersCreateCmd, usersUpdateCmd, usersBlockCmd,
		usersUnblockCmd, usersRoleCmd, usersResetPasswordCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		snap, err := a.authorize(ctx, nav.RouteAdminUsers)
		if err != nil {
			return err
		}
		accounts, err := a.client.ListUsers(ctx)
		if err != nil {
			return err
		}

		if a.opts.format == "json" {
			return printJSON(cmd.OutOrStdout(), accounts)
		}
		return printTable(cmd.OutOrStdout(),
			[]string{"ID", "Email", "Name", "Roles", "Active", "Manage"},
			accountRows(snap.Roles(), accounts))
	})
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	email, _ := f.GetString("email")
	password, _ := f.GetString("password")
	roleName, _ := f.GetString("role")
	first, _ := f.GetString("first-name")
	last, _ := f.GetString("last-name")

	if email == "" {
		return errors.NewRequiredError("email")
	}
	role, err := parseRole(roleName)
	if err != nil {
		return err
	}
	if err := platform.ValidatePassword(password); err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		snap, err := a.authorize(ctx, nav.RouteAdminUsers)
		if err != nil {
			return err
		}
		if !authz.CanAssign(snap.Roles(), role) {
			return errors.NewForbiddenError(fmt.Sprintf("create an account with role %s", role)).
				WithSuggestion("Only developers can create admin or developer accounts")
		}

		acc, err := a.client.CreateUser(ctx, platform.NewAccount{
			Email:     email,
			Password:  password,
			Role:      role.String(),
			FirstName: optional(f.Changed("first-name"), first),
			LastName:  optional(f.Changed("last-name"), last),
		})
		if err != nil {
			return err
		}
		return printAccount(cmd, a, "Created", acc)
	})
}

func runUsersUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	f := cmd.Flags()
	email, _ := f.GetString("email")
	first, _ := f.GetString("first-name")
	last, _ := f.GetString("last-name")
	update := platform.AccountUpdate{
		Email:     optional(f.Changed("email"), email),
		FirstName: optional(f.Changed("first-name"), first),
		LastName:  optional(f.Changed("last-name"), last),
	}
	if update.Email == nil && update.FirstName == nil && update.LastName == nil {
		return errors.NewRequiredError("--email, --first-name or --last-name")
	}

	return withManagedAccount(cmd, id, func(ctx context.Context, a *app, _ session.Snapshot, _ *platform.Account) error {
		acc, err := a.client.UpdateUser(ctx, id, update)
		if err != nil {
			return err
		}
		return printAccount(cmd, a, "Updated", acc)
	})
}

func runUsersAction(cmd *cobra.Command, arg, verb string, action func(*platform.Client, context.Context, int) (*platform.Account, error)) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	return withManagedAccount(cmd, id, func(ctx context.Context, a *app, _ session.Snapshot, _ *platform.Account) error {
		acc, err := action(a.client, ctx, id)
		if err != nil {
			return err
		}
		return printAccount(cmd, a, verb, acc)
	})
}

func runUsersRole(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	role, err := parseRole(args[1])
	if err != nil {
		return err
	}

	return withManagedAccount(cmd, id, func(ctx context.Context, a *app, snap session.Snapshot, target *platform.Account) error {
		if !authz.CanChangeRole(snap.Roles(), rolesOf(target.Roles), role) {
			return errors.NewForbiddenError(fmt.Sprintf("give %s the role %s", target.Email, role)).
				WithSuggestion("Only developers can change roles")
		}
		acc, err := a.client.SetUserRole(ctx, id, role.String())
		if err != nil {
			return err
		}
		return printAccount(cmd, a, "Role changed", acc)
	})
}

func runUsersResetPassword(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	password, _ := cmd.Flags().GetString("password")
	if err := platform.ValidatePassword(password); err != nil {
		return err
	}

	return withManagedAccount(cmd, id, func(ctx context.Context, a *app, _ session.Snapshot, _ *platform.Account) error {
		acc, err := a.client.ResetUserPassword(ctx, id, password)
		if err != nil {
			return err
		}
		return printAccount(cmd, a, "Password reset", acc)
	})
}

// withManagedAccount authorizes the users route, finds account id, and runs
// fn only when the session may manage that account.
func withManagedAccount(cmd *cobra.Command, id int, fn func(context.Context, *app, session.Snapshot, *platform.Account) error) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		snap, err := a.authorize(ctx, nav.RouteAdminUsers)
		if err != nil {
			return err
		}

		accounts, err := a.client.ListUsers(ctx)
		if err != nil {
			return err
		}
		var target *platform.Account
		for i := range accounts {
			if accounts[i].ID == id {
				target = &accounts[i]
				break
			}
		}
		if target == nil {
			return errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("no account with id %d", id)).
				WithSuggestion("List accounts with 'taspa users list'")
		}

		if !authz.CanManage(snap.Roles(), rolesOf(target.Roles)) {
			return errors.NewForbiddenError(fmt.Sprintf("manage %s", target.Email)).
				WithSuggestion("Administrators can only manage accounts that are plain users")
		}
		return fn(ctx, a, snap, target)
	})
}

func printAccount(cmd *cobra.Command, a *app, verb string, acc *platform.Account) error {
	if a.opts.format == "json" {
		return printJSON(cmd.OutOrStdout(), acc)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (id %d, roles %v, active %s)\n",
		verb, acc.Email, acc.ID, acc.Roles, yesNo(acc.IsActive))
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}

func parseRole(s string) (authz.Role, error) {
	role, err := authz.ParseRole(s)
	if err != nil {
		return "", errors.New(errors.ErrCodeInputInvalid, err.Error())
	}
	return role, nil
}
