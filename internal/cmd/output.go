package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/platform"
	"github.com/taspa/console/internal/tui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to show.")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// accountRows renders accounts with whether acting may manage each one.
func accountRows(acting authz.Roles, accounts []platform.Account) [][]string {
	rows := make([][]string, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, []string{
			strconv.Itoa(acc.ID),
			acc.Email,
			orDash(strings.TrimSpace(deref(acc.FirstName) + " " + deref(acc.LastName))),
			strings.Join(acc.Roles, ","),
			yesNo(acc.IsActive),
			yesNo(authz.CanManage(acting, rolesOf(acc.Roles))),
		})
	}
	return rows
}

// rolesOf parses role names, skipping unknown ones.
func rolesOf(names []string) authz.Roles {
	roles := make(authz.Roles, 0, len(names))
	for _, n := range names {
		if r, err := authz.ParseRole(n); err == nil {
			roles = append(roles, r)
		}
	}
	return roles
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// optional returns a pointer to the flag's value when it was set.
func optional(set bool, value string) *string {
	if !set {
		return nil
	}
	return &value
}

// confirm asks before a destructive action. It passes without asking when
// --yes is set or nobody is at the terminal.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes || !tui.ShouldPrompt() {
		return true, nil
	}
	ok, err := tui.PromptForConfirmation(question, false)
	if err != nil {
		return false, err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
	}
	return ok, nil
}
