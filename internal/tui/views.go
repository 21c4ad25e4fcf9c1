package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/taspa/console/internal/authz"
	"github.com/taspa/console/internal/nav"
)

// View renders the current screen.
func (a App) View() string {
	if a.quitting {
		return ""
	}
	if a.decision.Outcome == nav.Pending {
		return a.spinner.View() + " " + a.styles.Muted.Render("Restoring session...")
	}

	var body string
	switch a.decision.Screen {
	case nav.ScreenLogin:
		return a.renderLogin()
	case nav.ScreenHome:
		body = a.renderHome()
	case nav.ScreenAnalytics:
		body = a.renderAnalytics()
	case nav.ScreenProfile:
		body = a.renderProfile()
	case nav.ScreenUsers:
		body = a.renderUsers()
	case nav.ScreenDirections:
		body = a.renderDirections()
	case nav.ScreenJobs:
		body = a.renderJobs()
	default:
		body = a.renderNotFound()
	}
	return a.frame(body)
}

// frame wraps an authenticated screen with the header, menu and help line.
func (a App) frame(body string) string {
	var b strings.Builder

	b.WriteString(a.styles.Title.Render("TASPA"))
	if u := a.snap.User; u != nil {
		b.WriteString("  ")
		b.WriteString(a.styles.Subtitle.Render(fmt.Sprintf("%s (%s)", u.DisplayName(), a.styles.RoleBadge(u.Roles))))
	}
	b.WriteString("\n")
	b.WriteString(a.renderMenu())
	b.WriteString("\n\n")

	if a.notice != "" {
		b.WriteString(a.styles.Success.Render(a.notice) + "\n\n")
	}
	if a.lastErr != "" {
		b.WriteString(a.styles.Error.Render("Error: ") + a.lastErr + "\n\n")
	}
	if a.loading {
		b.WriteString(a.spinner.View() + " " + a.styles.Muted.Render("Loading...") + "\n\n")
	}

	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(a.styles.Help.Render(a.help.View(keys)))
	return b.String()
}

func (a App) renderMenu() string {
	items := a.router.Menu(a.snap.Roles())
	parts := make([]string, 0, len(items))
	for i, item := range items {
		label := fmt.Sprintf("%d %s", i+1, item.Label)
		if item.Route == a.route {
			parts = append(parts, a.styles.Highlighted.Render(label))
		} else {
			parts = append(parts, a.styles.Muted.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}

func (a App) renderLogin() string {
	var b strings.Builder

	b.WriteString(a.styles.Title.Render("TASPA sign in"))
	b.WriteString("\n")
	if a.notice != "" {
		b.WriteString(a.styles.Success.Render(a.notice) + "\n\n")
	}
	b.WriteString(a.email.View())
	b.WriteString("\n")
	b.WriteString(a.password.View())
	b.WriteString("\n\n")

	switch {
	case a.busy:
		b.WriteString(a.spinner.View() + " Signing in...")
	case a.lastErr != "":
		b.WriteString(a.styles.Error.Render(a.lastErr))
	}
	b.WriteString("\n")
	b.WriteString(a.styles.Help.Render("tab next field • enter sign in • ctrl+c quit"))
	return a.styles.Border.Render(b.String())
}

func (a App) renderHome() string {
	u := a.snap.User
	var b strings.Builder
	b.WriteString(a.styles.Label.Render("Welcome, " + u.DisplayName()))
	b.WriteString("\n\n")
	b.WriteString("Use the number keys to open a section.")
	return b.String()
}

func (a App) renderAnalytics() string {
	name := map[string]string{"vk": "VK", "instagram": "Instagram", "tiktok": "TikTok"}[nav.AnalyticsPlatform(a.route)]
	var b strings.Builder
	b.WriteString(a.styles.Label.Render(name + " analytics"))
	b.WriteString("\n\n")

	v := a.analytics
	switch {
	case v == nil:
		return b.String()
	case v.direction == nil:
		b.WriteString(a.styles.Muted.Render("No directions yet."))
		return b.String()
	}

	fmt.Fprintf(&b, "%s%s %s\n", a.styles.Label.Width(13).Render("Direction"), v.direction.Name,
		a.styles.Muted.Render(fmt.Sprintf("(%d of %d)", v.position, v.total)))
	if v.summary != nil {
		fmt.Fprintf(&b, "%s%d\n", a.styles.Label.Width(13).Render("Members"), v.summary.TotalMembers)
		fmt.Fprintf(&b, "%s%d\n", a.styles.Label.Width(13).Render("Communities"), v.summary.GroupCount)
		if len(v.gender) > 0 {
			t := a.table("Gender", "Members")
			for _, g := range v.gender {
				t.Row(g.Key, strconv.Itoa(g.Count))
			}
			b.WriteString(t.Render())
			b.WriteString("\n")
		}
	} else {
		fmt.Fprintf(&b, "%s%d\n", a.styles.Label.Width(13).Render("Accounts"), len(v.accounts))
		if len(v.accounts) > 0 {
			t := a.table("Username", "Followers")
			for _, acc := range v.accounts {
				followers := "-"
				if acc.FollowersCount != nil {
					followers = strconv.Itoa(*acc.FollowersCount)
				}
				t.Row(acc.Username, followers)
			}
			b.WriteString(t.Render())
			b.WriteString("\n")
		}
	}
	b.WriteString(a.styles.Muted.Render("Charts are available in the web console."))
	return b.String()
}

func (a App) renderProfile() string {
	u := a.snap.User
	rows := [][]string{
		{"Email", u.Email},
		{"Name", orDash(u.FullName())},
		{"Roles", u.Roles.String()},
		{"Initials", u.Initials()},
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(a.styles.Label.Width(10).Render(r[0]))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return b.String()
}

func (a App) renderUsers() string {
	acting := a.snap.Roles()
	t := a.table("ID", "Email", "Name", "Roles", "Active", "Manage")
	for _, acc := range a.users {
		manage := "no"
		if authz.CanManage(acting, rolesOf(acc.Roles)) {
			manage = "yes"
		}
		t.Row(
			strconv.Itoa(acc.ID),
			acc.Email,
			orDash(strings.TrimSpace(deref(acc.FirstName)+" "+deref(acc.LastName))),
			strings.Join(acc.Roles, ","),
			yesNo(acc.IsActive),
			manage,
		)
	}
	return a.styles.Label.Render("Users") + "\n" + t.Render()
}

func (a App) renderDirections() string {
	t := a.table("ID", "Name")
	for _, d := range a.directions {
		t.Row(strconv.Itoa(d.ID), d.Name)
	}
	return a.styles.Label.Render("Directions") + "\n" + t.Render()
}

func (a App) renderJobs() string {
	t := a.table("ID", "Service", "Direction", "Status", "Created")
	for _, j := range a.jobs {
		dir := "-"
		if j.DirectionID != nil {
			dir = strconv.Itoa(*j.DirectionID)
		}
		t.Row(strconv.Itoa(j.ID), j.ServiceName, dir, j.Status, orDash(j.CreatedAt))
	}
	return a.styles.Label.Render("Scraping jobs") + "\n" + t.Render()
}

func (a App) renderNotFound() string {
	return a.styles.Warning.Render("Page not found: "+string(a.route)) + "\n\n" +
		a.styles.Muted.Render("Pick a section from the menu.")
}

func (a App) table(headers ...string) *table.Table {
	header := a.styles.Header
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(a.styles.Muted).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

// rolesOf parses an account's role names, skipping unknown ones.
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
