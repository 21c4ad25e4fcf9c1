package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/taspa/console/internal/authz"
)

// Palette entries adapt to light and dark terminals.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "55", Dark: "63"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
	colorError   = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "28", Dark: "46"}
	colorWarning = lipgloss.AdaptiveColor{Light: "136", Dark: "226"}
	colorLabel   = lipgloss.AdaptiveColor{Light: "30", Dark: "86"}
)

// roleColors tints the role badge in the header.
var roleColors = map[authz.Role]lipgloss.AdaptiveColor{
	authz.RoleUser:      colorMuted,
	authz.RoleAdmin:     colorWarning,
	authz.RoleDeveloper: colorLabel,
}

// Styles are the lipgloss styles shared by the dashboard and the doctor report.
type Styles struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Error       lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Border      lipgloss.Style
	Highlighted lipgloss.Style
	Help        lipgloss.Style
	Label       lipgloss.Style
	Header      lipgloss.Style
}

func DefaultStyles() Styles {
	bold := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(colorMuted)

	return Styles{
		Title:    bold.Foreground(colorAccent).MarginBottom(1),
		Subtitle: muted,
		Error:    bold.Foreground(colorError),
		Success:  bold.Foreground(colorSuccess),
		Warning:  bold.Foreground(colorWarning),
		Muted:    muted,
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(1, 2),
		Highlighted: bold.
			Background(colorAccent).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1),
		Help:   muted.MarginTop(1),
		Label:  bold.Foreground(colorLabel),
		Header: bold.Foreground(colorAccent).Padding(0, 1),
	}
}

// RoleBadge renders the label of the highest role in roles.
func (s Styles) RoleBadge(roles authz.Roles) string {
	r := authz.Highest(roles)
	if r == "" {
		return s.Muted.Render("no role")
	}
	return lipgloss.NewStyle().Foreground(roleColors[r]).Render(r.Label())
}
