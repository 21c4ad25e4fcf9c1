package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Credentials are what the login prompt collects.
type Credentials struct {
	Email    string
	Password string
}

// PromptCredentials asks for whatever of email and password is missing. A
// field already set is not asked again.
func PromptCredentials(c Credentials) (Credentials, error) {
	var fields []huh.Field
	if c.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&c.Email).
			Validate(required("email")))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password).
			Validate(required("password")))
	}
	if len(fields) == 0 {
		return c, nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return c, fmt.Errorf("prompt failed: %w", err)
	}
	c.Email = strings.TrimSpace(c.Email)
	return c, nil
}

// PasswordChange is what the password prompt collects.
type PasswordChange struct {
	Current string
	Next    string
	Confirm string
}

// PromptPasswordChange asks for the current password and the new one twice.
// validate runs on the new password as it is typed.
func PromptPasswordChange(validate func(string) error) (PasswordChange, error) {
	var p PasswordChange
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Current password").EchoMode(huh.EchoModePassword).
			Value(&p.Current).Validate(required("current password")),
		huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).
			Value(&p.Next).Validate(validate),
		huh.NewInput().Title("Repeat new password").EchoMode(huh.EchoModePassword).
			Value(&p.Confirm).Validate(func(s string) error {
			if s != p.Next {
				return fmt.Errorf("passwords do not match")
			}
			return nil
		}),
	))

	if err := form.Run(); err != nil {
		return p, fmt.Errorf("prompt failed: %w", err)
	}
	return p, nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	form := huh.NewForm(huh.NewGroup(huh.NewConfirm().
		Title(message).
		Value(&confirmed)))

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// IsInteractive returns true if stdin and stdout are terminals
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
