package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taspa/console/internal/config"
	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/health"
)

func TestDoctorSignedIn(t *testing.T) {
	e := newEnv(t)
	e.srv.AddAccount("a@b.com", "secret-pass", "user")
	e.login(t, "a@b.com", "secret-pass")

	out, err := e.run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "api-reachable")
	assert.Contains(t, out, "signed in as a@b.com")
	assert.Contains(t, out, "Overall: healthy")
}

func TestDoctorSignedOutIsDegraded(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "--format", "json", "doctor")
	require.NoError(t, err)

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, health.StatusDegraded, report.Status)

	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"config", "credential", "api-reachable", "session"}, names)
}

func TestDoctorSkipsSessionWhenAPIDown(t *testing.T) {
	e := newEnv(t)
	e.srv.AddAccount("a@b.com", "secret-pass", "user")
	e.login(t, "a@b.com", "secret-pass")
	e.srv.SetDown(true)

	out, err := e.run(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "API is not reachable")
	assert.Contains(t, out, "skipped, the API is not reachable")
	assert.Contains(t, out, "Overall: unhealthy")
	assert.Zero(t, e.srv.Calls("POST", "/auth/refresh"))
	assert.FileExists(t, filepath.Join(e.home, config.CredentialsFile))
}

func TestDoctorReportsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, config.ConfigFile),
		[]byte("logging:\n  level: loud\n"), 0o600))

	out, err := execute(t, "--home", home, "--format", "json", "doctor")
	require.Error(t, err)

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "config", report.Checks[0].Name)
	assert.Equal(t, health.StatusUnhealthy, report.Checks[0].Status)
	assert.Equal(t, string(errors.ErrCodeConfigInvalid), report.Checks[0].Details["code"])
}

func TestConfigSetGet(t *testing.T) {
	home := t.TempDir()

	out, err := execute(t, "--home", home, "config", "set", "timeout", "45s")
	require.NoError(t, err)
	assert.Contains(t, out, "Set timeout = 45s")
	assert.FileExists(t, filepath.Join(home, config.ConfigFile))

	out, err = execute(t, "--home", home, "config", "get", "timeout")
	require.NoError(t, err)
	assert.Equal(t, "45s\n", out)

	out, err = execute(t, "--home", home, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, config.ConfigFile)+"\n", out)
}

func TestConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want errors.ErrorCode
	}{
		{"unknown key", []string{"config", "get", "colour"}, errors.ErrCodeInputInvalid},
		{"set unknown key", []string{"config", "set", "colour", "blue"}, errors.ErrCodeInputInvalid},
		{"bad duration", []string{"config", "set", "timeout", "soon"}, errors.ErrCodeInputInvalid},
		{"bad log level", []string{"config", "set", "logging.level", "loud"}, errors.ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			_, err := execute(t, append([]string{"--home", home}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.CodeOf(err))
			assert.NoFileExists(t, filepath.Join(home, config.ConfigFile))
		})
	}
}
