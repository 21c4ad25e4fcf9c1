// Package config loads taspa client configuration from a YAML file with
// TASPA_* environment overrides.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/taspa/console/internal/errors"
	"github.com/taspa/console/internal/log"
)

// File names inside the taspa home directory.
const (
	ConfigFile      = "config.yaml"
	CredentialsFile = "credentials.json"
	CookiesFile     = "cookies.json"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASPA"

// Config is the taspa client configuration.
type Config struct {
	APIBase   string          `yaml:"api_base" json:"api_base" envconfig:"API_BASE"`
	Timeout   time.Duration   `yaml:"timeout" json:"timeout" envconfig:"TIMEOUT"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" envconfig:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry" envconfig:"TELEMETRY"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" json:"format" envconfig:"FORMAT"`
}

type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled" envconfig:"ENABLED"`
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty" envconfig:"ENDPOINT"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate" envconfig:"SAMPLE_RATE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBase: "http://localhost:8000/api",
		Timeout: 30 * time.Second,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			SampleRate: 1.0,
		},
	}
}

// DefaultHome returns $TASPA_HOME, or ~/.taspa.
func DefaultHome() (string, error) {
	if h := os.Getenv(EnvPrefix + "_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".taspa"), nil
}

// Path joins a file name onto the taspa home directory.
func Path(home, name string) string {
	return filepath.Join(home, name)
}

// Load reads path over the defaults, then applies TASPA_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "invalid environment override", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without environment overrides or
// validation. It is what 'config set' edits.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "YAML", err)
		}
	case stderrors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read config", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create config directory", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write config", err)
	}
	return nil
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("api_base must be an absolute URL, got %q", c.APIBase)).
			WithSuggestion("Set it with 'taspa config set api_base http://host:port/api'")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("api_base scheme must be http or https, got %q", u.Scheme))
	}
	if c.Timeout < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "timeout must not be negative")
	}
	if _, ok := log.LookupLevel(c.Logging.Level); !ok {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	if _, ok := log.LookupFormat(c.Logging.Format); !ok {
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "telemetry.sample_rate must be between 0 and 1")
	}
	return nil
}

// Keys lists the keys accepted by Get and Set.
func Keys() []string {
	return []string{
		"api_base",
		"timeout",
		"logging.level",
		"logging.format",
		"telemetry.enabled",
		"telemetry.endpoint",
		"telemetry.sample_rate",
	}
}

// Get returns a configuration value by dotted key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_base":
		return c.APIBase, nil
	case "timeout":
		return c.Timeout.String(), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "telemetry.enabled":
		return strconv.FormatBool(c.Telemetry.Enabled), nil
	case "telemetry.endpoint":
		return c.Telemetry.Endpoint, nil
	case "telemetry.sample_rate":
		return strconv.FormatFloat(c.Telemetry.SampleRate, 'g', -1, 64), nil
	default:
		return "", unknownKey(key)
	}
}

// Set assigns a configuration value by dotted key and revalidates.
func (c *Config) Set(key, value string) error {
	next := *c
	switch key {
	case "api_base":
		next.APIBase = value
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInputInvalid, "timeout must be a duration such as 30s", err)
		}
		next.Timeout = d
	case "logging.level":
		next.Logging.Level = value
	case "logging.format":
		next.Logging.Format = value
	case "telemetry.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInputInvalid, "telemetry.enabled must be true or false", err)
		}
		next.Telemetry.Enabled = b
	case "telemetry.endpoint":
		next.Telemetry.Endpoint = value
	case "telemetry.sample_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInputInvalid, "telemetry.sample_rate must be a number", err)
		}
		next.Telemetry.SampleRate = f
	default:
		return unknownKey(key)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func unknownKey(key string) error {
	return errors.New(errors.ErrCodeInputInvalid, fmt.Sprintf("unknown configuration key: %s", key)).
		WithSuggestion("Run 'taspa config show' to list keys")
}
