package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/taspa/console/internal/config"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/telemetry"
	"github.com/taspa/console/internal/version"
)

// setupLogging builds the command logger from cfg and installs it as the
// process default. Logs go to w, never to command output.
func setupLogging(cfg *config.Config, w io.Writer) *log.Logger {
	info := version.GetInfo()

	logger := log.New(log.Config{
		Level:          log.ParseLevel(cfg.Logging.Level),
		Format:         log.ParseFormat(cfg.Logging.Format),
		Output:         log.NewOutput(w),
		ServiceName:    "taspa",
		ServiceVersion: info.Version,
	})
	log.SetDefaultLogger(logger)
	return logger
}

// setupTelemetry starts tracing when the configuration asks for it. The
// returned cleanup flushes pending spans.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *log.Logger) (*telemetry.Provider, func()) {
	info := version.GetInfo()
	telemCfg := telemetry.Config{
		ServiceName:    "taspa",
		ServiceVersion: info.Version,
		Environment:    telemetryEnvironment(),
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     clampSampleRate(cfg.Telemetry.SampleRate),
	}

	provider, err := telemetry.InitProvider(ctx, telemCfg)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize telemetry")
		provider, _ = telemetry.InitProvider(ctx, telemetry.DefaultConfig())
		return provider, func() {}
	}

	if telemCfg.Enabled {
		logger.Info("Telemetry enabled",
			"endpoint", telemCfg.Endpoint,
			"sample_rate", telemCfg.SampleRate,
		)
	}

	return provider, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush telemetry")
		}
	}
}

func telemetryEnvironment() string {
	if env := os.Getenv(config.EnvPrefix + "_ENV"); env != "" {
		return env
	}
	return "cli"
}

func clampSampleRate(value float64) float64 {
	switch {
	case value <= 0:
		return 0.0
	case value >= 1:
		return 1.0
	default:
		return value
	}
}
