package telemetry

import (
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

// Config describes the tracer provider. The zero value disables tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Enabled bool

	// Endpoint is the OTLP/HTTP collector, either host:port or a URL such as
	// http://localhost:4318/v1/traces. Empty records spans without exporting.
	Endpoint string
	// Insecure forces plain HTTP for a host:port endpoint.
	Insecure bool

	// SampleRate is the fraction of root spans kept, in [0,1].
	SampleRate float64
}

// DefaultConfig is tracing off, sampling everything once turned on.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "taspa",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// exporterOptions turns Endpoint into OTLP/HTTP exporter options.
func (c Config) exporterOptions() ([]otlptracehttp.Option, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}

	if !strings.Contains(c.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpoint(c.Endpoint))
		if c.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return opts, nil
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry endpoint %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, fmt.Errorf("telemetry endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("telemetry endpoint %q has no host", c.Endpoint)
	}
	opts = append(opts, otlptracehttp.WithEndpoint(u.Host))
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	return opts, nil
}
