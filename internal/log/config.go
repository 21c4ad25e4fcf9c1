package log

import (
	"io"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat is LookupFormat without the ok flag.
func ParseFormat(s string) Format {
	f, _ := LookupFormat(s)
	return f
}

// LookupFormat resolves "json", "text" or its alias "console". Unknown names
// give FormatJSON and false.
func LookupFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, true
	case "text", "console":
		return FormatText, true
	default:
		return FormatJSON, false
	}
}

// Output is the destination of log records.
type Output struct {
	writer io.Writer
}

func (o Output) Writer() io.Writer {
	return o.writer
}

func NewOutput(w io.Writer) Output {
	return Output{writer: w}
}

func OutputStdout() Output {
	return Output{writer: os.Stdout}
}

func OutputStderr() Output {
	return Output{writer: os.Stderr}
}

// Config configures New.
type Config struct {
	Level     Level
	Format    Format
	Output    Output
	AddSource bool

	// ServiceName and ServiceVersion are attached to every record.
	ServiceName    string
	ServiceVersion string
}

func baseConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         OutputStderr(),
		ServiceName:    "taspa",
		ServiceVersion: "dev",
	}
}

// DefaultConfig logs info and above as JSON to stderr.
func DefaultConfig() Config {
	return baseConfig()
}

// CLIConfig is what the taspa command starts from. Stdout belongs to command
// output, so logs go to stderr and only warnings show.
func CLIConfig() Config {
	c := baseConfig()
	c.Level = LevelWarn
	c.Format = FormatText
	return c
}

// DevelopmentConfig logs everything as text with source locations.
func DevelopmentConfig() Config {
	c := baseConfig()
	c.Level = LevelDebug
	c.Format = FormatText
	c.AddSource = true
	return c
}

func ProductionConfig() Config {
	c := baseConfig()
	c.ServiceVersion = "unknown"
	return c
}
