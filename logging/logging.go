// Package logging builds the hclog loggers shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"vidconv/config"
)

// Options describes logger construction parameters.
type Options struct {
	Name   string
	Level  string
	Format string
	Output io.Writer
}

// New constructs an hclog logger. Format "json" selects JSON lines, anything
// else selects the human readable console format.
func New(opts Options) hclog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	name := opts.Name
	if name == "" {
		name = "vidconv"
	}

	jsonFormat := strings.EqualFold(strings.TrimSpace(opts.Format), "json")
	color := hclog.AutoColor
	if jsonFormat {
		color = hclog.ColorOff
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      ParseLevel(opts.Level),
		Output:     output,
		JSONFormat: jsonFormat,
		Color:      color,
	})
}

// NewFromConfig creates the root logger from application config.
func NewFromConfig(cfg *config.Config) hclog.Logger {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	return New(Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// ParseLevel maps a level name to an hclog level, defaulting to info.
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Info
	}
	return l
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}
