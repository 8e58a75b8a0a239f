// internal/logging/config.go
package logging

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level
	Format     string
	Output     OutputConfig
	Sampling   SamplingConfig
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string
	Redaction  RedactionConfig
}

// OutputConfig controls where logs are written.
// Logs go to stderr so command output on stdout stays machine-readable.
type OutputConfig struct {
	Stderr bool
	OTEL   bool
}

// SamplingConfig controls log volume reduction.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig controls sensitive data redaction. Fields are key names
// whose values are always hidden; Patterns mask any value they match.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
	Values   ValueRedactor
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stderr: true,
		},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "patternd",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "credential", "private_key",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// FromSettings builds a Config from the user-facing logging settings.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if s.Level != "" {
		lvl, err := LevelFromString(s.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
		}
		cfg.Level = lvl
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	// Console output is for humans; caller noise is not useful there.
	if cfg.Format == "console" {
		cfg.Caller.Enabled = false
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("format %q: want json or console", c.Format))
	}
	if !c.Output.Stderr && !c.Output.OTEL {
		errs = append(errs, errors.New("no output enabled"))
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		errs = append(errs, fmt.Errorf("sampling tick %v must be positive", c.Sampling.Tick))
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		errs = append(errs, fmt.Errorf("caller skip %d is negative", c.Caller.Skip))
	}
	if c.Redaction.Enabled {
		if _, err := compileRules(c.Redaction); err != nil {
			errs = append(errs, err)
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			errs = append(errs, fmt.Errorf("static field %q=%q needs both key and value", k, v))
		}
	}
	return errors.Join(errs...)
}
