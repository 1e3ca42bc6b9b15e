package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string           `koanf:"level"`
	Format     string           `koanf:"format"`
	Caller     CallerConfig     `koanf:"caller"`
	Stacktrace StacktraceConfig `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig  `koanf:"redaction"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level string `koanf:"level"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled bool     `koanf:"enabled"`
	Fields  []string `koanf:"fields"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: "error",
		},
		Fields: map[string]string{
			"service": "vaultd",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "credential",
				"master_secret", "password_hash",
			},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q (expected json or console)", c.Format)
	}
	if c.Stacktrace.Level != "" {
		if err := l.UnmarshalText([]byte(c.Stacktrace.Level)); err != nil {
			return fmt.Errorf("invalid stacktrace level %q: %w", c.Stacktrace.Level, err)
		}
	}
	return nil
}

// zapLevel parses the configured level. Validate must have been called.
func (c *Config) zapLevel() zapcore.Level {
	var l zapcore.Level
	_ = l.UnmarshalText([]byte(c.Level))
	return l
}
