package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level     `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns config with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Fields: map[string]string{
			"service": "docdex",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (want json or console)", c.Format)
	}
	return nil
}

func (c *Config) sink() zapcore.WriteSyncer {
	return zapcore.AddSync(os.Stdout)
}
