package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the production logger at the configured level
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}
