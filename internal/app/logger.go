package app

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Format "console" selects the
// human-readable development encoder, anything else JSON.
func NewLogger(level, format string) (*zap.Logger, error) {
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atomic

	return cfg.Build()
}
