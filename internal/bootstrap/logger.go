package bootstrap

import (
	"fmt"

	"optionscore/internal/core"
	"optionscore/internal/logging"
)

// InitLogger builds the process-wide core.ILogger from configuration.
func InitLogger(cfg *Config) (core.ILogger, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger.WithField("environment", cfg.App.Environment), nil
}
