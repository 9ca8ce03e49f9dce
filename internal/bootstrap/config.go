package bootstrap

import (
	"fmt"

	"optionscore/internal/config"
)

// Config is an alias for the project's main configuration struct.
type Config = config.Config

// LoadConfig delegates to the project's config loader, then runs
// pre-flight checks that schema validation alone can't express.
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation.
func checkPreFlight(cfg *Config) error {
	if cfg.App.EngineType == "sqlite" || cfg.App.EngineType == "dbos" {
		if cfg.App.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when engine_type is %q", cfg.App.EngineType)
		}
	}
	return nil
}
