// Package config handles configuration loading and validation for the
// exchange core processes.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure.
type Config struct {
	App            AppConfig            `yaml:"app"`
	System         SystemConfig         `yaml:"system"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	OMS            OMSConfig            `yaml:"oms"`
	MatchingEngine MatchingEngineConfig `yaml:"matching_engine"`
	RiskEngine     RiskEngineConfig     `yaml:"risk_engine"`
	Instrument     InstrumentConfig     `yaml:"instrument"`
	Concurrency    ConcurrencyConfig    `yaml:"concurrency"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	Environment string `yaml:"environment" validate:"required,oneof=prod virtual static"`
	EngineType  string `yaml:"engine_type" validate:"required,oneof=memory sqlite dbos"`
	DatabaseURL string `yaml:"database_url"` // required when engine_type is sqlite or dbos
}

// SystemConfig contains process-wide system settings.
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// OrderTypeConfig gates acceptance of one order type.
type OrderTypeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TimeInForceConfig gates acceptance of one time-in-force value.
type TimeInForceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OMSLimitsConfig bounds what the OMS will accept before risk checks run.
type OMSLimitsConfig struct {
	MaxOpenOrdersPerUser     int     `yaml:"max_open_orders_per_user" validate:"required,min=1"`
	MaxOrderSizeContracts    float64 `yaml:"max_order_size_contracts" validate:"required,min=0"`
	MinOrderSizeContracts    float64 `yaml:"min_order_size_contracts" validate:"required,min=0"`
	MaxPriceDeviationPercent float64 `yaml:"max_price_deviation_percent" validate:"min=0,max=100"`
}

// OMSConfig contains order-management parameters (spec.md §6.4).
type OMSConfig struct {
	OrderTypes  map[string]OrderTypeConfig   `yaml:"order_types"`
	TimeInForce map[string]TimeInForceConfig `yaml:"time_in_force"`
	Limits      OMSLimitsConfig              `yaml:"limits"`

	ReconcileIntervalSeconds  int `yaml:"reconcile_interval_seconds" validate:"required,min=1,max=3600"`
	PendingRiskTimeoutSeconds int `yaml:"pending_risk_timeout_seconds" validate:"required,min=1"`
	MEConfirmTimeoutSeconds   int `yaml:"me_confirm_timeout_seconds" validate:"required,min=1"`
}

// PriceMovementCircuitBreakerConfig gates the price-movement halt predicate.
type PriceMovementCircuitBreakerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	PercentThreshold    float64 `yaml:"percent_threshold" validate:"min=0,max=100"`
	TimeWindowSeconds   int     `yaml:"time_window_seconds" validate:"min=1"`
	HaltDurationSeconds int     `yaml:"halt_duration_seconds" validate:"min=1"`
}

// LiquidityCircuitBreakerConfig gates the thin-book halt predicate.
type LiquidityCircuitBreakerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	MinBidAskOrders     int     `yaml:"min_bid_ask_orders" validate:"min=0"`
	MaxSpreadPercent    float64 `yaml:"max_spread_percent" validate:"min=0"`
	HaltDurationSeconds int     `yaml:"halt_duration_seconds" validate:"min=1"`
}

// CircuitBreakerConfig groups the matching engine's halt predicates.
type CircuitBreakerConfig struct {
	PriceMovement PriceMovementCircuitBreakerConfig `yaml:"price_movement"`
	Liquidity     LiquidityCircuitBreakerConfig     `yaml:"liquidity"`
}

// MatchingEngineConfig contains matching-core parameters.
type MatchingEngineConfig struct {
	Algorithm       string               `yaml:"algorithm" validate:"required,oneof=price_time_priority"`
	CircuitBreakers CircuitBreakerConfig `yaml:"circuit_breakers"`
}

// MarginTierConfig is a per-asset margin percentage entry.
type MarginTierConfig struct {
	Symbol     string  `yaml:"symbol" validate:"required"`
	Percentage float64 `yaml:"percentage" validate:"required,min=0,max=1"`
}

// PositionLimitsConfig contains hard position/notional caps.
type PositionLimitsConfig struct {
	MaxNotionalPerUser   float64 `yaml:"max_notional_per_user" validate:"min=0"`
	MaxContractsPerUser  float64 `yaml:"max_contracts_per_user" validate:"min=0"`
	MaxContractsPerOrder float64 `yaml:"max_contracts_per_order" validate:"min=0"`
}

// RiskEngineConfig contains margin-model parameters (spec.md §4.3).
type RiskEngineConfig struct {
	MarginMethod      string               `yaml:"margin_method" validate:"required,oneof=simplified_span"`
	InitialMargin     []MarginTierConfig   `yaml:"initial_margin"`
	MaintenanceMargin []MarginTierConfig   `yaml:"maintenance_margin"`
	PositionLimits    PositionLimitsConfig `yaml:"position_limits"`
}

// StrikeGridConfig contains one asset's strike-generation parameters.
type StrikeGridConfig struct {
	Asset      string  `yaml:"asset" validate:"required"`
	GridSize   float64 `yaml:"grid_size" validate:"required,min=0"`
	UpperBound float64 `yaml:"upper_bound" validate:"required"`
	LowerBound float64 `yaml:"lower_bound" validate:"required"`
	UpperDisp  float64 `yaml:"upper_disp" validate:"min=0"`
	LowerDisp  float64 `yaml:"lower_disp" validate:"min=0"`
}

// ExpiryCadenceConfig parameterizes one expiry cadence's expansion
// (spec.md §4.5). DayOfWeek applies to weekly; DayType applies to
// monthly/quarterly/yearly (one of last_friday, third_friday,
// first_day, last_day).
type ExpiryCadenceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Count     int    `yaml:"count" validate:"min=0"`
	TimeOfDay string `yaml:"time_of_day"` // "HH:MM" in UTC
	DayOfWeek string `yaml:"day_of_week,omitempty" validate:"omitempty,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	DayType   string `yaml:"day_type,omitempty" validate:"omitempty,oneof=last_friday third_friday first_day last_day"`
}

// ExpirySchedule enables and parameterizes expiry cadences for the
// generation cycle.
type ExpirySchedule struct {
	Daily     ExpiryCadenceConfig `yaml:"daily"`
	Weekly    ExpiryCadenceConfig `yaml:"weekly"`
	Monthly   ExpiryCadenceConfig `yaml:"monthly"`
	Quarterly ExpiryCadenceConfig `yaml:"quarterly"`
	Yearly    ExpiryCadenceConfig `yaml:"yearly"`
}

// GenerationConfig contains the instrument generator's asset grid list.
type GenerationConfig struct {
	Assets []StrikeGridConfig `yaml:"assets"`
}

// InstrumentConfig contains instrument-generator parameters.
type InstrumentConfig struct {
	Generation     GenerationConfig `yaml:"generation"`
	ExpirySchedule ExpirySchedule   `yaml:"expiry_schedule"`
}

// ConcurrencyConfig contains per-instrument worker pool settings,
// carried from the teacher's pool-sizing schema.
type ConcurrencyConfig struct {
	MatchingPoolSize   int `yaml:"matching_pool_size" validate:"min=1,max=1000"`
	MatchingPoolBuffer int `yaml:"matching_pool_buffer" validate:"min=1,max=100000"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateOMSConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateMatchingEngineConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateRiskEngineConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateInstrumentConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	validEnvs := []string{"prod", "virtual", "static"}
	if !contains(validEnvs, c.App.Environment) {
		return ValidationError{
			Field:   "app.environment",
			Value:   c.App.Environment,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validEnvs, ", ")),
		}
	}

	validEngines := []string{"memory", "sqlite", "dbos"}
	if !contains(validEngines, c.App.EngineType) {
		return ValidationError{
			Field:   "app.engine_type",
			Value:   c.App.EngineType,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validEngines, ", ")),
		}
	}

	if (c.App.EngineType == "sqlite" || c.App.EngineType == "dbos") && c.App.DatabaseURL == "" {
		return ValidationError{
			Field:   "app.database_url",
			Message: "required when engine_type is sqlite or dbos",
		}
	}

	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateOMSConfig() error {
	if c.OMS.Limits.MaxOrderSizeContracts <= 0 {
		return ValidationError{
			Field:   "oms.limits.max_order_size_contracts",
			Value:   c.OMS.Limits.MaxOrderSizeContracts,
			Message: "must be positive",
		}
	}
	if c.OMS.Limits.MinOrderSizeContracts < 0 {
		return ValidationError{
			Field:   "oms.limits.min_order_size_contracts",
			Value:   c.OMS.Limits.MinOrderSizeContracts,
			Message: "must not be negative",
		}
	}
	if c.OMS.Limits.MinOrderSizeContracts > c.OMS.Limits.MaxOrderSizeContracts {
		return ValidationError{
			Field:   "oms.limits.min_order_size_contracts",
			Message: "must not exceed max_order_size_contracts",
		}
	}
	if c.OMS.ReconcileIntervalSeconds <= 0 {
		return ValidationError{
			Field:   "oms.reconcile_interval_seconds",
			Value:   c.OMS.ReconcileIntervalSeconds,
			Message: "must be positive",
		}
	}
	if c.OMS.PendingRiskTimeoutSeconds <= 0 {
		return ValidationError{
			Field:   "oms.pending_risk_timeout_seconds",
			Value:   c.OMS.PendingRiskTimeoutSeconds,
			Message: "must be positive",
		}
	}
	if c.OMS.MEConfirmTimeoutSeconds <= 0 {
		return ValidationError{
			Field:   "oms.me_confirm_timeout_seconds",
			Value:   c.OMS.MEConfirmTimeoutSeconds,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateMatchingEngineConfig() error {
	if c.MatchingEngine.Algorithm != "price_time_priority" {
		return ValidationError{
			Field:   "matching_engine.algorithm",
			Value:   c.MatchingEngine.Algorithm,
			Message: "only price_time_priority is supported",
		}
	}
	return nil
}

func (c *Config) validateRiskEngineConfig() error {
	if c.RiskEngine.MarginMethod != "simplified_span" {
		return ValidationError{
			Field:   "risk_engine.margin_method",
			Value:   c.RiskEngine.MarginMethod,
			Message: "only simplified_span is supported",
		}
	}
	for _, tier := range c.RiskEngine.InitialMargin {
		if tier.Percentage <= 0 || tier.Percentage > 1 {
			return ValidationError{
				Field:   fmt.Sprintf("risk_engine.initial_margin[%s].percentage", tier.Symbol),
				Value:   tier.Percentage,
				Message: "must be in (0, 1]",
			}
		}
	}
	return nil
}

func (c *Config) validateInstrumentConfig() error {
	for _, asset := range c.Instrument.Generation.Assets {
		if asset.GridSize <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("instrument.generation.assets[%s].grid_size", asset.Asset),
				Value:   asset.GridSize,
				Message: "must be positive",
			}
		}
		if asset.LowerBound >= asset.UpperBound {
			return ValidationError{
				Field:   fmt.Sprintf("instrument.generation.assets[%s]", asset.Asset),
				Message: "lower_bound must be less than upper_bound",
			}
		}
	}
	return nil
}

// String returns a string representation of the configuration. Config
// carries no secrets of its own (spec.md's external interfaces have no
// API-key surface), so nothing is masked.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration, useful for tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Environment: "virtual",
			EngineType:  "memory",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		OMS: OMSConfig{
			OrderTypes: map[string]OrderTypeConfig{
				"limit":  {Enabled: true},
				"market": {Enabled: true},
			},
			TimeInForce: map[string]TimeInForceConfig{
				"gtc": {Enabled: true},
				"ioc": {Enabled: true},
				"fok": {Enabled: true},
				"day": {Enabled: true},
			},
			Limits: OMSLimitsConfig{
				MaxOpenOrdersPerUser:     200,
				MaxOrderSizeContracts:    10000,
				MinOrderSizeContracts:    1,
				MaxPriceDeviationPercent: 20,
			},
			ReconcileIntervalSeconds:  30,
			PendingRiskTimeoutSeconds: 10,
			MEConfirmTimeoutSeconds:   15,
		},
		MatchingEngine: MatchingEngineConfig{
			Algorithm: "price_time_priority",
			CircuitBreakers: CircuitBreakerConfig{
				PriceMovement: PriceMovementCircuitBreakerConfig{
					Enabled:             true,
					PercentThreshold:    10,
					TimeWindowSeconds:   60,
					HaltDurationSeconds: 30,
				},
				Liquidity: LiquidityCircuitBreakerConfig{
					Enabled:             true,
					MinBidAskOrders:     2,
					MaxSpreadPercent:    15,
					HaltDurationSeconds: 30,
				},
			},
		},
		RiskEngine: RiskEngineConfig{
			MarginMethod: "simplified_span",
			InitialMargin: []MarginTierConfig{
				{Symbol: "BTC", Percentage: 0.15},
				{Symbol: "ETH", Percentage: 0.15},
			},
			MaintenanceMargin: []MarginTierConfig{
				{Symbol: "BTC", Percentage: 0.075},
				{Symbol: "ETH", Percentage: 0.075},
			},
			PositionLimits: PositionLimitsConfig{
				MaxNotionalPerUser:   5_000_000,
				MaxContractsPerUser:  10000,
				MaxContractsPerOrder: 1000,
			},
		},
		Instrument: InstrumentConfig{
			Generation: GenerationConfig{
				Assets: []StrikeGridConfig{
					{Asset: "BTC", GridSize: 500, UpperBound: 50000, LowerBound: 50000, UpperDisp: 20000, LowerDisp: 20000},
					{Asset: "ETH", GridSize: 25, UpperBound: 2000, LowerBound: 2000, UpperDisp: 800, LowerDisp: 800},
				},
			},
			ExpirySchedule: ExpirySchedule{
				Daily:   ExpiryCadenceConfig{Enabled: true, Count: 7, TimeOfDay: "08:00"},
				Weekly:  ExpiryCadenceConfig{Enabled: true, Count: 4, TimeOfDay: "08:00", DayOfWeek: "friday"},
				Monthly: ExpiryCadenceConfig{Enabled: true, Count: 3, TimeOfDay: "08:00", DayType: "last_friday"},
				Quarterly: ExpiryCadenceConfig{
					Enabled: true, Count: 4, TimeOfDay: "08:00", DayType: "last_friday",
				},
			},
		},
		Concurrency: ConcurrencyConfig{
			MatchingPoolSize:   8,
			MatchingPoolBuffer: 4096,
		},
	}
}
