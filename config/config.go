/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults below
  2. config.yaml in ., ./config or /etc/premium-engine (optional)
  3. Environment: PREMIUM_ prefix, dots become underscores
     (PREMIUM_SERVER_PORT, PREMIUM_DATABASE_PATH, ...)
  4. Command-line flags, applied by cmd/server

EXAMPLE config.yaml:
  server:
    port: 8080
  database:
    path: premium.db
  logging:
    level: debug
  scheduler:
    enabled: true
    invoice_schedule: "0 0 1 * *"
*/
package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging" validate:"required"`
	Commission CommissionConfig `mapstructure:"commission"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

type CommissionConfig struct {
	AmountDigits int32 `mapstructure:"amount_digits" validate:"gte=0,lte=12"`
	RateDigits   int32 `mapstructure:"rate_digits" validate:"gte=0,lte=12"`
}

type PricingConfig struct {
	CurrencyDigits int32 `mapstructure:"currency_digits" validate:"gte=0,lte=8"`
}

type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	InvoiceSchedule string `mapstructure:"invoice_schedule" validate:"required_if=Enabled true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "premium.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("commission.amount_digits", 8)
	v.SetDefault("commission.rate_digits", 4)
	v.SetDefault("pricing.currency_digits", 2)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.invoice_schedule", "0 0 1 * *") // midnight, first day of the month
}

// Load reads the configuration. A non-empty path replaces the config
// file search and must exist.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/premium-engine")
	}

	v.SetEnvPrefix("PREMIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// Default returns the defaults, for tests and tools.
func Default() *Configuration {
	return &Configuration{
		Server:     ServerConfig{Port: "8080"},
		Database:   DatabaseConfig{Path: "premium.db"},
		Logging:    LoggingConfig{Level: "info"},
		Commission: CommissionConfig{AmountDigits: 8, RateDigits: 4},
		Pricing:    PricingConfig{CurrencyDigits: 2},
		Scheduler:  SchedulerConfig{Enabled: true, InvoiceSchedule: "0 0 1 * *"},
	}
}
