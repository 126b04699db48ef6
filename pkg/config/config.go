// Package config loads the service configuration: a YAML file, an optional
// .env file, and environment overrides on top.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// RedisConfig is optional. When Addr is empty loans are serialized with an
// in-process mutex instead of a Redis lease.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"min=0"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// LendingConfig holds every rate, bound and penalty rule of the loan product.
type LendingConfig struct {
	AnnualRate           decimal.Decimal `yaml:"annual_rate"`
	MinPrincipal         decimal.Decimal `yaml:"min_principal"`
	MaxPrincipal         decimal.Decimal `yaml:"max_principal"`
	MinTerm              int             `yaml:"min_term" validate:"min=1"`
	MaxTerm              int             `yaml:"max_term" validate:"min=1"`
	FirstInstallmentDays int             `yaml:"first_installment_days" validate:"min=0"`
	PrecancelFraction    decimal.Decimal `yaml:"precancel_fraction"`
	PenaltyPerDay        decimal.Decimal `yaml:"penalty_per_day"`
	PenaltyGraceDays     int             `yaml:"penalty_grace_days" validate:"min=0"`
	// PenaltyCap limits the mora charged on one installment. Zero means no cap.
	PenaltyCap decimal.Decimal `yaml:"penalty_cap"`
}

// MonthlyRate is the annual rate spread evenly over twelve months.
func (c LendingConfig) MonthlyRate() decimal.Decimal {
	return c.AnnualRate.Div(decimal.NewFromInt(12))
}

type GroupConfig struct {
	MemberCount   int             `yaml:"member_count" validate:"min=1"`
	WeeklyCapital decimal.Decimal `yaml:"weekly_capital"`
	WeeklySavings decimal.Decimal `yaml:"weekly_savings"`
}

type JobsConfig struct {
	OverdueScanInterval time.Duration `yaml:"overdue_scan_interval"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LogConfig      `yaml:"logging"`
	Lending  LendingConfig  `yaml:"lending"`
	Group    GroupConfig    `yaml:"group"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// Default returns the group's standing rules: 10% annual, $100..$4000 over
// 1..36 months, first installment 45 days out, pre-cancellation after a
// quarter of the term, $0.50 per day of mora, thirteen members paying $3
// capital and $2 savings a week.
func Default() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "jdaloan.db"},
		Redis:    RedisConfig{LockTTL: 10 * time.Second},
		Logging:  LogConfig{Level: "info"},
		Lending: LendingConfig{
			AnnualRate:           decimal.RequireFromString("0.10"),
			MinPrincipal:         decimal.NewFromInt(100),
			MaxPrincipal:         decimal.NewFromInt(4000),
			MinTerm:              1,
			MaxTerm:              36,
			FirstInstallmentDays: 45,
			PrecancelFraction:    decimal.RequireFromString("0.25"),
			PenaltyPerDay:        decimal.RequireFromString("0.50"),
			PenaltyGraceDays:     0,
			PenaltyCap:           decimal.Zero,
		},
		Group: GroupConfig{
			MemberCount:   13,
			WeeklyCapital: decimal.NewFromInt(3),
			WeeklySavings: decimal.NewFromInt(2),
		},
		Jobs: JobsConfig{OverdueScanInterval: 24 * time.Hour},
	}
}

// LoadFromConfigFilePath reads the YAML file at path over the defaults,
// applies environment overrides and validates the result.
func LoadFromConfigFilePath(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromConfig loads .env (if present) and then the file named by
// CONFIG_PATH. A missing config file falls back to defaults plus env.
func LoadFromConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}

	path := GetEnvOrDefaultAsString("CONFIG_PATH", "configs/config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := LoadFromConfigFilePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	cfg.Server.Port = GetEnvOrDefaultAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Database.Path = GetEnvOrDefaultAsString("DATABASE_PATH", cfg.Database.Path)

	cfg.Redis.Addr = GetEnvOrDefaultAsString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = GetEnvOrDefaultAsString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = GetEnvOrDefaultAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.Logging.Level = GetEnvOrDefaultAsString("LOGGING_LEVEL", cfg.Logging.Level)

	cfg.Lending.AnnualRate = GetEnvOrDefaultAsDecimal("LENDING_ANNUAL_RATE", cfg.Lending.AnnualRate)
	cfg.Lending.PenaltyPerDay = GetEnvOrDefaultAsDecimal("LENDING_PENALTY_PER_DAY", cfg.Lending.PenaltyPerDay)
	cfg.Lending.PenaltyCap = GetEnvOrDefaultAsDecimal("LENDING_PENALTY_CAP", cfg.Lending.PenaltyCap)

	cfg.Group.MemberCount = GetEnvOrDefaultAsInt("GROUP_MEMBER_COUNT", cfg.Group.MemberCount)
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	l := cfg.Lending
	if l.AnnualRate.IsNegative() {
		return fmt.Errorf("lending.annual_rate must not be negative, got %s", l.AnnualRate)
	}
	if !l.MinPrincipal.IsPositive() {
		return fmt.Errorf("lending.min_principal must be positive, got %s", l.MinPrincipal)
	}
	if l.MaxPrincipal.LessThan(l.MinPrincipal) {
		return fmt.Errorf("lending.max_principal %s is below min_principal %s", l.MaxPrincipal, l.MinPrincipal)
	}
	if l.MaxTerm < l.MinTerm {
		return fmt.Errorf("lending.max_term %d is below min_term %d", l.MaxTerm, l.MinTerm)
	}
	if l.PrecancelFraction.IsNegative() || l.PrecancelFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("lending.precancel_fraction must be within [0,1], got %s", l.PrecancelFraction)
	}
	if l.PenaltyPerDay.IsNegative() || l.PenaltyCap.IsNegative() {
		return fmt.Errorf("lending penalty values must not be negative")
	}
	if cfg.Group.WeeklyCapital.IsNegative() || cfg.Group.WeeklySavings.IsNegative() {
		return fmt.Errorf("group weekly contributions must not be negative")
	}
	return nil
}

// GetEnvOrDefaultAsInt returns the env variable as an int, or defaultValue
// when unset or invalid.
func GetEnvOrDefaultAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func GetEnvOrDefaultAsString(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return defaultVal
}

// GetEnvOrDefaultAsDecimal returns the env variable as a decimal, or
// defaultValue when unset or invalid.
func GetEnvOrDefaultAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}
