package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/etl/internal/platform/db"
	"github.com/ehr/etl/internal/transform"
)

// Variables naming the two input workbooks; also used in not-found errors.
const (
	EnvAppointmentsPath = "APPOINTMENTS_XLSX"
	EnvDoctorsPath      = "DOCTORS_XLSX"
)

type Config struct {
	Env              string `mapstructure:"ENV"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema         string `mapstructure:"DB_SCHEMA"`
	AppointmentsPath string `mapstructure:"APPOINTMENTS_XLSX"`
	DoctorsPath      string `mapstructure:"DOCTORS_XLSX"`
	ProcessedDir     string `mapstructure:"PROCESSED_DIR"`
	DiagnosticsDir   string `mapstructure:"DIAGNOSTICS_DIR"`
	LogDir           string `mapstructure:"LOG_DIR"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	StatusMap        string `mapstructure:"STATUS_MAP"`
	ValidStatuses    string `mapstructure:"VALID_STATUSES"`
	MaxBookingYear   int    `mapstructure:"MAX_BOOKING_YEAR"`
}

// Load reads ./.env when present, then the environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom reads envFile when present, then the environment. Environment
// variables win over the file.
func LoadFrom(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_SCHEMA", "healthtech")
	v.SetDefault(EnvAppointmentsPath, "./data/raw/appointments.xlsx")
	v.SetDefault(EnvDoctorsPath, "./data/raw/doctors.xlsx")
	v.SetDefault("PROCESSED_DIR", "./data/processed")
	v.SetDefault("DIAGNOSTICS_DIR", "./logs")
	v.SetDefault("LOG_DIR", "./logs")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("STATUS_MAP", "confirmed:confirmed,confirmed.:confirmed,cancelled:cancelled,canceled:cancelled")
	v.SetDefault("VALID_STATUSES", "confirmed,cancelled")
	v.SetDefault("MAX_BOOKING_YEAR", 2070)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
		EnvAppointmentsPath, EnvDoctorsPath, "PROCESSED_DIR", "DIAGNOSTICS_DIR",
		"LOG_DIR", "LOG_LEVEL", "STATUS_MAP", "VALID_STATUSES", "MAX_BOOKING_YEAR",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading the env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Rules builds the status vocabulary and date cutoff handed to the transform
// stage.
func (c *Config) Rules() (transform.Rules, error) {
	rules := transform.Rules{
		StatusMap:      make(map[string]string),
		ValidStatuses:  make(map[string]bool),
		MaxBookingYear: c.MaxBookingYear,
	}

	for _, pair := range splitList(c.StatusMap) {
		// The raw token may itself contain a colon; the canonical value never does.
		i := strings.LastIndex(pair, ":")
		if i <= 0 || i == len(pair)-1 {
			return transform.Rules{}, fmt.Errorf("STATUS_MAP entry %q must look like raw:canonical", pair)
		}
		raw := strings.ToLower(strings.TrimSpace(pair[:i]))
		rules.StatusMap[raw] = strings.TrimSpace(pair[i+1:])
	}
	for _, s := range splitList(c.ValidStatuses) {
		rules.ValidStatuses[s] = true
	}
	return rules, nil
}

// Validate checks that the configuration is usable for a transform run. The
// database URL is checked separately by RequireDatabase.
func (c *Config) Validate() error {
	rules, err := c.Rules()
	if err != nil {
		return err
	}
	if len(rules.StatusMap) == 0 {
		return fmt.Errorf("STATUS_MAP must not be empty")
	}
	if len(rules.ValidStatuses) == 0 {
		return fmt.Errorf("VALID_STATUSES must not be empty")
	}
	for raw, canonical := range rules.StatusMap {
		if !rules.ValidStatuses[canonical] {
			return fmt.Errorf("STATUS_MAP maps %q to %q, which is not in VALID_STATUSES", raw, canonical)
		}
	}
	if c.MaxBookingYear <= 1900 {
		return fmt.Errorf("MAX_BOOKING_YEAR must be after 1900, got %d", c.MaxBookingYear)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.AppointmentsPath == "" || c.DoctorsPath == "" {
		return fmt.Errorf("%s and %s are required", EnvAppointmentsPath, EnvDoctorsPath)
	}
	return nil
}

// Level parses LOG_LEVEL. Python-style names such as WARNING and CRITICAL
// are accepted alongside zerolog's own.
func (c *Config) Level() (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch name {
	case "warning":
		name = "warn"
	case "critical":
		name = "fatal"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// RequireDatabase fails when no connection string is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool size: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// PoolConfig returns the connection pool settings.
func (c *Config) PoolConfig() db.PoolConfig {
	return db.PoolConfig{
		DatabaseURL:    c.DatabaseURL,
		MaxConns:       c.DBMaxConns,
		MinConns:       c.DBMinConns,
		ConnectTimeout: 10 * time.Second,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
