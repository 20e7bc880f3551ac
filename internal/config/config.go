// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/campusevents/ticketing/internal/database"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs are parsed the same way.
type Config struct {
	Env            string `env:"APP_ENV" envDefault:"dev"`
	Port           string `env:"APP_PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret      string `env:"JWT_SECRET,required"`
	AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`
	RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS" envDefault:"7"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`

	DB        DBConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// DBConfig selects and addresses the relational store.  DB_DRIVER is either
// "mysql" (DSN assembled from the DB_* parts) or "sqlite" (SQLITE_PATH).
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"mysql"`
	User       string `env:"DB_USER" envDefault:"root"`
	Pass       string `env:"DB_PASS"`
	Host       string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port       string `env:"DB_PORT" envDefault:"3306"`
	Name       string `env:"DB_NAME" envDefault:"campus_events"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/events.db"`
}

// DSN returns the data source name for the configured driver.
func (c DBConfig) DSN() string {
	if c.Driver == database.DriverSQLite {
		return database.SQLiteDSN(c.SQLitePath)
	}
	return database.MySQLDSN(c.User, c.Pass, c.Host, c.Port, c.Name)
}

// AMQPConfig controls the registration.confirmed publisher and consumer.
// An empty URL disables publishing.
type AMQPConfig struct {
	URL             string `env:"AMQP_URL"`
	Queue           string `env:"AMQP_QUEUE" envDefault:"registration.confirmed"`
	ConsumerEnabled bool   `env:"AMQP_CONSUMER_ENABLED" envDefault:"false"`
	LogDir          string `env:"REGISTRATION_LOG_DIR" envDefault:"logs"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.RateLimit = cfg.RateLimit.normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports configuration values that cannot work at runtime.
func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case database.DriverMySQL, database.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", database.DriverMySQL, database.DriverSQLite, c.DB.Driver))
	}
	if c.AccessTTLMin <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL_MIN must be positive"))
	}
	if c.RefreshTTLDays <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL_DAYS must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	return errors.Join(errs...)
}
