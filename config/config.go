// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port                   string
	DBDriver               string
	DBPath                 string
	DatabaseURL            string
	JWTSecret              string
	JWTTTL                 time.Duration
	AllowedIPs             string
	CORSOrigins            []string
	LogLevel               string
	Environment            string
	TxTimeout              time.Duration
	MaxBodyBytes           int64
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	TrustProxy             bool

	// parseErrs holds environment values that could not be parsed.
	parseErrs []error
}

// Load reads a .env file if present, then the environment. The returned
// warning is non-nil when no .env file was found.
func Load() (Config, error) {
	warning := godotenv.Load()

	var errs []error
	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		DBDriver:               strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:                 getEnv("DB_PATH", "leave.db"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTTTL:                 getEnvDuration("JWT_TTL", 8*time.Hour, &errs),
		AllowedIPs:             getEnv("ALLOWED_IPS", ""),
		CORSOrigins:            getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		Environment:            getEnv("APP_ENV", "development"),
		TxTimeout:              getEnvDuration("LEAVE_TX_TIMEOUT", 5*time.Second, &errs),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1<<20, &errs)),
		BootstrapAdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		TrustProxy:             getEnvBool("TRUST_PROXY", false, &errs),
	}
	cfg.parseErrs = errs
	return cfg, warning
}

func (c Config) IsDevelopment() bool {
	return c.Environment != "production"
}

func (c Config) Validate() error {
	if len(c.parseErrs) > 0 {
		return errors.Join(c.parseErrs...)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.IsDevelopment() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("LEAVE_TX_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q: %w", key, value, err))
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q: %w", key, value, err))
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s=%q: %w", key, value, err))
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
