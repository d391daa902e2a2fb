package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds runtime configuration sourced from an optional YAML file and env vars.
type Config struct {
	Port            string        `yaml:"port"`
	DatabaseDriver  string        `yaml:"database_driver"`
	DatabasePath    string        `yaml:"database_path"`
	DatabaseURL     string        `yaml:"database_url"`
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	JWTTTL          time.Duration `yaml:"-"`
	JWTTTLMinutes   int           `yaml:"jwt_ttl_minutes"`
	CORSOrigins     []string      `yaml:"cors_allowed_origins"`
	LogLevel        string        `yaml:"log_level"`
	StrictOwnership bool          `yaml:"strict_ownership"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
}

func defaults() Config {
	return Config{
		Port:           "3000",
		DatabaseDriver: DriverSQLite,
		DatabasePath:   "ondata.db",
		JWTIssuer:      "ondata-backend",
		JWTTTLMinutes:  60,
		CORSOrigins:    []string{"*"},
		LogLevel:       "info",
	}
}

// Load reads CONFIG_FILE (if set), applies env overrides and validates the result.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.JWTTTLMinutes <= 0 {
		cfg.JWTTTLMinutes = 60
	}
	cfg.JWTTTL = time.Duration(cfg.JWTTTLMinutes) * time.Minute
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DatabasePath == "" {
			return Config{}, errors.New("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.BcryptCost != 0 && (cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost) {
		return Config{}, fmt.Errorf("BCRYPT_COST must be 0 or between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = fallback(os.Getenv("PORT"), cfg.Port)
	cfg.DatabaseDriver = fallback(os.Getenv("DATABASE_DRIVER"), cfg.DatabaseDriver)
	cfg.DatabasePath = fallback(os.Getenv("DATABASE_PATH"), cfg.DatabasePath)
	cfg.DatabaseURL = fallback(os.Getenv("DATABASE_URL"), cfg.DatabaseURL)
	cfg.JWTSecret = fallback(os.Getenv("JWT_SECRET"), cfg.JWTSecret)
	cfg.JWTIssuer = fallback(os.Getenv("JWT_ISSUER"), cfg.JWTIssuer)
	cfg.LogLevel = fallback(os.Getenv("LOG_LEVEL"), cfg.LogLevel)

	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		cfg.CORSOrigins = parseCSV(origins)
	}
	if v := strings.TrimSpace(os.Getenv("JWT_TTL_MINUTES")); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.JWTTTLMinutes = minutes
		}
	}
	if v := strings.TrimSpace(os.Getenv("STRICT_OWNERSHIP")); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: parse STRICT_OWNERSHIP: %w", err)
		}
		cfg.StrictOwnership = strict
	}
	if v := strings.TrimSpace(os.Getenv("BCRYPT_COST")); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse BCRYPT_COST: %w", err)
		}
		cfg.BcryptCost = cost
	}
	return nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
