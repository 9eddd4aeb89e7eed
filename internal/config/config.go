package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	JWTSecret      string
	LogLevel       slog.Level
	AllowedOrigins []string
	NotifyTimeout  time.Duration
	ReapInterval   time.Duration
	CodeRetention  time.Duration
	Policy         Policy
}

// Policy is the tunable part of fraud correlation. Zero values in a policy
// file keep the defaults.
type Policy struct {
	RepeatThreshold     int           `yaml:"repeat_threshold"`
	RepeatWindow        time.Duration `yaml:"repeat_window"`
	SharedAddressWindow time.Duration `yaml:"shared_address_window"`
	MarkerTTL           time.Duration `yaml:"marker_ttl"`
}

func DefaultPolicy() Policy {
	return Policy{
		RepeatThreshold:     3,
		RepeatWindow:        24 * time.Hour,
		SharedAddressWindow: time.Hour,
		MarkerTTL:           10 * time.Minute,
	}
}

// Load reads .env when present, then the environment, then POLICY_FILE.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		DatabaseURL:    DatabaseURL(),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		Policy:         DefaultPolicy(),
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReapInterval, err = getDuration("REAP_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CodeRetention, err = getDuration("CODE_RETENTION", time.Hour); err != nil {
		return nil, err
	}

	if path := os.Getenv("POLICY_FILE"); path != "" {
		if cfg.Policy, err = LoadPolicy(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	var override Policy
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return policy, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if override.RepeatThreshold > 0 {
		policy.RepeatThreshold = override.RepeatThreshold
	}
	if override.RepeatWindow > 0 {
		policy.RepeatWindow = override.RepeatWindow
	}
	if override.SharedAddressWindow > 0 {
		policy.SharedAddressWindow = override.SharedAddressWindow
	}
	if override.MarkerTTL > 0 {
		policy.MarkerTTL = override.MarkerTTL
	}
	return policy, nil
}

// DatabaseURL prefers DATABASE_URL and otherwise assembles one from the
// POSTGRES_* variables.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		os.Getenv("POSTGRES_DB"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return level, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
