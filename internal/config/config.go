package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the reference server and worker
type Config struct {
	// HTTP Configuration
	HTTP HTTPConfig

	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Auth Configuration
	Auth AuthConfig

	// Logging Configuration
	Logging LoggingConfig
}

// HTTPConfig holds listener configuration
type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port), empty disables the delivery queue
}

// AuthConfig holds token and password-reset lifetimes
type AuthConfig struct {
	JWTSecret          string // empty = generated and persisted on first start
	TokenTTL           time.Duration
	OTPTTL             time.Duration
	VerificationTTL    time.Duration
	ResetSweepSchedule string // cron spec for purging expired resets
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	tokenTTL, err := durationEnv("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	otpTTL, err := durationEnv("OTP_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	verificationTTL, err := durationEnv("VERIFICATION_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	var origins []string
	for _, origin := range strings.Split(stringEnv("CORS_ORIGINS", "http://localhost:5173"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return &Config{
		HTTP: HTTPConfig{
			Addr:        stringEnv("HTTP_ADDR", ":8080"),
			CORSOrigins: origins,
		},
		Database: DatabaseConfig{
			URL: stringEnv("DATABASE_URL", "aerosense.sqlite"),
		},
		Redis: RedisConfig{
			Address: os.Getenv("REDIS_ADDRESS"),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("JWT_SECRET"),
			TokenTTL:           tokenTTL,
			OTPTTL:             otpTTL,
			VerificationTTL:    verificationTTL,
			ResetSweepSchedule: stringEnv("RESET_SWEEP_SCHEDULE", "@every 5m"),
		},
		Logging: LoggingConfig{
			Level:  stringEnv("LOG_LEVEL", "info"),
			Format: stringEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func stringEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, v)
	}
	return d, nil
}
