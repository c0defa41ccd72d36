package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the application configuration.
type Config struct {
	ServerPort  int
	DatabaseURL string
	AppEnv      string
	LogLevel    string

	MediaRoot          string // Base path for uploaded images
	MediaURL           string // URL prefix the media root is served under
	MaxImageBytes      int
	VerifyImageContent bool
	MediaSweepSchedule string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSAllowedOrigins []string
	LoginRatePerMinute int
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxImageBytes, err := strconv.Atoi(getEnv("MAX_IMAGE_BYTES", "5242880"))
	if err != nil || maxImageBytes <= 0 {
		return nil, fmt.Errorf("invalid MAX_IMAGE_BYTES %q", getEnv("MAX_IMAGE_BYTES", ""))
	}

	verify, err := strconv.ParseBool(getEnv("VERIFY_IMAGE_CONTENT", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFY_IMAGE_CONTENT: %w", err)
	}

	accessTTL, err := time.ParseDuration(getEnv("ACCESS_TOKEN_TTL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
	}
	refreshTTL, err := time.ParseDuration(getEnv("REFRESH_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
	}

	loginRate, err := strconv.Atoi(getEnv("LOGIN_RATE_PER_MINUTE", "10"))
	if err != nil || loginRate <= 0 {
		return nil, fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE %q", getEnv("LOGIN_RATE_PER_MINUTE", ""))
	}

	sweep := getEnv("MEDIA_SWEEP_SCHEDULE", "0 3 * * *")
	if _, err := cron.ParseStandard(sweep); err != nil {
		return nil, fmt.Errorf("invalid MEDIA_SWEEP_SCHEDULE: %w", err)
	}

	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	mediaURL := getEnv("MEDIA_URL", "/media/")
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}

	return &Config{
		ServerPort:         port,
		DatabaseURL:        getEnv("DATABASE_URL", "./blog.db"),
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MediaRoot:          getEnv("MEDIA_ROOT", "./media"),
		MediaURL:           mediaURL,
		MaxImageBytes:      maxImageBytes,
		VerifyImageContent: verify,
		MediaSweepSchedule: sweep,
		JWTSecret:          secret,
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LoginRatePerMinute: loginRate,
	}, nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
