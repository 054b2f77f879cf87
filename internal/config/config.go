package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionStore  string

	JWTSecret         string
	OAuthClientID     string
	OAuthClientSecret string

	TokenExpiry        time.Duration
	RefreshTokenExpiry time.Duration
	AuthSessionTTL     time.Duration
	AuthCodeTTL        time.Duration

	CORSAllowedOrigins []string
	RateLimitPerMin    int

	OwnerEmail    string
	OwnerPassword string

	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	clientID := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("OAUTH_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("OAUTH_CLIENT_SECRET is required")
	}

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		ServiceName:        getEnv("SERVICE_NAME", "darksmart-cloud"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		SessionStore:       strings.ToLower(getEnv("SESSION_STORE", "redis")),
		JWTSecret:          secret,
		OAuthClientID:      clientID,
		OAuthClientSecret:  clientSecret,
		TokenExpiry:        getDuration("TOKEN_EXPIRY", time.Hour),
		RefreshTokenExpiry: getDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),
		AuthSessionTTL:     getDuration("AUTH_SESSION_TTL", 10*time.Minute),
		AuthCodeTTL:        getDuration("AUTH_CODE_TTL", 10*time.Minute),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMin:    getInt("RATE_LIMIT_RPM", 120),
		OwnerEmail:         strings.TrimSpace(os.Getenv("OWNER_EMAIL")),
		OwnerPassword:      os.Getenv("OWNER_PASSWORD"),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionStore != "redis" && cfg.SessionStore != "memory" {
		return Config{}, fmt.Errorf("SESSION_STORE must be redis or memory")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// getDuration accepts either a Go duration string ("1h") or a bare
// number of seconds, which is how the legacy deployment configured
// TOKEN_EXPIRY and REFRESH_TOKEN_EXPIRY.
func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}
