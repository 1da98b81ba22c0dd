package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DBURL         string

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthRateLimit  int
	AuthRateWindow time.Duration

	CORSAllowedOrigins []string
	MaxBodyBytes       int64

	OTLPEndpoint string
	ServiceName  string

	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Load reads an optional .env file and then the environment. A missing
// signing secret or store connection string is an error.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var errs []error

	port, err := getEnvInt("PORT", 5000)
	errs = append(errs, err)
	redisDB, err := getEnvInt("REDIS_DB", 0)
	errs = append(errs, err)
	rateLimit, err := getEnvInt("AUTH_RATE_LIMIT", 20)
	errs = append(errs, err)
	rateWindow, err := getEnvInt("AUTH_RATE_WINDOW_SECONDS", 60)
	errs = append(errs, err)
	maxBody, err := getEnvInt("MAX_BODY_BYTES", 1<<20)
	errs = append(errs, err)

	cfg := Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: port,

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "auth-app"),
		DBURL:         getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		AuthRateLimit:  rateLimit,
		AuthRateWindow: time.Duration(rateWindow) * time.Second,

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		MaxBodyBytes:       int64(maxBody),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "countryauth"),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
	}

	errs = append(errs, cfg.Validate())

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is not set"))
		}
	case DriverPostgres:
		if c.DBURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is not set"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Port))
	}

	if c.AuthRateLimit < 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT must not be negative"))
	}

	if c.AuthRateWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_WINDOW_SECONDS must be positive"))
	}

	return errors.Join(errs...)
}

// RateLimitEnabled reports whether auth endpoints are throttled.
// AUTH_RATE_LIMIT=0 turns throttling off on every backend.
func (c Config) RateLimitEnabled() bool {
	return c.AuthRateLimit > 0
}

// String returns a representation safe for logs (secrets masked).
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Env: %s, Port: %d, Store: %s, Redis: %q, JWTSecret: %s, OTLP: %q}",
		c.Env, c.Port, c.StoreDriver, c.RedisAddr, mask(c.JWTSecret), c.OTLPEndpoint,
	)
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func mask(v string) string {
	if v == "" {
		return "<unset>"
	}
	return "***"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback, fmt.Errorf("invalid integer for %s: %w", key, err)
		}

		return num, nil
	}
	return fallback, nil
}
