package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER,default=chat"`
	JWTExpiresIn  time.Duration `env:"JWT_EXPIRES_IN,default=168h"`
	JWKSIssuerURL string        `env:"JWKS_ISSUER_URL"`

	BadgerPath     string `env:"BADGER_PATH,default=data/badger"`
	BadgerInMemory bool   `env:"BADGER_IN_MEMORY,default=false"`

	RedisURL     string `env:"REDIS_URL"`
	MirrorEvents bool   `env:"MIRROR_EVENTS,default=false"`

	RateLimitBackend       string        `env:"RATE_LIMIT_BACKEND,default=memory"`
	MessageRateLimitWindow time.Duration `env:"MESSAGE_RATE_LIMIT_WINDOW,default=5s"`
	MessageRateLimitMax    int           `env:"MESSAGE_RATE_LIMIT_MAX,default=10"`
	MaxMessageLength       int           `env:"MAX_MESSAGE_LENGTH,default=500"`

	ClientOrigins   string        `env:"CLIENT_ORIGINS"`
	SendBuffer      int           `env:"SEND_BUFFER,default=256"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" && c.JWKSIssuerURL == "" {
		return fmt.Errorf("config: one of JWT_SECRET or JWKS_ISSUER_URL is required")
	}
	switch c.RateLimitBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: RATE_LIMIT_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	if c.MirrorEvents && c.RedisURL == "" {
		return fmt.Errorf("config: MIRROR_EVENTS requires REDIS_URL")
	}
	if c.MessageRateLimitWindow <= 0 || c.MessageRateLimitMax <= 0 {
		return fmt.Errorf("config: message rate limit window and max must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("config: MAX_MESSAGE_LENGTH must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("config: SEND_BUFFER must be positive")
	}
	return nil
}

// Origins splits CLIENT_ORIGINS on commas. An empty list allows every origin.
func (c *Config) Origins() []string {
	var origins []string
	for _, part := range strings.Split(c.ClientOrigins, ",") {
		if part = strings.TrimSpace(part); part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}

func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
