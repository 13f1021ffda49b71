package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	Store     StoreConfig
	Quota     QuotaConfig
	JWT       JWTConfig
	Gemini    GeminiConfig
	NATS      NATSConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
	// WriteTimeout must outlast the Gemini call.
	WriteTimeout time.Duration
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Store backends for quota counters.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Backend string
}

// KindLimits is one feature's (per-minute, per-day) pair.
type KindLimits struct {
	PerMinute int
	PerDay    int
}

type QuotaConfig struct {
	Chat        KindLimits
	Roleplay    KindLimits
	Journal     KindLimits
	MaxAttempts int
	BaseBackoff time.Duration
}

type JWTConfig struct {
	AccessSecret string
	Issuer       string
	AccessExpiry time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type NATSConfig struct {
	URL string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig is the coarse per-IP throttle in front of the API.
type RateLimitConfig struct {
	Requests  int
	WindowSec int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(k.String("store.backend")),
		},
		Quota: QuotaConfig{
			Chat:        KindLimits{PerMinute: k.Int("quota.chat.per.minute"), PerDay: k.Int("quota.chat.per.day")},
			Roleplay:    KindLimits{PerMinute: k.Int("quota.roleplay.per.minute"), PerDay: k.Int("quota.roleplay.per.day")},
			Journal:     KindLimits{PerMinute: k.Int("quota.journal.per.minute"), PerDay: k.Int("quota.journal.per.day")},
			MaxAttempts: k.Int("quota.max.attempts"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
			Issuer:       k.String("jwt.issuer"),
		},
		Gemini: GeminiConfig{
			APIKey: k.String("gemini.api.key"),
			Model:  k.String("gemini.model"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		RateLimit: RateLimitConfig{
			Requests:  k.Int("ratelimit.requests"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "benestar"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "benestar"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreRedis
	}
	applyLimitDefaults(&cfg.Quota.Chat, 30, 300)
	applyLimitDefaults(&cfg.Quota.Roleplay, 20, 200)
	applyLimitDefaults(&cfg.Quota.Journal, 10, 50)
	if cfg.Quota.MaxAttempts == 0 {
		cfg.Quota.MaxAttempts = 5
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "benestar"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 120
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	backoffStr := k.String("quota.base.backoff")
	if backoffStr == "" {
		backoffStr = "10ms"
	}
	cfg.Quota.BaseBackoff, err = time.ParseDuration(backoffStr)
	if err != nil {
		return nil, fmt.Errorf("parsing quota base backoff: %w", err)
	}

	expiryStr := k.String("jwt.access.expiry")
	if expiryStr == "" {
		expiryStr = "24h"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(expiryStr)
	if err != nil {
		return nil, fmt.Errorf("parsing JWT access expiry: %w", err)
	}

	timeoutStr := k.String("gemini.timeout")
	if timeoutStr == "" {
		timeoutStr = "30s"
	}
	cfg.Gemini.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing gemini timeout: %w", err)
	}

	cfg.Server.WriteTimeout = cfg.Gemini.Timeout + 15*time.Second

	return cfg, nil
}

// applyLimitDefaults fills limits left unset. A zero from the environment
// reads as unset, so a feature cannot be switched off through config.
func applyLimitDefaults(l *KindLimits, perMinute, perDay int) {
	if l.PerMinute == 0 {
		l.PerMinute = perMinute
	}
	if l.PerDay == 0 {
		l.PerDay = perDay
	}
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
