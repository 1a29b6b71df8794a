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
	NATS      NATSConfig
	JWT       JWTConfig
	Generator GeneratorConfig
	Source    SourceConfig
	Batch     BatchConfig
	Tiers     TiersConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
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

type NATSConfig struct {
	URL     string
	Enabled bool
}

// JWTConfig holds the shared secret used to validate access tokens issued by
// the external auth service. This service never issues tokens itself.
type JWTConfig struct {
	AccessSecret string
	Issuer       string
}

// GeneratorConfig describes the upstream AI documentation generator.
type GeneratorConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SourceConfig describes the raw-content endpoint used to re-fetch file
// content for externally sourced jobs.
type SourceConfig struct {
	BaseURL string
	Timeout time.Duration
}

type BatchConfig struct {
	// InterJobDelay is the fixed pause between consecutive jobs in a batch.
	// It exists to respect the upstream generator's token-rate ceiling and is
	// a policy knob, not an adaptive limit.
	InterJobDelay time.Duration
	MaxFiles      int
	SessionTTL    time.Duration
}

// TierConfig is the quota ceiling for one subscription tier. Daily or
// Monthly set to -1 means unlimited.
type TierConfig struct {
	Daily   int
	Monthly int
	Batch   bool
}

type TiersConfig struct {
	Anonymous  TierConfig
	Free       TierConfig
	Pro        TierConfig
	Enterprise TierConfig
	// DefaultUser is the tier assumed for authenticated users whose token
	// carries no tier claim.
	DefaultUser string
}

type CORSConfig struct {
	AllowedOrigins []string
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
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
			Issuer:       k.String("jwt.issuer"),
		},
		Generator: GeneratorConfig{
			BaseURL: k.String("generator.base.url"),
		},
		Source: SourceConfig{
			BaseURL: k.String("source.base.url"),
		},
		Batch: BatchConfig{
			MaxFiles: k.Int("batch.max.files"),
		},
		Tiers: TiersConfig{
			Anonymous: TierConfig{
				Daily:   k.Int("tiers.anonymous.daily"),
				Monthly: k.Int("tiers.anonymous.monthly"),
			},
			Free: TierConfig{
				Daily:   k.Int("tiers.free.daily"),
				Monthly: k.Int("tiers.free.monthly"),
			},
			Pro: TierConfig{
				Daily:   k.Int("tiers.pro.daily"),
				Monthly: k.Int("tiers.pro.monthly"),
				Batch:   true,
			},
			Enterprise: TierConfig{
				Daily:   -1,
				Monthly: -1,
				Batch:   true,
			},
			DefaultUser: k.String("tiers.default.user"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
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
		cfg.DB.User = "docsmith"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "docsmith"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "docsmith-auth"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "http://localhost:9090"
	}
	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = "http://localhost:9091"
	}
	if cfg.Batch.MaxFiles == 0 {
		cfg.Batch.MaxFiles = 25
	}
	if cfg.Tiers.Anonymous.Daily == 0 {
		cfg.Tiers.Anonymous.Daily = 3
	}
	if cfg.Tiers.Anonymous.Monthly == 0 {
		cfg.Tiers.Anonymous.Monthly = 10
	}
	if cfg.Tiers.Free.Daily == 0 {
		cfg.Tiers.Free.Daily = 5
	}
	if cfg.Tiers.Free.Monthly == 0 {
		cfg.Tiers.Free.Monthly = 50
	}
	if cfg.Tiers.Pro.Daily == 0 {
		cfg.Tiers.Pro.Daily = 100
	}
	if cfg.Tiers.Pro.Monthly == 0 {
		cfg.Tiers.Pro.Monthly = 1000
	}
	if cfg.Tiers.DefaultUser == "" {
		cfg.Tiers.DefaultUser = "free"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Generator.Timeout, err = parseDuration(k, "generator.timeout", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Source.Timeout, err = parseDuration(k, "source.timeout", "30s")
	if err != nil {
		return nil, err
	}
	cfg.Batch.InterJobDelay, err = parseDuration(k, "batch.inter.job.delay", "15s")
	if err != nil {
		return nil, err
	}
	cfg.Batch.SessionTTL, err = parseDuration(k, "batch.session.ttl", "24h")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	raw := k.String(key)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
