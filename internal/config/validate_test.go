package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "docsmith",
			Password: "secret", Name: "docsmith", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret: "access-secret-that-is-at-least-32-chars!",
			Issuer:       "docsmith-auth",
		},
		Generator: GeneratorConfig{BaseURL: "http://localhost:9090", Timeout: 60 * time.Second},
		Source:    SourceConfig{BaseURL: "http://localhost:9091", Timeout: 30 * time.Second},
		Batch: BatchConfig{
			InterJobDelay: 15 * time.Second,
			MaxFiles:      25,
			SessionTTL:    24 * time.Hour,
		},
		Tiers: TiersConfig{
			Anonymous:   TierConfig{Daily: 3, Monthly: 10},
			Free:        TierConfig{Daily: 5, Monthly: 50},
			Pro:         TierConfig{Daily: 100, Monthly: 1000, Batch: true},
			Enterprise:  TierConfig{Daily: -1, Monthly: -1, Batch: true},
			DefaultUser: "free",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_GeneratorURLRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Generator.BaseURL = "not a url"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "GENERATOR_BASE_URL") {
		t.Fatalf("expected GENERATOR_BASE_URL error, got: %v", err)
	}
}

func TestValidate_InterJobDelayTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Batch.InterJobDelay = 100 * time.Millisecond
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BATCH_INTER_JOB_DELAY") {
		t.Fatalf("expected BATCH_INTER_JOB_DELAY error, got: %v", err)
	}
}

func TestValidate_TierLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Tiers.Free.Daily = -5
	cfg.Tiers.Pro.Monthly = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected tier validation errors")
	}
	if !strings.Contains(err.Error(), "tier free") {
		t.Errorf("expected free tier error in: %v", err)
	}
	if !strings.Contains(err.Error(), "tier pro") {
		t.Errorf("expected pro tier error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 0},
		DB:        DBConfig{Port: 5432},
		Redis:     RedisConfig{Port: 6379},
		Generator: GeneratorConfig{BaseURL: "http://localhost:9090", Timeout: time.Minute},
		Source:    SourceConfig{BaseURL: "http://localhost:9091"},
		Batch:     BatchConfig{InterJobDelay: 15 * time.Second, MaxFiles: 25},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_ACCESS_SECRET", "DB_PASSWORD", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
