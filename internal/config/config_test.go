package config

import (
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("k", 32))
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
	if cfg.GeneralLimit != (Limit{Max: 100, Window: 15 * time.Minute}) {
		t.Fatalf("unexpected general limit %+v", cfg.GeneralLimit)
	}
	if cfg.AuthLimit.Max != 5 || cfg.UploadLimit != (Limit{Max: 10, Window: time.Hour}) || cfg.MessageLimit.Max != 50 {
		t.Fatalf("unexpected limits %+v %+v %+v", cfg.AuthLimit, cfg.UploadLimit, cfg.MessageLimit)
	}
	if cfg.SchoolCodeTTL != 30*24*time.Hour || cfg.FriendCodeTTL != 365*24*time.Hour {
		t.Fatalf("unexpected code ttls %s %s", cfg.SchoolCodeTTL, cfg.FriendCodeTTL)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("unexpected upload cap %d", cfg.MaxUploadBytes)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("SWEEP_INTERVAL", "5m")
	t.Setenv("SWEEP_LOCK_TTL_SECONDS", "30")
	t.Setenv("RATE_LIMIT_AUTH_MAX", "20")
	t.Setenv("BLOCKED_TERMS", "foo, bar ,,")
	t.Setenv("JWT_TTL_MINUTES", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SweepInterval != 5*time.Minute || cfg.SweepLockTTL != 30*time.Second {
		t.Fatalf("unexpected sweep config %s %s", cfg.SweepInterval, cfg.SweepLockTTL)
	}
	if cfg.AuthLimit.Max != 20 {
		t.Fatalf("unexpected auth limit %+v", cfg.AuthLimit)
	}
	if len(cfg.BlockedTerms) != 2 || cfg.BlockedTerms[1] != "bar" {
		t.Fatalf("unexpected blocked terms %v", cfg.BlockedTerms)
	}
	if cfg.JWTTTL != 15*time.Minute {
		t.Fatalf("unexpected jwt ttl %s", cfg.JWTTTL)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"DATABASE_URL":   {"STORAGE_DRIVER": "postgres", "DATABASE_URL": ""},
		"JWT_SECRET":     {"JWT_SECRET": ""},
		"ENCRYPTION_KEY": {"ENCRYPTION_KEY": "short"},
		"STORAGE_DRIVER": {"STORAGE_DRIVER": "sqlite"},
	}
	for want, env := range cases {
		t.Run(want, func(t *testing.T) {
			setBase(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error naming %s, got %v", want, err)
			}
		})
	}
}
