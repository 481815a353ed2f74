package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APPOINTMENT_DURATION_MINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.AppointmentDuration != 60*time.Minute {
		t.Fatalf("expected default appointment duration, got %s", cfg.AppointmentDuration)
	}
	if cfg.AvailabilityTimeout != 10*time.Second {
		t.Fatalf("expected default availability timeout, got %s", cfg.AvailabilityTimeout)
	}
	if cfg.ClinicTimezone != "America/New_York" {
		t.Fatalf("expected default clinic timezone, got %s", cfg.ClinicTimezone)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no default CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKEND_BASE_URL", "https://api.healthapp.example")
	t.Setenv("APPOINTMENT_DURATION_MINS", "90")
	t.Setenv("AVAILABILITY_TIMEOUT", "3s")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://portal.example, https://staff.example,")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.BackendBaseURL != "https://api.healthapp.example" {
		t.Fatalf("expected backend base url override, got %s", cfg.BackendBaseURL)
	}
	if cfg.AppointmentDuration != 90*time.Minute {
		t.Fatalf("expected 90m appointment duration, got %s", cfg.AppointmentDuration)
	}
	if cfg.AvailabilityTimeout != 3*time.Second {
		t.Fatalf("expected 3s availability timeout, got %s", cfg.AvailabilityTimeout)
	}
	if !cfg.RedisTLS {
		t.Fatal("expected redis TLS enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://staff.example" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5 rps, got %v", cfg.RateLimitRPS)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("APPOINTMENT_DURATION_MINS", "ninety")
	t.Setenv("RATE_LIMIT_RPS", "fast")
	t.Setenv("IDENTITY_CACHE_TTL", "soon")
	cfg := Load()
	if cfg.AppointmentDuration != 60*time.Minute {
		t.Fatalf("malformed duration should fall back to default, got %s", cfg.AppointmentDuration)
	}
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("malformed rps should fall back to default, got %v", cfg.RateLimitRPS)
	}
	if cfg.IdentityCacheTTL != 30*time.Second {
		t.Fatalf("malformed ttl should fall back to default, got %s", cfg.IdentityCacheTTL)
	}
}
