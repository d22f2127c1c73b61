package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.PoolCapacity != 4 || cfg.PoolQueueDepth != 8 {
		t.Fatalf("unexpected pool sizing: %d/%d", cfg.PoolCapacity, cfg.PoolQueueDepth)
	}
	if cfg.RunTimeout != 5*time.Second {
		t.Fatalf("unexpected run timeout: %s", cfg.RunTimeout)
	}
	if cfg.RunMemoryB != 256<<20 {
		t.Fatalf("unexpected memory limit: %d", cfg.RunMemoryB)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("POSTGRES_DSN", "host=db port=5432")
	t.Setenv("POOL_CAPACITY", "2")
	t.Setenv("RUN_TIMEOUT", "10s")
	t.Setenv("CACHE_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.PostgresDSN != "host=db port=5432" {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if cfg.PoolCapacity != 2 || cfg.RunTimeout != 10*time.Second || cfg.CacheTTL != time.Minute {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
}

func TestLoadRejectsBadPool(t *testing.T) {
	t.Setenv("POOL_CAPACITY", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPostgresDSNFromParts(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "practice")
	dsn := postgresDSN()
	want := "host=db.internal port=5432 user=postgres password=postgres dbname=practice sslmode=disable"
	if dsn != want {
		t.Fatalf("unexpected dsn:\n got %s\nwant %s", dsn, want)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_ENV", "value")
	t.Setenv("TEST_INT", "10")
	t.Setenv("TEST_BAD_INT", "ten")
	t.Setenv("TEST_DUR", "90s")

	if got := getEnv("TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("getEnv returned %s", got)
	}
	if got := getEnv("MISSING_ENV", "fallback"); got != "fallback" {
		t.Fatalf("getEnv default failed, got %s", got)
	}
	if got := getEnvInt("TEST_INT", 5); got != 10 {
		t.Fatalf("getEnvInt returned %d", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("getEnvInt should fall back on parse failure, got %d", got)
	}
	if got := getEnvDuration("TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("getEnvDuration returned %s", got)
	}
	if got := getEnvDuration("MISSING_DUR", time.Second); got != time.Second {
		t.Fatalf("getEnvDuration default failed, got %s", got)
	}
}
