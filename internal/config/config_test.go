package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Cache.ServiceTTL >= cfg.Cache.RouteTTL {
		t.Fatalf("service tier TTL %v should be shorter than route tier %v", cfg.Cache.ServiceTTL, cfg.Cache.RouteTTL)
	}
	if cfg.Recommendations.MaxRecommendations != 5 {
		t.Fatalf("expected 5 recommendations by default, got %d", cfg.Recommendations.MaxRecommendations)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumeris.yaml")
	data := []byte(`
redis:
  addr: cache:6380
cache:
  service_ttl: 10s
  route_ttl: 3m
recommendations:
  max_recommendations: 3
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.Cache.ServiceTTL != 10*time.Second || cfg.Cache.RouteTTL != 3*time.Minute {
		t.Fatalf("unexpected TTLs: %+v", cfg.Cache)
	}
	if cfg.Recommendations.MaxRecommendations != 3 {
		t.Fatalf("unexpected max recommendations %d", cfg.Recommendations.MaxRecommendations)
	}
	// untouched sections keep defaults
	if cfg.Recommendations.NewPlayerGames != 10 || cfg.Daemon.HTTPAddr != ":8080" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LUMERIS_REDIS_ENABLED", "false")
	t.Setenv("LUMERIS_ROUTE_CACHE_TTL", "90s")
	t.Setenv("LUMERIS_SERVICE_CACHE_TTL", "not-a-duration")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Redis.Enabled {
		t.Fatal("expected redis to be disabled")
	}
	if cfg.Cache.RouteTTL != 90*time.Second {
		t.Fatalf("unexpected route TTL %v", cfg.Cache.RouteTTL)
	}
	if cfg.Cache.ServiceTTL != 30*time.Second {
		t.Fatalf("invalid override should be ignored, got %v", cfg.Cache.ServiceTTL)
	}
}

func TestLoadFromEnvIgnoresNonPositiveTTL(t *testing.T) {
	for _, v := range []string{"0s", "-5s"} {
		t.Setenv("LUMERIS_ROUTE_CACHE_TTL", v)
		t.Setenv("LUMERIS_SERVICE_CACHE_TTL", v)

		cfg := DefaultConfig()
		LoadFromEnv(cfg)

		if cfg.Cache.RouteTTL != 120*time.Second || cfg.Cache.ServiceTTL != 30*time.Second {
			t.Fatalf("%s override should be ignored, got %+v", v, cfg.Cache)
		}
	}
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "lumeris.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  route_ttl: 0s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected zero route TTL to be rejected")
	}

	cfg = DefaultConfig()
	cfg.Cache.ServiceTTL = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative service TTL to be rejected")
	}
}
