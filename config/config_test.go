package config

import (
	"testing"
)

func TestLoadLocalModeDefaults(t *testing.T) {
	t.Setenv("DIGEST_TABLE", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("TOP_N_VALUES", "")
	t.Setenv("POINT_THRESHOLD_VALUES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.LocalMode {
		t.Error("LocalMode = false, want true with no DIGEST_TABLE")
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want local default", cfg.BaseURL)
	}
	if got := len(cfg.Strategies.All()); got != 6 {
		t.Errorf("default strategy count = %d, want 6", got)
	}
}

func TestLoadProductionRequiresEmailFrom(t *testing.T) {
	t.Setenv("DIGEST_TABLE", "digest-prod")
	t.Setenv("BASE_URL", "https://digest.example.com")
	t.Setenv("EMAIL_FROM", "")
	t.Setenv("TURNSTILE_SECRET_KEY", "secret")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded without EMAIL_FROM, want error")
	}
}

func TestLoadStrategyOverrides(t *testing.T) {
	t.Setenv("DIGEST_TABLE", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("TOP_N_VALUES", "5, 15")
	t.Setenv("POINT_THRESHOLD_VALUES", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := len(cfg.Strategies.All()); got != 3 {
		t.Errorf("strategy count = %d, want 3", got)
	}
	if cfg.Strategies.MaxTopN() != 15 {
		t.Errorf("MaxTopN() = %d, want 15", cfg.Strategies.MaxTopN())
	}
	if cfg.Strategies.MinThreshold() != 250 {
		t.Errorf("MinThreshold() = %d, want 250", cfg.Strategies.MinThreshold())
	}
}

func TestLoadRejectsMalformedList(t *testing.T) {
	t.Setenv("DIGEST_TABLE", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("TOP_N_VALUES", "10,banana")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded with malformed TOP_N_VALUES, want error")
	}
}

func TestLoadTrimsBaseURLSlash(t *testing.T) {
	t.Setenv("DIGEST_TABLE", "digest-prod")
	t.Setenv("BASE_URL", "https://digest.example.com/")
	t.Setenv("EMAIL_FROM", "digest@example.com")
	t.Setenv("TURNSTILE_SECRET_KEY", "secret")
	t.Setenv("TOP_N_VALUES", "")
	t.Setenv("POINT_THRESHOLD_VALUES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://digest.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if cfg.LocalMode {
		t.Error("LocalMode = true, want false with DIGEST_TABLE set")
	}
}
