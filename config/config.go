// Package config loads and validates service configuration from the
// environment. Everything is read once at startup; the rest of the service
// receives the resulting Config (or pieces of it) and never touches env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"hackerdigest/pkg/digest"
)

// Config holds all runtime configuration. LocalMode is derived, not set
// directly: an empty DIGEST_TABLE means local development (memory store,
// mock mailer, captcha bypass).
type Config struct {
	TableName        string
	BaseURL          string
	EmailFrom        string
	EmailReplyTo     string
	ConfigurationSet string
	TurnstileSecret  string
	Port             string
	Strategies       digest.StrategySet
	LocalMode        bool
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		TableName:        os.Getenv("DIGEST_TABLE"),
		BaseURL:          strings.TrimSuffix(os.Getenv("BASE_URL"), "/"),
		EmailFrom:        os.Getenv("EMAIL_FROM"),
		EmailReplyTo:     os.Getenv("EMAIL_REPLY_TO"),
		ConfigurationSet: os.Getenv("SES_CONFIGURATION_SET"),
		TurnstileSecret:  os.Getenv("TURNSTILE_SECRET_KEY"),
		Port:             os.Getenv("PORT"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.LocalMode = cfg.TableName == ""

	if cfg.BaseURL == "" {
		if !cfg.LocalMode {
			return nil, fmt.Errorf("BASE_URL must be set")
		}
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if !cfg.LocalMode {
		if cfg.EmailFrom == "" {
			return nil, fmt.Errorf("EMAIL_FROM must be set")
		}
		if cfg.TurnstileSecret == "" {
			return nil, fmt.Errorf("TURNSTILE_SECRET_KEY must be set")
		}
	}

	topN, err := intListEnv("TOP_N_VALUES", []int{10, 20, 50})
	if err != nil {
		return nil, err
	}
	thresholds, err := intListEnv("POINT_THRESHOLD_VALUES", []int{100, 200, 500})
	if err != nil {
		return nil, err
	}
	cfg.Strategies, err = digest.NewStrategySet(topN, thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid strategy configuration: %w", err)
	}

	return cfg, nil
}

// intListEnv parses a comma-separated list of positive integers from the
// named env var, falling back to def when unset.
func intListEnv(name string, def []int) ([]int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	var values []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid value %q: %w", name, part, err)
		}
		values = append(values, n)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: no values in %q", name, raw)
	}
	return values, nil
}
