package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.Limits.RequestsPerMinute != 20 || cfg.Limits.TokensPerDay != 50_000 {
		t.Fatalf("unexpected default limits: %+v", cfg.Limits)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.toml")
	content := `
listen_addr = ":9000"
log_level = "debug"

[limits]
requests_per_minute = 5
tokens_per_day = 1000

[security]
allowed_origin = "https://example.com"
trusted_proxy_count = 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TOKENS_PER_DAY", "2000")
	t.Setenv("ALLOWLIST_UA_SUBSTRINGS", "GoodBot, Uptime-Checker")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("file value not applied: %q", cfg.ListenAddr)
	}
	if cfg.Limits.RequestsPerMinute != 5 {
		t.Fatalf("file limit not applied: %d", cfg.Limits.RequestsPerMinute)
	}
	if cfg.Limits.TokensPerDay != 2000 {
		t.Fatalf("env must override file, got %d", cfg.Limits.TokensPerDay)
	}
	if cfg.Security.AllowedOrigin != "https://example.com" {
		t.Fatalf("unexpected origin: %q", cfg.Security.AllowedOrigin)
	}
	want := []string{"goodbot", "uptime-checker"}
	if len(cfg.Security.AllowlistUASubstrings) != len(want) {
		t.Fatalf("unexpected allowlist: %v", cfg.Security.AllowlistUASubstrings)
	}
	for i, s := range want {
		if cfg.Security.AllowlistUASubstrings[i] != s {
			t.Fatalf("allowlist entry %d: got %q, want %q", i, cfg.Security.AllowlistUASubstrings[i], s)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate limit", func(c *Config) { c.Limits.RequestsPerMinute = 0 }},
		{"negative token budget", func(c *Config) { c.Limits.TokensPerDay = -1 }},
		{"zero message length", func(c *Config) { c.Limits.MaxMessageLength = 0 }},
		{"negative proxy count", func(c *Config) { c.Security.TrustedProxyCount = -1 }},
		{"bad redis scheme", func(c *Config) { c.Redis.URL = "http://localhost:6379" }},
		{"empty listen addr", func(c *Config) { c.ListenAddr = " " }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
