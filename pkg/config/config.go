package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds everything foliod needs to run. Values come from an optional
// TOML file overlaid with environment variables; the environment wins.
type Config struct {
	ListenAddr string         `toml:"listen_addr"`
	LogLevel   string         `toml:"log_level"`
	Upstream   UpstreamConfig `toml:"upstream"`
	Redis      RedisConfig    `toml:"redis"`
	Limits     LimitsConfig   `toml:"limits"`
	Security   SecurityConfig `toml:"security"`
	Email      EmailConfig    `toml:"email"`
}

type UpstreamConfig struct {
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
}

type RedisConfig struct {
	URL string `toml:"url,omitempty"`
}

type LimitsConfig struct {
	RequestsPerMinute int   `toml:"requests_per_minute,omitempty"`
	TokensPerDay      int64 `toml:"tokens_per_day,omitempty"`
	MaxMessageLength  int   `toml:"max_message_length,omitempty"`
}

type SecurityConfig struct {
	AllowedOrigin         string   `toml:"allowed_origin,omitempty"`
	TrustedProxyCount     int      `toml:"trusted_proxy_count,omitempty"`
	AllowlistUASubstrings []string `toml:"allowlist_ua_substrings,omitempty"`
}

// EmailConfig carries the EmailJS REST credentials used by the contact relay.
type EmailConfig struct {
	ServiceID  string `toml:"service_id,omitempty"`
	TemplateID string `toml:"template_id,omitempty"`
	PublicKey  string `toml:"public_key,omitempty"`
	PrivateKey string `toml:"private_key,omitempty"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Upstream: UpstreamConfig{
			Model:   "xiaomi/mimo-v2-flash:free",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Limits: LimitsConfig{
			RequestsPerMinute: 20,
			TokensPerDay:      50_000,
			MaxMessageLength:  2000,
		},
	}
}

// Load builds the effective config: defaults, then the TOML file at path (if
// it exists; an empty path skips the file entirely), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// env-only config
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Upstream.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Upstream.Model, "CHAT_MODEL")
	setString(&c.Upstream.BaseURL, "OPENROUTER_BASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setInt(&c.Limits.RequestsPerMinute, "REQUESTS_PER_MINUTE")
	setInt64(&c.Limits.TokensPerDay, "TOKENS_PER_DAY")
	setInt(&c.Limits.MaxMessageLength, "MAX_MESSAGE_LENGTH")
	setString(&c.Security.AllowedOrigin, "ALLOWED_ORIGIN")
	setInt(&c.Security.TrustedProxyCount, "TRUSTED_PROXY_COUNT")
	if v, ok := os.LookupEnv("ALLOWLIST_UA_SUBSTRINGS"); ok {
		c.Security.AllowlistUASubstrings = parseCommaList(v)
	}
	setString(&c.Email.ServiceID, "EMAILJS_SERVICE_ID")
	setString(&c.Email.TemplateID, "EMAILJS_TEMPLATE_ID")
	setString(&c.Email.PublicKey, "EMAILJS_PUBLIC_KEY")
	setString(&c.Email.PrivateKey, "EMAILJS_PRIVATE_KEY")
}

// Validate checks structural invariants. Secrets are deliberately not
// required here; the collaborator that needs one fails at first use so a
// misconfigured chat proxy does not take the static pages down with it.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Limits.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", c.Limits.RequestsPerMinute)
	}
	if c.Limits.TokensPerDay <= 0 {
		return fmt.Errorf("tokens_per_day must be positive, got %d", c.Limits.TokensPerDay)
	}
	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive, got %d", c.Limits.MaxMessageLength)
	}
	if c.Security.TrustedProxyCount < 0 {
		return fmt.Errorf("trusted_proxy_count must not be negative, got %d", c.Security.TrustedProxyCount)
	}
	if u := strings.TrimSpace(c.Redis.URL); u != "" {
		if !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
			return fmt.Errorf("redis url must use redis:// or rediss:// scheme")
		}
	}
	return nil
}

func parseCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = n
}

func setInt64(dst *int64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return
	}
	*dst = n
}
