// Package config loads application configuration from environment variables
// and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const envPrefix = "WARRANTYPANEL_"

// minSecretKeyLength is the shortest accepted master secret.
const minSecretKeyLength = 32

// Config holds the validated application configuration.
type Config struct {
	SecretKey string

	ListenAddr string
	DBPath     string

	BaseURL           string
	UpstreamTimeout   time.Duration
	ReportConcurrency int
	ReportWindowDays  int
	ReportTimeout     time.Duration

	SessionTTL  time.Duration
	OTPCooldown time.Duration

	SMTP SMTP

	LogLevel      slog.Level
	LogFormat     string
	SecureCookies bool
}

// SMTP is the system relay used for sign-in codes. An empty Host means codes
// are only written to the log.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Load reads configuration. Values from the TOML file at path (skipped when
// path is empty) are overridden by WARRANTYPANEL_* environment variables.
// WARRANTYPANEL_SECRET_KEY is required; everything else has a default.
func Load(path string) (*Config, error) {
	src := source{file: map[string]string{}}
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		SecretKey:  src.str("SECRET_KEY", ""),
		ListenAddr: src.str("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:     src.str("DB_PATH", "warrantypanel.db"),
		BaseURL:    src.str("BASE_URL", "https://api.example-rmm.com"),
		LogFormat:  strings.ToLower(src.str("LOG_FORMAT", "json")),
		SMTP: SMTP{
			Host:     src.str("SMTP_HOST", ""),
			Username: src.str("SMTP_USERNAME", ""),
			Password: src.str("SMTP_PASSWORD", ""),
			From:     src.str("SMTP_FROM", ""),
		},
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.UpstreamTimeout = src.duration("UPSTREAM_TIMEOUT", 30*time.Second, collect)
	cfg.ReportTimeout = src.duration("REPORT_TIMEOUT", 2*time.Minute, collect)
	cfg.SessionTTL = src.duration("SESSION_TTL", 12*time.Hour, collect)
	cfg.OTPCooldown = src.duration("OTP_COOLDOWN", 60*time.Second, collect)
	cfg.ReportConcurrency = src.integer("REPORT_CONCURRENCY", 4, 1, 64, collect)
	cfg.ReportWindowDays = src.integer("REPORT_WINDOW_DAYS", 90, 1, 3650, collect)
	cfg.SMTP.Port = src.integer("SMTP_PORT", 587, 1, 65535, collect)
	cfg.SMTP.TLS = src.boolean("SMTP_TLS", false, collect)
	cfg.SecureCookies = src.boolean("SECURE_COOKIES", false, collect)

	if v := src.str("LOG_LEVEL", "info"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			collect(fmt.Errorf("%sLOG_LEVEL has invalid level %q", envPrefix, v))
		}
	}

	switch {
	case cfg.SecretKey == "":
		collect(fmt.Errorf("%sSECRET_KEY is required", envPrefix))
	case len(cfg.SecretKey) < minSecretKeyLength:
		collect(fmt.Errorf("%sSECRET_KEY must be at least %d characters, got %d", envPrefix, minSecretKeyLength, len(cfg.SecretKey)))
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		collect(fmt.Errorf("%sLOG_FORMAT must be json or text, got %q", envPrefix, cfg.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile flattens a TOML file into upper-case keys matching the
// environment variable suffixes, so listen_addr maps to LISTEN_ADDR.
func readFile(path string) (map[string]string, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		switch v := v.(type) {
		case string:
			values[strings.ToUpper(key)] = v
		case int64, bool, float64:
			values[strings.ToUpper(key)] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("read config file %s: key %q must be a string, number or boolean", path, key)
		}
	}
	return values, nil
}

// source resolves a key from the environment first and the file second.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

func (s source) str(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (s source) duration(key string, def time.Duration, collect func(error)) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, key, v, err))
		return def
	}
	if parsed <= 0 {
		collect(fmt.Errorf("%s%s must be positive, got %s", envPrefix, key, parsed))
		return def
	}
	return parsed
}

func (s source) integer(key string, def, lo, hi int, collect func(error)) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("%s%s has invalid integer %q: %w", envPrefix, key, v, err))
		return def
	}
	if parsed < lo || parsed > hi {
		collect(fmt.Errorf("%s%s must be between %d and %d, got %d", envPrefix, key, lo, hi, parsed))
		return def
	}
	return parsed
}

func (s source) boolean(key string, def bool, collect func(error)) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		collect(fmt.Errorf("%s%s has invalid boolean %q: %w", envPrefix, key, v, err))
		return def
	}
	return parsed
}
