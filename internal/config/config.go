// Package config loads and validates the quoteshelf YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override file values.
const EnvPrefix = "QUOTESHELF_"

const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second

	minRefreshInterval = time.Minute
	maxRefreshInterval = 24 * time.Hour
	minRequestTimeout  = time.Second
	maxRequestTimeout  = 5 * time.Minute
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// RemoteURL is the base URL of the backend (e.g. "https://xyz.supabase.co").
	RemoteURL string `yaml:"remote_url" validate:"required"`

	// APIKey is the project's public (anon) key, sent on every request.
	APIKey string `yaml:"api_key" validate:"required"`

	// AccessToken is the signed-in user's session token. Leave empty to run
	// signed out: quotes still refresh, favorites and collections do not.
	AccessToken string `yaml:"access_token,omitempty"`

	// UserID skips the identity lookup when set together with AccessToken.
	UserID string `yaml:"user_id,omitempty"`

	// RefreshInterval controls how often the daemon refreshes the cache.
	// Minimum 1m, maximum 24h. Defaults to 15m if unset.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// RequestTimeout bounds every HTTP request to the backend.
	// Minimum 1s, maximum 5m. Defaults to 30s if unset.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// DBPath overrides the cache database location.
	DBPath string `yaml:"db_path,omitempty"`

	// Log configures log level, format and optional file output.
	Log *LogConfig `yaml:"log,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// LogConfig holds optional logging settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"  validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`

	// File enables rotating file output at the given path.
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `yaml:"max_backups,omitempty" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" validate:"omitempty,min=0,max=365"`
	Compress   bool   `yaml:"compress,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "quoteshelf".
	ServiceName string `yaml:"service_name,omitempty"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/quoteshelf/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "quoteshelf", "config.yaml"), nil
}

// Load reads the configuration file at path, applies QUOTESHELF_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overlays the connection settings from the environment, e.g.
// QUOTESHELF_API_KEY overrides api_key.
func (c *Config) applyEnv() error {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return fmt.Errorf("loading environment overrides: %w", err)
	}

	for key, field := range map[string]*string{
		"remote_url":   &c.RemoteURL,
		"api_key":      &c.APIKey,
		"access_token": &c.AccessToken,
		"user_id":      &c.UserID,
	} {
		if k.Exists(key) {
			*field = k.String(key)
		}
	}
	return nil
}

var structValidator = newValidator()

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate fills defaults and checks that all fields are present and well-formed.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			return fmt.Errorf("%s: failed %q check", field, fe.Tag())
		}
		return err
	}

	u, err := url.ParseRequestURI(c.RemoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote_url %q must be a valid http or https URL", c.RemoteURL)
	}

	if c.AccessToken == "" && c.UserID != "" {
		return fmt.Errorf("user_id requires access_token")
	}

	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("refresh_interval %v is too short (minimum 1m)", c.RefreshInterval)
	}
	if c.RefreshInterval > maxRefreshInterval {
		return fmt.Errorf("refresh_interval %v is too long (maximum 24h)", c.RefreshInterval)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < minRequestTimeout {
		return fmt.Errorf("request_timeout %v is too short (minimum 1s)", c.RequestTimeout)
	}
	if c.RequestTimeout > maxRequestTimeout {
		return fmt.Errorf("request_timeout %v is too long (maximum 5m)", c.RequestTimeout)
	}

	return nil
}

// Write saves the configuration as YAML at path, creating parent
// directories. The file is readable by the owner only since it holds keys.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}
