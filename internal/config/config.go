package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	API     APIConfig
	Sync    SyncConfig
	Preview PreviewConfig
	Server  ServerConfig
	App     AppConfig
}

// APIConfig describes the remote QR code collection endpoint.
type APIConfig struct {
	BaseURL        string        `envconfig:"QR_API_BASE_URL" required:"true"` // e.g. http://127.0.0.1:8000/api/v1/qr-generate/
	Timeout        time.Duration `envconfig:"QR_API_TIMEOUT" default:"60s"`
	ConnectTimeout time.Duration `envconfig:"QR_API_CONNECT_TIMEOUT" default:"5s"`
	MaxPages       int           `envconfig:"QR_API_MAX_PAGES" default:"50"`
}

// Validate validates the API configuration.
func (c *APIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.ConnectTimeout > c.Timeout {
		return fmt.Errorf("connect timeout (%s) cannot exceed timeout (%s)", c.ConnectTimeout, c.Timeout)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	return nil
}

// SyncConfig holds the sync controller configuration.
type SyncConfig struct {
	SuccessTTL        time.Duration `envconfig:"SYNC_SUCCESS_TTL" default:"3s"`
	ReloadAfterCreate bool          `envconfig:"SYNC_RELOAD_AFTER_CREATE" default:"true"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.SuccessTTL <= 0 {
		return fmt.Errorf("success TTL must be positive")
	}
	return nil
}

// PreviewConfig holds the live preview image configuration.
type PreviewConfig struct {
	BaseURL string `envconfig:"PREVIEW_BASE_URL" default:"https://api.qrserver.com/v1/create-qr-code/"`
	Size    int    `envconfig:"PREVIEW_SIZE" default:"160"`
}

// Validate validates the preview configuration.
func (c *PreviewConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid preview base URL: %w", err)
	}
	if c.Size < 16 || c.Size > 1000 {
		return fmt.Errorf("preview size must be between 16 and 1000, got %d", c.Size)
	}
	return nil
}

// ServerConfig holds HTTP server configuration for the gateway.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"75s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS"` // empty allows any origin
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment    string `envconfig:"APP_ENV" required:"true"` // development, staging, production, test
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
	ServiceName    string `envconfig:"SERVICE_NAME" default:"qrhistory"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}
	if err := ValidateLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateLogLevel reports whether level is one of debug, info, warn, error.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
}

type section struct {
	name     string
	target   any
	validate func() error
}

// Load loads configuration from environment variables only.
// DotEnvFile is loaded separately, see LoadDotEnv.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []section{
		{"API", &cfg.API, cfg.API.Validate},
		{"Sync", &cfg.Sync, cfg.Sync.Validate},
		{"Preview", &cfg.Preview, cfg.Preview.Validate},
		{"Server", &cfg.Server, cfg.Server.Validate},
		{"App", &cfg.App, cfg.App.Validate},
	}

	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}
