package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Clinic Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Routes   RoutesConfig   `yaml:"routes"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	TLS      TLSConfig           `yaml:"tls"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerTimeoutConfig contains HTTP timeout settings (seconds).
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SessionConfig contains session cookie and token settings.
type SessionConfig struct {
	// CookieName is the name of the session cookie carried on every response.
	CookieName string `yaml:"cookie_name"`

	// CookiePath scopes the session cookie. Default: "/"
	CookiePath string `yaml:"cookie_path"`

	// Secure marks the session cookie Secure. Enable in production (HTTPS).
	Secure bool `yaml:"secure"`

	// Secret is the HS256 signing secret for access tokens.
	// Always set via CLINICCORE_SESSION_SECRET in production.
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the access token lifetime in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh token lifetime in minutes.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// UpstreamTimeout bounds identity and profile lookups during
	// request-time validation (seconds). On timeout the request is
	// treated as unauthenticated.
	UpstreamTimeout int `yaml:"upstream_timeout"`
}

// RoutesConfig carries the route-class prefix tables consulted by the
// gateway. Prefixes are data so operators can extend route coverage
// without recompiling policy logic.
type RoutesConfig struct {
	// Public prefixes require no session (login, register, auth callback,
	// password reset).
	Public []string `yaml:"public"`

	// AuthOnly prefixes additionally redirect authenticated visitors away
	// (login and register pages). Every auth-only prefix is also public.
	AuthOnly []string `yaml:"auth_only"`

	// AdminRestricted prefixes require the admin role.
	AdminRestricted []string `yaml:"admin_restricted"`

	// RoleRestricted prefixes each require one of a listed set of roles.
	RoleRestricted []RoleRestrictedRoute `yaml:"role_restricted"`

	// LoginPath is where unauthenticated visitors are redirected.
	LoginPath string `yaml:"login_path"`

	// DefaultLandingPath is where authenticated visitors land by default.
	DefaultLandingPath string `yaml:"default_landing_path"`
}

// RoleRestrictedRoute binds a path prefix to the set of roles allowed
// through it.
type RoleRestrictedRoute struct {
	Prefix string   `yaml:"prefix"`
	Roles  []string `yaml:"roles"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CLINICCORE_SECTION_KEY
// For example: CLINICCORE_DATABASE_PATH, CLINICCORE_SESSION_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/cliniccore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Session: SessionConfig{
			CookieName:      "clinic_session",
			CookiePath:      "/",
			AccessTokenTTL:  15,
			RefreshTokenTTL: 10080,
			UpstreamTimeout: 5,
		},
		Routes: RoutesConfig{
			Public:   []string{"/login", "/register", "/auth", "/reset-password"},
			AuthOnly: []string{"/login", "/register"},
			AdminRestricted: []string{
				"/admin", "/settings", "/users",
			},
			RoleRestricted: []RoleRestrictedRoute{
				{Prefix: "/reports", Roles: []string{"admin", "dentist"}},
				{Prefix: "/analytics", Roles: []string{"admin", "dentist"}},
			},
			LoginPath:          "/login",
			DefaultLandingPath: "/dashboard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CLINICCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("CLINICCORE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CLINICCORE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Database
	if v := os.Getenv("CLINICCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Session - signing secret (IMPORTANT: always override in production)
	if v := os.Getenv("CLINICCORE_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("CLINICCORE_SESSION_SECURE"); v != "" {
		cfg.Session.Secure = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CLINICCORE_SESSION_COOKIE_NAME"); v != "" {
		cfg.Session.CookieName = v
	}
	if v := os.Getenv("CLINICCORE_SESSION_ACCESS_TOKEN_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			cfg.Session.AccessTokenTTL = ttl
		}
	}

	// Logging
	if v := os.Getenv("CLINICCORE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CLINICCORE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Session validation - signing secret is REQUIRED.
	// A forgeable token lets anyone impersonate any clinic's staff,
	// so weak secrets are rejected outright.
	const minSecretLength = 32
	if c.Session.Secret == "" {
		errs = append(errs, "session.secret is required (set CLINICCORE_SESSION_SECRET environment variable)")
	} else if len(c.Session.Secret) < minSecretLength {
		errs = append(errs, "session.secret must be at least 32 characters")
	}
	if c.Session.CookieName == "" {
		errs = append(errs, "session.cookie_name is required")
	}

	// Routes validation
	if c.Routes.LoginPath == "" {
		errs = append(errs, "routes.login_path is required")
	}
	if c.Routes.DefaultLandingPath == "" {
		errs = append(errs, "routes.default_landing_path is required")
	}
	for _, rr := range c.Routes.RoleRestricted {
		if rr.Prefix == "" {
			errs = append(errs, "routes.role_restricted entries require a prefix")
		}
		if len(rr.Roles) == 0 {
			errs = append(errs, fmt.Sprintf("routes.role_restricted %q requires at least one role", rr.Prefix))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the server write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// AccessTokenLifetime returns the access token TTL as a Duration.
func (c *SessionConfig) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Minute
}

// RefreshTokenLifetime returns the refresh token TTL as a Duration.
func (c *SessionConfig) RefreshTokenLifetime() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Minute
}

// UpstreamCallTimeout returns the upstream lookup timeout as a Duration.
func (c *SessionConfig) UpstreamCallTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeout) * time.Second
}
