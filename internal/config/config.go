package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderLocal  = "local"
	ProviderKratos = "kratos"
)

type Config struct {
	AppPort    string `mapstructure:"app_port"`
	AppBaseURL string `mapstructure:"app_base_url"` // public URL of this app, used for return_to links
	LogLevel   string `mapstructure:"log_level"`

	IdentityProvider  string        `mapstructure:"identity_provider"` // ProviderLocal or ProviderKratos
	SessionCookieName string        `mapstructure:"session_cookie_name"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"` // principal cache, kratos mode only

	KratosPublicURL string        `mapstructure:"kratos_public_url"`
	KratosAdminURL  string        `mapstructure:"kratos_admin_url"`
	KratosTimeout   time.Duration `mapstructure:"kratos_timeout"`

	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	GoogleRedirectURL  string `mapstructure:"google_redirect_url"`

	KeycloakIssuer        string `mapstructure:"keycloak_issuer"`
	KeycloakClientID      string `mapstructure:"keycloak_client_id"`
	KeycloakRedirectURL   string `mapstructure:"keycloak_redirect_url"`
	KeycloakPublicBaseURL string `mapstructure:"keycloak_public_base_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	DatabaseDSN string `mapstructure:"database_dsn"`

	AnalyticsStream  string        `mapstructure:"analytics_stream"`  // empty disables the identify hook
	PlaceholderAfter time.Duration `mapstructure:"placeholder_after"` // 0 waits for resolution

	SignInRatePerSec float64 `mapstructure:"signin_rate_per_sec"`
	SignInBurst      int     `mapstructure:"signin_burst"`
}

// Load reads configuration from environment variables with defaults.
// KEY_FILE, when set, names a file holding the value of KEY.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if err := readSecretFiles(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	cfg.IdentityProvider = strings.ToLower(cfg.IdentityProvider)
	cfg.KratosPublicURL = strings.TrimRight(cfg.KratosPublicURL, "/")
	cfg.KratosAdminURL = strings.TrimRight(cfg.KratosAdminURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "8080")
	v.SetDefault("app_base_url", "http://localhost:8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("identity_provider", ProviderLocal)
	v.SetDefault("session_cookie_name", "")
	v.SetDefault("cookie_secure", true)
	v.SetDefault("cache_ttl", 30*time.Second)

	v.SetDefault("kratos_public_url", "http://kratos:4433")
	v.SetDefault("kratos_admin_url", "http://kratos:4434")
	v.SetDefault("kratos_timeout", 3*time.Second)

	v.SetDefault("google_client_id", "")
	v.SetDefault("google_client_secret", "")
	v.SetDefault("google_redirect_url", "")

	v.SetDefault("keycloak_issuer", "")
	v.SetDefault("keycloak_client_id", "")
	v.SetDefault("keycloak_redirect_url", "")
	v.SetDefault("keycloak_public_base_url", "")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")

	v.SetDefault("database_dsn", "")

	v.SetDefault("analytics_stream", "")
	v.SetDefault("placeholder_after", time.Duration(0))

	v.SetDefault("signin_rate_per_sec", 1.0)
	v.SetDefault("signin_burst", 5)
}

// readSecretFiles overrides every known key whose KEY_FILE variable is set.
func readSecretFiles(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(key) + "_FILE"
		path := os.Getenv(envKey)
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", envKey, err)
		}
		v.Set(key, strings.TrimSpace(string(content)))
	}
	return nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.AppPort == "" {
		return fmt.Errorf("APP_PORT cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN cannot be empty")
	}

	switch c.IdentityProvider {
	case ProviderLocal:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty for the local identity provider")
		}
	case ProviderKratos:
		if c.KratosPublicURL == "" || c.KratosAdminURL == "" {
			return fmt.Errorf("KRATOS_PUBLIC_URL and KRATOS_ADMIN_URL are required for the kratos identity provider")
		}
		if c.KratosTimeout <= 0 {
			return fmt.Errorf("KRATOS_TIMEOUT must be positive")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be %q or %q, got %q", ProviderLocal, ProviderKratos, c.IdentityProvider)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.PlaceholderAfter < 0 {
		return fmt.Errorf("PLACEHOLDER_AFTER must not be negative")
	}
	if c.SignInRatePerSec <= 0 || c.SignInBurst <= 0 {
		return fmt.Errorf("SIGNIN_RATE_PER_SEC and SIGNIN_BURST must be positive")
	}

	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KeycloakEnabled reports whether Keycloak sign-in is configured.
func (c Config) KeycloakEnabled() bool {
	return c.KeycloakIssuer != "" && c.KeycloakClientID != "" &&
		c.KeycloakRedirectURL != "" && c.KeycloakPublicBaseURL != ""
}
