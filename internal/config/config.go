// Package config loads front desk server settings from a file, the
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/evcraddock/front-desk/internal/db"
	"github.com/evcraddock/front-desk/internal/email"
	"github.com/evcraddock/front-desk/internal/visit"
)

// EnvPrefix is prepended to every environment variable, e.g. FD_PORT.
const EnvPrefix = "FD"

// Config holds the server settings.
type Config struct {
	Port          int              `mapstructure:"port"`
	BaseURL       string           `mapstructure:"base_url"`
	DevMode       bool             `mapstructure:"dev_mode"`
	DBPath        string           `mapstructure:"db_path"`
	Collection    string           `mapstructure:"collection"`
	AdminEmail    string           `mapstructure:"admin_email"`
	AdminPassword string           `mapstructure:"admin_password"`
	SMTP          email.SMTPConfig `mapstructure:"smtp"`
}

// SecureCookies reports whether the server is reached over HTTPS.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// RPID is the WebAuthn relying party id: the host of BaseURL.
func (c Config) RPID() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}

// Load reads configFile (YAML), or ./frontdesk.yaml when configFile is
// empty and such a file exists, then applies FD_* environment overrides.
func Load(configFile string) (Config, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("frontdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file, using defaults and environment")
	} else {
		slog.Info("using config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.AdminEmail == "" {
		return fmt.Errorf("admin email is required (set %s_ADMIN_EMAIL)", EnvPrefix)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("collection name is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) error {
	dbPath, err := db.DefaultPath()
	if err != nil {
		return err
	}

	v.SetDefault("port", 8080)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("dev_mode", false)
	v.SetDefault("db_path", dbPath)
	v.SetDefault("collection", visit.DefaultCollection)
	v.SetDefault("admin_email", "")
	v.SetDefault("admin_password", "")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.from", "")
	return nil
}
