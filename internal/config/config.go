// Package config loads dg-queue settings from a YAML file, DGQ_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/dg-queue/pkg/gateway"
	"github.com/Sternrassler/dg-queue/pkg/logging"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "DGQ_CONFIG"

// AccessMethods are the transports DataGateway accepts.
var AccessMethods = []string{"https", "globus", "dls"}

var (
	// ErrInvalidAccessMethod is returned for an access method outside AccessMethods.
	ErrInvalidAccessMethod = errors.New("config: invalid access method")

	// ErrUsernameRequired is returned when no username is configured.
	ErrUsernameRequired = errors.New("config: username is required")
)

// Config defines configuration for the dg-queue CLI.
type Config struct {
	URL             string        `yaml:"url"`
	Authenticator   string        `yaml:"authenticator"`
	Username        string        `yaml:"username"`
	PasswordFile    string        `yaml:"password_file"`
	DownloadName    string        `yaml:"download_name"`
	AccessMethod    string        `yaml:"access_method"`
	EmailAddress    string        `yaml:"email_address"`
	MonitorInterval float64       `yaml:"monitor_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	RedisURL        string        `yaml:"redis_url"`
	LedgerTTL       time.Duration `yaml:"ledger_ttl"`
	PushgatewayURL  string        `yaml:"pushgateway_url"`
	Log             LogConfig     `yaml:"log"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config with the CLI defaults.
func Default() Config {
	return Config{
		URL:           gateway.DefaultBaseURL,
		Authenticator: "ldap",
		AccessMethod:  "dls",
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	URL             string   `yaml:"url"`
	Authenticator   string   `yaml:"authenticator"`
	Username        string   `yaml:"username"`
	PasswordFile    string   `yaml:"password_file"`
	DownloadName    string   `yaml:"download_name"`
	AccessMethod    string   `yaml:"access_method"`
	EmailAddress    string   `yaml:"email_address"`
	MonitorInterval *float64 `yaml:"monitor_interval"`
	HTTPTimeout     string   `yaml:"http_timeout"`
	RedisURL        string   `yaml:"redis_url"`
	LedgerTTL       string   `yaml:"ledger_ttl"`
	PushgatewayURL  string   `yaml:"pushgateway_url"`
	Log             struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"log"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	setString(&cfg.URL, yc.URL)
	setString(&cfg.Authenticator, yc.Authenticator)
	setString(&cfg.Username, yc.Username)
	setString(&cfg.PasswordFile, yc.PasswordFile)
	setString(&cfg.DownloadName, yc.DownloadName)
	setString(&cfg.AccessMethod, yc.AccessMethod)
	setString(&cfg.EmailAddress, yc.EmailAddress)
	setString(&cfg.RedisURL, yc.RedisURL)
	setString(&cfg.PushgatewayURL, yc.PushgatewayURL)
	setString(&cfg.Log.Level, yc.Log.Level)
	if yc.MonitorInterval != nil {
		cfg.MonitorInterval = *yc.MonitorInterval
	}
	if yc.Log.Pretty != nil {
		cfg.Log.Pretty = *yc.Log.Pretty
	}
	if yc.HTTPTimeout != "" {
		d, err := time.ParseDuration(yc.HTTPTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse http_timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if yc.LedgerTTL != "" {
		d, err := time.ParseDuration(yc.LedgerTTL)
		if err != nil {
			return Config{}, fmt.Errorf("parse ledger_ttl: %w", err)
		}
		cfg.LedgerTTL = d
	}

	return cfg, nil
}

// Load reads the file named by DGQ_CONFIG (if any) and applies env overrides.
// An explicit path takes precedence over DGQ_CONFIG.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DGQ_ prefix.
func (c *Config) LoadFromEnv() error {
	setString(&c.URL, os.Getenv("DGQ_URL"))
	setString(&c.Authenticator, os.Getenv("DGQ_AUTHENTICATOR"))
	setString(&c.Username, os.Getenv("DGQ_USERNAME"))
	setString(&c.PasswordFile, os.Getenv("DGQ_PASSWORD_FILE"))
	setString(&c.DownloadName, os.Getenv("DGQ_DOWNLOAD_NAME"))
	setString(&c.AccessMethod, os.Getenv("DGQ_ACCESS_METHOD"))
	setString(&c.EmailAddress, os.Getenv("DGQ_EMAIL_ADDRESS"))
	setString(&c.RedisURL, os.Getenv("DGQ_REDIS_URL"))
	setString(&c.PushgatewayURL, os.Getenv("DGQ_PUSHGATEWAY_URL"))
	setString(&c.Log.Level, os.Getenv("DGQ_LOG_LEVEL"))

	if v := os.Getenv("DGQ_MONITOR_INTERVAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse DGQ_MONITOR_INTERVAL: %w", err)
		}
		c.MonitorInterval = f
	}
	if v := os.Getenv("DGQ_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DGQ_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("DGQ_LEDGER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DGQ_LEDGER_TTL: %w", err)
		}
		c.LedgerTTL = d
	}
	if v := os.Getenv("DGQ_LOG_PRETTY"); v != "" {
		c.Log.Pretty = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Username == "" {
		return ErrUsernameRequired
	}
	if c.Authenticator == "" {
		return errors.New("config: authenticator is required")
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: url must be an http(s) address (got %q)", c.URL)
	}

	if !slices.Contains(AccessMethods, c.AccessMethod) {
		return fmt.Errorf("%w %q (want one of %s)", ErrInvalidAccessMethod, c.AccessMethod, strings.Join(AccessMethods, ", "))
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: http_timeout must be >= 0 (got %s)", c.HTTPTimeout)
	}
	if c.LedgerTTL < 0 {
		return fmt.Errorf("config: ledger_ttl must be >= 0 (got %s)", c.LedgerTTL)
	}

	if err := logging.ValidateLevel(logging.LogLevel(c.Log.Level)); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// Monitoring reports whether submitted Downloads should be polled.
func (c *Config) Monitoring() bool {
	return c.MonitorInterval > 0
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
