// Package config loads the catalog configuration through viper.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"server-catalog/pkg/database"
	"server-catalog/pkg/fetch"
	"server-catalog/pkg/locale"
	"server-catalog/pkg/selector"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SERVER_CATALOG_DATABASE_PATH.
const EnvPrefix = "SERVER_CATALOG"

type Config struct {
	Database  database.Options `mapstructure:"database"`
	Upstream  Upstream         `mapstructure:"upstream"`
	Refresh   Refresh          `mapstructure:"refresh"`
	Selection Selection        `mapstructure:"selection"`
	Locale    string           `mapstructure:"locale"`
	API       API              `mapstructure:"api"`
}

type Upstream struct {
	BaseURL    string   `mapstructure:"base_url"`
	TimeoutSec int      `mapstructure:"timeout_sec"`
	Retries    int      `mapstructure:"retries"`
	Headers    []string `mapstructure:"headers"`
	// Transport is an outline config URL, or ssconfig://host/path to fetch
	// a Shadowsocks config over HTTPS.
	Transport   string    `mapstructure:"transport"`
	Shadowsocks *SSConfig `mapstructure:"shadowsocks"`
}

type Refresh struct {
	MaxDeleteTier int `mapstructure:"max_delete_tier"`
}

type Selection struct {
	UserTier   int                          `mapstructure:"user_tier"`
	Protocol   string                       `mapstructure:"protocol"`
	ServerType string                       `mapstructure:"server_type"`
	Smart      selector.SmartProtocolConfig `mapstructure:"smart"`
}

type API struct {
	Listen string `mapstructure:"listen"`
}

// SetDefaults registers every key with its default value, which also makes
// each key reachable through environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "catalog.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "catalog")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("upstream.base_url", "https://api.protonvpn.ch")
	v.SetDefault("upstream.timeout_sec", 10)
	v.SetDefault("upstream.retries", 2)
	v.SetDefault("upstream.headers", []string{})
	v.SetDefault("upstream.transport", "")

	v.SetDefault("refresh.max_delete_tier", 0)

	v.SetDefault("selection.user_tier", 0)
	v.SetDefault("selection.protocol", "smart")
	v.SetDefault("selection.server_type", "standard")
	v.SetDefault("selection.smart.openvpn", true)
	v.SetDefault("selection.smart.ikev2", true)
	v.SetDefault("selection.smart.wireguard_udp", true)
	v.SetDefault("selection.smart.wireguard_tcp", true)
	v.SetDefault("selection.smart.wireguard_tls", true)

	v.SetDefault("locale", "en")
	v.SetDefault("api.listen", ":8080")
}

// Init prepares v the way the CLI uses it: defaults, config file search
// paths (or file when non-empty) and environment overrides.
func Init(v *viper.Viper, file string) {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.server-catalog")
		v.AddConfigPath("/etc/server-catalog/")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Read reads the config file. A missing file is not an error when no
// explicit file was requested.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if _, err := cfg.Selection.Environment(); err != nil {
		return nil, err
	}
	if _, err := locale.Parse(cfg.Locale); err != nil {
		return nil, err
	}
	if cfg.Refresh.MaxDeleteTier < 0 {
		return nil, fmt.Errorf("refresh.max_delete_tier must not be negative")
	}
	return &cfg, nil
}

// Environment converts the selection settings.
func (s Selection) Environment() (selector.Environment, error) {
	protocol, err := selector.ParseConnectionProtocol(s.Protocol)
	if err != nil {
		return selector.Environment{}, fmt.Errorf("selection.protocol: %w", err)
	}
	serverType, err := selector.ParseServerType(s.ServerType)
	if err != nil {
		return selector.Environment{}, fmt.Errorf("selection.server_type: %w", err)
	}
	return selector.Environment{
		UserTier:   s.UserTier,
		ServerType: serverType,
		Protocol:   protocol,
		Smart:      s.Smart,
	}, nil
}

// TransportURL resolves the outline transport to reach the API through.
// An inline Shadowsocks section wins over Transport.
func (u Upstream) TransportURL(ctx context.Context) (string, error) {
	if u.Shadowsocks != nil && u.Shadowsocks.Server != "" {
		return u.Shadowsocks.BuildURL()
	}
	if strings.HasPrefix(u.Transport, "ssconfig://") {
		return FetchSSConfig(ctx, u.Transport)
	}
	return u.Transport, nil
}

// FetchOptions builds the HTTP client options for the upstream API.
func (u Upstream) FetchOptions(ctx context.Context, logger *slog.Logger) (fetch.Options, error) {
	transport, err := u.TransportURL(ctx)
	if err != nil {
		return fetch.Options{}, err
	}
	retries := u.Retries
	if retries == 0 {
		retries = -1
	}
	return fetch.Options{
		Transport:  transport,
		Headers:    u.Headers,
		TimeoutSec: u.TimeoutSec,
		Retries:    retries,
		Logger:     logger,
	}, nil
}
