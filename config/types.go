package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the service configuration. The site declaration itself lives in a
// separate file named by SiteSettings.Path.
type Config struct {
	App          AppConfig          `koanf:"app"`
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	SiteSettings SiteSettingsConfig `koanf:"site_settings"`
	TenantStore  TenantStoreConfig  `koanf:"tenant_store"`
	Admin        AdminConfig        `koanf:"admin"`
	Upstream     UpstreamConfig     `koanf:"upstream"`

	// k holds the underlying Koanf instance
	k *koanf.Koanf
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string     `koanf:"name"`
	Version string     `koanf:"version"`
	Env     string     `koanf:"env"`
	Rate    RateConfig `koanf:"rate"`
}

// RateConfig holds rate limiting settings. A zero limit disables limiting.
type RateConfig struct {
	Limit int `koanf:"limit"`
	Burst int `koanf:"burst"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout TimeoutConfig `koanf:"timeout"`
	Path    PathConfig    `koanf:"path"`
}

// TimeoutConfig holds server timeouts.
type TimeoutConfig struct {
	Read     time.Duration `koanf:"read"`
	Write    time.Duration `koanf:"write"`
	Idle     time.Duration `koanf:"idle"`
	Shutdown time.Duration `koanf:"shutdown"`
}

// PathConfig holds the service's own routes.
type PathConfig struct {
	Health string `koanf:"health"`
	Ready  string `koanf:"ready"`
	Bridge string `koanf:"bridge"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// SiteSettingsConfig locates the site declaration and tunes resolution.
type SiteSettingsConfig struct {
	Path         string           `koanf:"path"`
	Strict       bool             `koanf:"strict"`
	TrustProxies bool             `koanf:"trust_proxies"`
	AutoReload   AutoReloadConfig `koanf:"auto_reload"`
}

// AutoReloadConfig controls reloading the site declaration when its file changes.
type AutoReloadConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Debounce time.Duration `koanf:"debounce"`
}

// TenantStoreConfig configures lookups in the host's tenant table.
type TenantStoreConfig struct {
	Driver          string        `koanf:"driver"`
	TablePrefix     string        `koanf:"table_prefix"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// AdminConfig names the host's administrative pages that trigger patches.
type AdminConfig struct {
	Enabled          bool   `koanf:"enabled"`
	NetworkSetupPath string `koanf:"network_setup_path"`
	SiteNewPath      string `koanf:"site_new_path"`
	TenantHeader     string `koanf:"tenant_header"`
}

// UpstreamConfig points at the host runtime requests are forwarded to. An empty
// URL serves only the service's own routes.
type UpstreamConfig struct {
	URL string `koanf:"url"`
}
