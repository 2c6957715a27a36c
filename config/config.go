package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable the loader reads. Nested keys are
// separated by a double underscore: SITESETTINGS_SERVER__PORT sets server.port.
const EnvPrefix = "SITESETTINGS_"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. The YAML file at path, when path is not empty
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &ConfigError{
				Category: "invalid",
				Field:    path,
				Message:  err.Error(),
				Action:   "fix the yaml syntax or point --config at an existing file",
			}
		}
	}

	if err := k.Load(envprovider.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envKey converts SITESETTINGS_SITE_SETTINGS__AUTO_RELOAD__ENABLED to
// site_settings.auto_reload.enabled.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":       "sitesettings",
		"app.version":    "v1.0.0",
		"app.env":        EnvDevelopment,
		"app.rate.limit": 100,
		"app.rate.burst": 200,

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.timeout.read":     "15s",
		"server.timeout.write":    "30s",
		"server.timeout.idle":     "60s",
		"server.timeout.shutdown": "10s",
		"server.path.health":      "/health",
		"server.path.ready":       "/ready",
		"server.path.bridge":      "/_sitesettings",

		"log.level":  "info",
		"log.pretty": false,

		"site_settings.path":                 "site-settings.yaml",
		"site_settings.strict":               false,
		"site_settings.trust_proxies":        false,
		"site_settings.auto_reload.enabled":  true,
		"site_settings.auto_reload.debounce": "250ms",

		"tenant_store.driver":            "mysql",
		"tenant_store.table_prefix":      "wp_",
		"tenant_store.max_open_conns":    4,
		"tenant_store.conn_max_lifetime": "5m",

		"admin.enabled":            true,
		"admin.network_setup_path": "/wp-admin/network.php",
		"admin.site_new_path":      "/wp-admin/network/site-new.php",
		"admin.tenant_header":      "X-Tenant-ID",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// Exists reports whether key was set by any source.
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}

// All returns the merged configuration as a flat key/value map.
func (c *Config) All() map[string]any {
	if c.k == nil {
		return map[string]any{}
	}
	return c.k.All()
}
