package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Tenant store drivers accepted by the configuration.
var tenantStoreDrivers = []string{"mysql", "pgx"}

// Validate checks every section and returns the first problem found.
func Validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := validateSiteSettings(&cfg.SiteSettings); err != nil {
		return fmt.Errorf("site settings config: %w", err)
	}

	if err := validateTenantStore(&cfg.TenantStore); err != nil {
		return fmt.Errorf("tenant store config: %w", err)
	}

	if err := validateAdmin(&cfg.Admin); err != nil {
		return fmt.Errorf("admin config: %w", err)
	}

	if err := validateUpstream(&cfg.Upstream); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}

	return nil
}

func validateApp(cfg *AppConfig) error {
	if cfg.Name == "" {
		return NewMissingFieldError("app.name")
	}

	validEnvs := []string{EnvDevelopment, EnvStaging, EnvProduction}
	if !slices.Contains(validEnvs, cfg.Env) {
		return NewInvalidFieldError("app.env", fmt.Sprintf("invalid environment: %s", cfg.Env), validEnvs)
	}

	if cfg.Rate.Limit < 0 || cfg.Rate.Burst < 0 {
		return NewInvalidFieldError("app.rate", "rate limit and burst must not be negative", nil)
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return NewInvalidFieldError("server.port", fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Port), nil)
	}

	if cfg.Timeout.Read <= 0 {
		return NewInvalidFieldError("server.timeout.read", "read timeout must be positive", nil)
	}

	if cfg.Timeout.Write <= 0 {
		return NewInvalidFieldError("server.timeout.write", "write timeout must be positive", nil)
	}

	for field, path := range map[string]string{
		"server.path.health": cfg.Path.Health,
		"server.path.ready":  cfg.Path.Ready,
		"server.path.bridge": cfg.Path.Bridge,
	} {
		if path != "" && !strings.HasPrefix(path, "/") {
			return NewInvalidFieldError(field, "path must start with /", nil)
		}
	}

	return nil
}

func validateLog(cfg *LogConfig) error {
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return NewInvalidFieldError("log.level", fmt.Sprintf("unknown level: %s", cfg.Level),
			[]string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"})
	}
	return nil
}

func validateSiteSettings(cfg *SiteSettingsConfig) error {
	if cfg.Path == "" {
		return NewMissingFieldError("site_settings.path")
	}
	if cfg.AutoReload.Enabled && cfg.AutoReload.Debounce < 0 {
		return NewInvalidFieldError("site_settings.auto_reload.debounce", "debounce must not be negative", nil)
	}
	return nil
}

func validateTenantStore(cfg *TenantStoreConfig) error {
	if !slices.Contains(tenantStoreDrivers, cfg.Driver) {
		return NewInvalidFieldError("tenant_store.driver", fmt.Sprintf("unsupported driver: %s", cfg.Driver), tenantStoreDrivers)
	}
	if cfg.MaxOpenConns < 0 {
		return NewInvalidFieldError("tenant_store.max_open_conns", "must not be negative", nil)
	}
	return nil
}

func validateAdmin(cfg *AdminConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.NetworkSetupPath == "" {
		return NewMissingFieldError("admin.network_setup_path")
	}
	if cfg.SiteNewPath == "" {
		return NewMissingFieldError("admin.site_new_path")
	}
	return nil
}

func validateUpstream(cfg *UpstreamConfig) error {
	if cfg.URL == "" {
		return nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewInvalidFieldError("upstream.url", fmt.Sprintf("not an absolute url: %s", cfg.URL), nil)
	}
	return nil
}
