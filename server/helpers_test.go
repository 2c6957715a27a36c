package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
)

const twoServerSource = `# operator notes
site_settings:
  multisite: false
  servers:
    - host: prod-db
      sites:
        "https://canonical.test": 1
        "https://canonical.test/shop": 2
    - host: staging-db
      sites:
        "http://staging.test": 1
        "http://staging.test/shop": 2
`

type memoryStore struct {
	mu      sync.Mutex
	records map[int]*host.TenantRecord
	err     error
}

func (s *memoryStore) QueryTenantRecord(_ context.Context, id int) (*host.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.records[id], nil
}

type fixture struct {
	path     string
	engine   *environment.Engine
	registry *host.Registry
}

func newFixture(t *testing.T, source string, opts environment.Options, store host.TenantStore) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site-settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	opts.Path = path
	registry := host.NewRegistry(store)
	engine, err := environment.New(opts, registry, logger.New("disabled", true))
	require.NoError(t, err)
	return &fixture{path: path, engine: engine, registry: registry}
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "sitesettings-test", Env: config.EnvDevelopment},
		Server: config.ServerConfig{
			Path: config.PathConfig{Health: "/health", Ready: "/ready", Bridge: "/_sitesettings"},
		},
		Admin: config.AdminConfig{
			Enabled:          true,
			NetworkSetupPath: "/wp-admin/network.php",
			SiteNewPath:      "/wp-admin/network/site-new.php",
			TenantHeader:     HeaderXTenantID,
		},
	}
}

func newTestServer(t *testing.T, f *fixture, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, f.engine, f.registry, logger.New("disabled", true))
	require.NoError(t, err)
	return s
}
