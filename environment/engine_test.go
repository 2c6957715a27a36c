package environment

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/patcher"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

const engineSource = `# operator header
site_settings:
  multisite: false
  servers:
    - host: prod-db
      sites:
        "https://example.com": 1
        "https://example.com/shop": 2
    - host: dev-db
      sites:
        "http://localhost:8080": 1
        "http://localhost:8080/shop": 2
`

type memoryStore struct {
	mu      sync.Mutex
	records map[int]*host.TenantRecord
	calls   int
}

func (s *memoryStore) QueryTenantRecord(_ context.Context, id int) (*host.TenantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.records[id], nil
}

func newTestEngine(t *testing.T, source string, store host.TenantStore) (*Engine, *host.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site-settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	registry := host.NewRegistry(store)
	engine, err := New(Options{Path: path}, registry, logger.New("disabled", true))
	require.NoError(t, err)
	return engine, registry
}

func setupTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	original := otel.GetTracerProvider()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(original)
	})
	return exporter
}

func TestNewFailsFastOnMissingSource(t *testing.T) {
	_, err := New(Options{Path: filepath.Join(t.TempDir(), "absent.yaml")}, host.NewRegistry(nil), logger.New("disabled", true))
	assert.ErrorIs(t, err, sitesettings.ErrMissingSource)
}

func TestBindAttachesResolution(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)

	req := httptest.NewRequest("GET", "http://localhost:8080/shop/cart", nil)
	ctx, res, err := engine.Bind(req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ServerIndex)
	assert.Equal(t, 2, res.TenantID)
	fromCtx, ok := multitenant.ResolutionFrom(ctx)
	require.True(t, ok)
	assert.Same(t, res, fromCtx)

	_, ok = multitenant.EnvironmentFrom(ctx)
	assert.False(t, ok, "environment is only injected in multisite mode")
}

func TestBindMiss(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)

	req := httptest.NewRequest("GET", "http://unknown.test/", nil)
	ctx, res, err := engine.Bind(req)

	assert.ErrorIs(t, err, multitenant.ErrResolutionMiss)
	assert.Nil(t, res)
	assert.Equal(t, req.Context(), ctx)
}

func TestBindInjectsEnvironmentInMultisiteMode(t *testing.T) {
	source := `site_settings:
  multisite: true
  servers:
    - sites:
        "https://example.com/": 1
        "https://example.com/shop": 2
`
	engine, _ := newTestEngine(t, source, nil)

	req := httptest.NewRequest("GET", "https://example.com/shop/", nil)
	ctx, _, err := engine.Bind(req)
	require.NoError(t, err)

	env, ok := multitenant.EnvironmentFrom(ctx)
	require.True(t, ok)
	assert.True(t, env.Multisite)
	assert.False(t, env.SubdomainInstall)
	assert.Equal(t, "/shop/", env.PathCurrentSite)
	assert.Equal(t, "example.com", env.DomainCurrentSite)
	assert.Equal(t, 2, env.TenantID)
}

func TestBindURL(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)

	ctx, res, err := engine.BindURL(context.Background(), "https://example.com/shop/item?x=1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ServerIndex)
	assert.Equal(t, 2, res.TenantID)
	_, ok := multitenant.ResolutionFrom(ctx)
	assert.True(t, ok)

	_, _, err = engine.BindURL(context.Background(), "https://elsewhere.test/")
	assert.ErrorIs(t, err, multitenant.ErrResolutionMiss)
}

func TestRewriteUsesBoundResolution(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)

	req := httptest.NewRequest("GET", "http://localhost:8080/shop/", nil)
	ctx, _, err := engine.Bind(req)
	require.NoError(t, err)

	body := []byte(`<a href="https://example.com/shop/item">` + `{"u":"https:\/\/example.com\/shop"}`)
	assert.Equal(t, `<a href="http://localhost:8080/shop/item">{"u":"http://localhost:8080/shop"}`,
		string(engine.Rewrite(ctx, body)))

	assert.Equal(t, body, engine.Rewrite(context.Background(), body))
}

func TestURLFiltersReportCurrentTenant(t *testing.T) {
	engine, registry := newTestEngine(t, engineSource, nil)

	req := httptest.NewRequest("GET", "http://localhost:8080/", nil)
	ctx, _, err := engine.Bind(req)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", registry.FilterOption(ctx, host.OptionHome, "https://example.com"))
	assert.Equal(t, "http://localhost:8080/shop",
		registry.FilterOption(multitenant.SetTenant(ctx, 2), host.OptionSiteURL, "https://example.com/shop"))
	assert.Equal(t, "https://example.com/x",
		registry.FilterOption(multitenant.SetTenant(ctx, 9), host.OptionHome, "https://example.com/x"))
	assert.Equal(t, "untouched", registry.FilterOption(context.Background(), host.OptionHome, "untouched"))
}

func TestTenantPathResolver(t *testing.T) {
	store := &memoryStore{records: map[int]*host.TenantRecord{
		2: {ID: 2, Domain: "example.com", Path: "/shop/"},
	}}
	engine, registry := newTestEngine(t, engineSource, store)

	req := httptest.NewRequest("GET", "http://localhost:8080/shop/", nil)
	ctx, _, err := engine.Bind(req)
	require.NoError(t, err)

	record, ok, err := registry.ResolveTenantPath(ctx, "localhost", "/shop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &host.TenantRecord{ID: 2, Domain: "localhost:8080", Path: "/shop/"}, record)

	_, ok, err = registry.ResolveTenantPath(ctx, "example.com", "/shop/")
	require.NoError(t, err)
	assert.False(t, ok, "other environments' hosts fall back to the host default")

	_, ok, err = registry.ResolveTenantPath(ctx, "localhost:8080", "/")
	require.NoError(t, err)
	assert.False(t, ok, "tenant without host record falls back")
}

func TestSettingOfMatchedServer(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)

	ctx, _, err := engine.Bind(httptest.NewRequest("GET", "https://example.com/", nil))
	require.NoError(t, err)

	v, ok := engine.Setting(ctx, "host")
	require.True(t, ok)
	assert.Equal(t, "prod-db", v)

	_, ok = engine.Setting(context.Background(), "host")
	assert.False(t, ok)
}

func TestHandleMultisiteEnabled(t *testing.T) {
	exporter := setupTracer(t)
	engine, _ := newTestEngine(t, engineSource, nil)
	ctx := context.Background()

	require.NoError(t, engine.HandleMultisiteEnabled(ctx))
	assert.True(t, engine.Model().Multisite, "model is reloaded after a successful patch")

	data, err := os.ReadFile(engine.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# operator header\nsite_settings:\n  multisite: true\n")

	assert.ErrorIs(t, engine.HandleMultisiteEnabled(ctx), patcher.ErrNoOp)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Contains(t, names, "sitesettings.patch.multisite")
	assert.Contains(t, names, "sitesettings.reload")
}

func TestHandleNewTenant(t *testing.T) {
	store := &memoryStore{records: map[int]*host.TenantRecord{
		3: {ID: 3, Domain: "example.com", Path: "/blog/"},
	}}
	engine, _ := newTestEngine(t, engineSource, store)

	ctx, _, err := engine.Bind(httptest.NewRequest("GET", "https://example.com/wp-admin/network/site-new.php?id=3", nil))
	require.NoError(t, err)

	require.NoError(t, engine.HandleNewTenant(ctx, 3))

	model := engine.Model()
	prod, ok := model.Servers[0].BaseURL(3)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/blog", prod)
	dev, ok := model.Servers[1].BaseURL(3)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8080/blog", dev)

	// Known now: short-circuits before the store is asked again.
	calls := store.calls
	ctx, _, err = engine.Bind(httptest.NewRequest("GET", "https://example.com/", nil))
	require.NoError(t, err)
	assert.ErrorIs(t, engine.HandleNewTenant(ctx, 3), patcher.ErrNoOp)
	assert.Equal(t, calls, store.calls)
}

func TestHandleNewTenantWithoutHostRecord(t *testing.T) {
	exporter := setupTracer(t)
	engine, _ := newTestEngine(t, engineSource, &memoryStore{})

	ctx, _, err := engine.Bind(httptest.NewRequest("GET", "https://example.com/", nil))
	require.NoError(t, err)

	assert.ErrorIs(t, engine.HandleNewTenant(ctx, 7), patcher.ErrNoOp)
	assert.ErrorIs(t, engine.HandleNewTenant(context.Background(), 7), multitenant.ErrResolutionMiss)

	var patchSpans tracetest.SpanStubs
	for _, span := range exporter.GetSpans() {
		if span.Name == "sitesettings.patch.tenant" {
			patchSpans = append(patchSpans, span)
		}
	}
	require.Len(t, patchSpans, 2)
	assert.NotEqual(t, codes.Error, patchSpans[0].Status.Code)
	assert.Equal(t, codes.Error, patchSpans[1].Status.Code)
}

func TestReloadKeepsModelOnFailure(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)
	before := engine.Model()

	require.NoError(t, os.WriteFile(engine.Path(), []byte("site_settings: ["), 0o644))

	err := engine.Reload(context.Background())
	assert.ErrorIs(t, err, sitesettings.ErrMalformedSource)
	assert.Same(t, before, engine.Model())
}

func TestCheckWritable(t *testing.T) {
	engine, _ := newTestEngine(t, engineSource, nil)
	assert.NoError(t, engine.CheckWritable())
}
