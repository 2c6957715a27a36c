// Package environment wires the site settings model, request resolution, output
// rewriting, self-patching and the host bridge into one engine that is built once
// per process and shared by every request.
package environment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/patcher"
	"github.com/gaborage/go-sitesettings/rewrite"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

const tracerName = "github.com/gaborage/go-sitesettings/environment"

// Options configures an Engine.
type Options struct {
	// Path is the site settings file.
	Path string
	// Strict turns resolution misses into errors instead of host defaults.
	Strict bool
	// TrustProxies makes request URL reconstruction honor X-Forwarded-* headers.
	TrustProxies bool
}

// Engine resolves requests against the current model and applies patches to the
// site settings file. The model is swapped as a whole on reload and never mutated.
type Engine struct {
	opts     Options
	log      logger.Logger
	bridge   host.Bridge
	patcher  *patcher.Patcher
	resolver multitenant.SiteResolver

	model   atomic.Pointer[sitesettings.Model]
	tenants singleflight.Group
}

// New loads the site settings file and registers the engine's filters with the
// bridge. A load failure is returned unchanged so callers can halt startup.
func New(opts Options, bridge host.Bridge, log logger.Logger) (*Engine, error) {
	model, err := sitesettings.Load(opts.Path)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:     opts,
		log:      log,
		bridge:   bridge,
		patcher:  patcher.New(opts.Path, log),
		resolver: multitenant.SiteResolver{TrustProxies: opts.TrustProxies},
	}
	e.model.Store(model)

	bridge.RegisterURLFilter(host.OptionHome, e.filterURL)
	bridge.RegisterURLFilter(host.OptionSiteURL, e.filterURL)
	bridge.RegisterTenantPathResolver(e.resolveTenantPath)

	log.Info().
		Str("path", opts.Path).
		Int("servers", len(model.Servers)).
		Bool("multisite", model.Multisite).
		Msg("Site settings loaded")
	return e, nil
}

// Model returns the current model.
func (e *Engine) Model() *sitesettings.Model {
	return e.model.Load()
}

// Path returns the site settings file.
func (e *Engine) Path() string {
	return e.opts.Path
}

// Strict reports whether resolution misses are errors.
func (e *Engine) Strict() bool {
	return e.opts.Strict
}

// Bridge returns the host bridge the engine is registered with.
func (e *Engine) Bridge() host.Bridge {
	return e.bridge
}

// Reload re-reads the site settings file. On failure the previous model stays.
func (e *Engine) Reload(ctx context.Context) (err error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "sitesettings.reload")
	defer func() { endSpan(span, err) }()

	model, err := sitesettings.Load(e.opts.Path)
	if err != nil {
		e.log.Error().Err(err).Str("path", e.opts.Path).Msg("Site settings reload failed, keeping previous model")
		return err
	}
	e.model.Store(model)
	e.log.Info().Str("path", e.opts.Path).Int("servers", len(model.Servers)).Msg("Site settings reloaded")
	return nil
}

// Resolve matches the request against the current model. ok is false on a
// resolution miss.
func (e *Engine) Resolve(req *http.Request) (*multitenant.Resolution, bool) {
	_, span := otel.Tracer(tracerName).Start(req.Context(), "sitesettings.resolve")
	defer span.End()

	res, ok := e.resolver.ResolveRequest(e.Model(), req)
	if !ok {
		span.SetAttributes(attribute.Bool("sitesettings.matched", false))
		return nil, false
	}
	span.SetAttributes(
		attribute.Bool("sitesettings.matched", true),
		attribute.Int("sitesettings.server", res.ServerIndex),
		attribute.Int("sitesettings.tenant_id", res.TenantID),
		attribute.String("sitesettings.base_url", res.BaseURL),
	)
	return res, true
}

// Bind resolves req and returns a context carrying the resolution and, in
// multisite mode, the environment. A miss returns multitenant.ErrResolutionMiss
// together with the unchanged context.
func (e *Engine) Bind(req *http.Request) (context.Context, *multitenant.Resolution, error) {
	ctx := req.Context()
	res, ok := e.Resolve(req)
	if !ok {
		return ctx, nil, multitenant.ErrResolutionMiss
	}

	return e.bind(ctx, res, req.Host), res, nil
}

// BindURL is Bind for a request URL reported by the host rather than a live
// request, as used by bridge calls made on behalf of a page being rendered.
func (e *Engine) BindURL(ctx context.Context, requestURL string) (context.Context, *multitenant.Resolution, error) {
	res, ok := multitenant.Resolve(e.Model(), requestURL)
	if !ok {
		return ctx, nil, multitenant.ErrResolutionMiss
	}

	var requestHost string
	if u, err := url.Parse(requestURL); err == nil {
		requestHost = u.Host
	}
	return e.bind(ctx, res, requestHost), res, nil
}

func (e *Engine) bind(ctx context.Context, res *multitenant.Resolution, requestHost string) context.Context {
	ctx = multitenant.WithResolution(ctx, res)
	if model := e.Model(); model.Multisite {
		ctx = multitenant.WithEnvironment(ctx, multitenant.NewEnvironment(model, res, requestHost))
	}
	return ctx
}

// Rewrite replaces other environments' base URLs for the resolved tenant in body.
// Without a resolution in ctx the body is returned unchanged.
func (e *Engine) Rewrite(ctx context.Context, body []byte) []byte {
	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return body
	}
	return rewrite.Body(e.Model(), res, body)
}

// Setting returns a connection parameter of the server the request resolved to.
func (e *Engine) Setting(ctx context.Context, key string) (any, bool) {
	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return nil, false
	}
	return res.Server.Setting(key)
}

// CheckWritable reports whether patches can currently be persisted.
func (e *Engine) CheckWritable() error {
	return e.patcher.CheckWritable()
}

// HandleMultisiteEnabled patches the multisite flag on. It is a no-op while the
// current model already runs in multisite mode.
func (e *Engine) HandleMultisiteEnabled(ctx context.Context) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sitesettings.patch.multisite")
	defer func() { endSpan(span, err) }()

	if e.Model().Multisite {
		return patcher.ErrNoOp
	}
	if err := e.patcher.EnableMultisite(ctx); err != nil {
		return err
	}
	e.reloadAfterPatch(ctx)
	return nil
}

// HandleNewTenant adds base URLs for a tenant the host created on its own. The
// tenant record is looked up through the bridge; concurrent reports of the same
// tenant share one lookup and one patch.
func (e *Engine) HandleNewTenant(ctx context.Context, tenantID int) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sitesettings.patch.tenant",
		trace.WithAttributes(attribute.Int("sitesettings.tenant_id", tenantID)))
	defer func() { endSpan(span, err) }()

	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return multitenant.ErrResolutionMiss
	}
	if res.Server.HasTenant(tenantID) {
		return patcher.ErrNoOp
	}

	_, err, _ = e.tenants.Do(strconv.Itoa(tenantID), func() (any, error) {
		record, err := e.bridge.QueryTenantRecord(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("tenant %d lookup: %w", tenantID, err)
		}
		if record == nil {
			e.log.Debug().Int("tenant_id", tenantID).Msg("Host has no record for tenant, nothing to patch")
			return nil, fmt.Errorf("tenant %d has no host record: %w", tenantID, patcher.ErrNoOp)
		}

		ev := patcher.Event{
			Kind:     patcher.EventTenantCreated,
			TenantID: tenantID,
			Domain:   record.Domain,
			Path:     record.Path,
		}
		if err := e.patcher.AddTenant(ctx, res.ServerIndex, ev); err != nil {
			return nil, err
		}
		e.reloadAfterPatch(ctx)
		return nil, nil
	})
	return err
}

func (e *Engine) reloadAfterPatch(ctx context.Context) {
	if err := e.Reload(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Patched site settings could not be reloaded")
	}
}

// filterURL reports the matched server's base URL for the host's current tenant.
func (e *Engine) filterURL(ctx context.Context, value string) string {
	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return value
	}
	if baseURL, ok := res.Server.BaseURL(e.bridge.CurrentTenantID(ctx)); ok {
		return baseURL
	}
	return value
}

// resolveTenantPath maps a domain and path to the matched server's tenant whose
// base URL has that host and path, reporting the environment's own domain and path.
func (e *Engine) resolveTenantPath(ctx context.Context, domain, path string) (*host.TenantRecord, bool, error) {
	res, ok := multitenant.ResolutionFrom(ctx)
	if !ok {
		return nil, false, nil
	}

	path = strings.TrimRight(path, "/") + "/"
	for _, site := range res.Server.Sites {
		u, ok := res.Server.TenantURL(site.BaseURL)
		if !ok || u.Path != path || (u.Host != domain && u.Hostname() != domain) {
			continue
		}

		record, err := e.bridge.QueryTenantRecord(ctx, site.TenantID)
		if err != nil {
			return nil, false, err
		}
		if record == nil {
			return nil, false, nil
		}
		resolved := *record
		resolved.Domain = u.Host
		resolved.Path = u.Path
		return &resolved, true, nil
	}
	return nil, false, nil
}

func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, patcher.ErrNoOp):
		span.SetAttributes(attribute.Bool("sitesettings.noop", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
