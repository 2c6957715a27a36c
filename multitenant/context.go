package multitenant

import (
	"context"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// ctxKey ensures tenant context keys do not collide with external packages.
type ctxKey string

const (
	tenantKey      ctxKey = "tenant_id"
	resolutionKey  ctxKey = "resolution"
	environmentKey ctxKey = "environment"
)

// SetTenant stores the host's current tenant ID in the provided context.
func SetTenant(ctx context.Context, tenantID int) context.Context {
	if tenantID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, tenantID)
}

// GetTenant extracts the host's current tenant ID from the context.
func GetTenant(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	tenantID, ok := ctx.Value(tenantKey).(int)
	if !ok || tenantID <= 0 {
		return 0, false
	}
	return tenantID, true
}

// WithResolution stores the request's resolution in the context.
func WithResolution(ctx context.Context, res *Resolution) context.Context {
	if res == nil {
		return ctx
	}
	return context.WithValue(ctx, resolutionKey, res)
}

// ResolutionFrom extracts the request's resolution from the context.
func ResolutionFrom(ctx context.Context) (*Resolution, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(resolutionKey).(*Resolution)
	return res, ok && res != nil
}

// Environment is the multisite context injected for hosts running in multi-tenancy mode.
type Environment struct {
	Multisite         bool
	SubdomainInstall  bool
	DomainCurrentSite string
	PathCurrentSite   string
	SiteID            int
	TenantID          int
	BaseURL           string
}

// NewEnvironment derives the multisite context for a resolved request.
// SubdomainInstall is true when the matched base URL sits at the root path.
func NewEnvironment(model *sitesettings.Model, res *Resolution, requestHost string) Environment {
	u := res.TenantURL()
	domain, _ := splitHostPort(requestHost)
	if domain == "" {
		domain = u.Hostname()
	}
	return Environment{
		Multisite:         model != nil && model.Multisite,
		SubdomainInstall:  u.Path == "/",
		DomainCurrentSite: domain,
		PathCurrentSite:   u.Path,
		SiteID:            1,
		TenantID:          res.TenantID,
		BaseURL:           res.BaseURL,
	}
}

// WithEnvironment stores the multisite context in ctx.
func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, environmentKey, env)
}

// EnvironmentFrom extracts the multisite context from ctx.
func EnvironmentFrom(ctx context.Context) (Environment, bool) {
	if ctx == nil {
		return Environment{}, false
	}
	env, ok := ctx.Value(environmentKey).(Environment)
	return env, ok
}
