// Package host defines the contract between the environment engine and the
// content-management runtime it serves: option filters, tenant path resolution,
// the current tenant and lookups in the host's tenant record store.
package host

import (
	"context"
	"errors"
)

// Options whose values are environment specific.
const (
	OptionHome    = "home"
	OptionSiteURL = "siteurl"
)

// ErrNoResolution indicates a store lookup was attempted outside a resolved request.
var ErrNoResolution = errors.New("request has no resolved environment")

// TenantRecord is a tenant as the host stores it.
type TenantRecord struct {
	ID     int    `json:"id"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// URLFilter receives the value the host computed for an option and returns the
// value to use instead.
type URLFilter func(ctx context.Context, value string) string

// TenantPathResolver maps a requested domain and path to a tenant. ok is false when
// the resolver has no opinion and the host default applies.
type TenantPathResolver func(ctx context.Context, domain, path string) (record *TenantRecord, ok bool, err error)

// TenantStore looks tenants up in the host's record store. A nil record with a nil
// error means the tenant does not exist.
type TenantStore interface {
	QueryTenantRecord(ctx context.Context, tenantID int) (*TenantRecord, error)
}

// Bridge is what the engine needs from the host runtime.
type Bridge interface {
	TenantStore
	RegisterURLFilter(option string, filter URLFilter)
	RegisterTenantPathResolver(resolver TenantPathResolver)
	CurrentTenantID(ctx context.Context) int
}
