package host

import (
	"context"
	"sync"

	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

// Registry is the in-process Bridge: it keeps registered filters and resolvers
// and dispatches to them in registration order.
type Registry struct {
	store TenantStore

	mu        sync.RWMutex
	filters   map[string][]URLFilter
	resolvers []TenantPathResolver
}

var _ Bridge = (*Registry)(nil)

// NewRegistry creates a registry backed by store. A nil store finds no tenants.
func NewRegistry(store TenantStore) *Registry {
	return &Registry{
		store:   store,
		filters: make(map[string][]URLFilter),
	}
}

// RegisterURLFilter adds a filter for option.
func (r *Registry) RegisterURLFilter(option string, filter URLFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[option] = append(r.filters[option], filter)
}

// RegisterTenantPathResolver adds a tenant path resolver.
func (r *Registry) RegisterTenantPathResolver(resolver TenantPathResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers = append(r.resolvers, resolver)
}

// CurrentTenantID returns the tenant the request is serving, defaulting to the
// canonical tenant.
func (r *Registry) CurrentTenantID(ctx context.Context) int {
	if id, ok := multitenant.GetTenant(ctx); ok {
		return id
	}
	return sitesettings.CanonicalTenantID
}

// QueryTenantRecord delegates to the store.
func (r *Registry) QueryTenantRecord(ctx context.Context, tenantID int) (*TenantRecord, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.QueryTenantRecord(ctx, tenantID)
}

// FilterOption passes value through every filter registered for option.
func (r *Registry) FilterOption(ctx context.Context, option, value string) string {
	r.mu.RLock()
	filters := r.filters[option]
	r.mu.RUnlock()

	for _, filter := range filters {
		value = filter(ctx, value)
	}
	return value
}

// ResolveTenantPath asks each resolver in turn. ok is false when none matched.
func (r *Registry) ResolveTenantPath(ctx context.Context, domain, path string) (*TenantRecord, bool, error) {
	r.mu.RLock()
	resolvers := r.resolvers
	r.mu.RUnlock()

	for _, resolve := range resolvers {
		record, ok, err := resolve(ctx, domain, path)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return record, true, nil
		}
	}
	return nil, false, nil
}
