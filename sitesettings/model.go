// Package sitesettings holds the normalized multi-server, multi-tenant site
// declaration and the loader that builds it from the hand-authored source file.
package sitesettings

import (
	"net/url"
	"strings"
)

// CanonicalTenantID is the tenant whose base URL generated content implicitly references.
const CanonicalTenantID = 1

// Param is one opaque connection parameter of a server, kept in declaration order.
type Param struct {
	Key   string
	Value any
}

// Site is one declared base URL and the tenant it addresses.
type Site struct {
	BaseURL  string
	TenantID int
}

// TenantURL is the parsed form of a base URL. Path always ends in "/".
// Host keeps a non-default port when the base URL declares one.
type TenantURL struct {
	Scheme string
	Host   string
	Path   string
}

// ParseTenantURL parses a base URL into its scheme, host and slash-terminated path.
func ParseTenantURL(baseURL string) (TenantURL, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return TenantURL{}, err
	}
	if u.Scheme == "" || u.Host == "" {
		return TenantURL{}, &url.Error{Op: "parse", URL: baseURL, Err: errMissingSchemeOrHost}
	}
	return TenantURL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   strings.TrimRight(u.Path, "/") + "/",
	}, nil
}

// String reassembles the URL without the trailing slash of the root path.
func (u TenantURL) String() string {
	return u.Scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/")
}

// Hostname returns the host without any port.
func (u TenantURL) Hostname() string {
	return (&url.URL{Host: u.Host}).Hostname()
}

// ServerDeclaration is one deployment server with its tenants.
// It is immutable once built by the loader.
type ServerDeclaration struct {
	Connection []Param
	Subdomains bool
	Sites      []Site

	tenants  map[string]int
	baseURLs map[int]string
	urls     map[string]TenantURL
}

// TenantID returns the tenant declared for baseURL.
func (s *ServerDeclaration) TenantID(baseURL string) (int, bool) {
	id, ok := s.tenants[baseURL]
	return id, ok
}

// BaseURL returns the base URL declared for the tenant.
func (s *ServerDeclaration) BaseURL(tenantID int) (string, bool) {
	baseURL, ok := s.baseURLs[tenantID]
	return baseURL, ok
}

// HasTenant reports whether the server declares a base URL for the tenant.
func (s *ServerDeclaration) HasTenant(tenantID int) bool {
	_, ok := s.baseURLs[tenantID]
	return ok
}

// TenantURL returns the cached parse of a declared base URL.
func (s *ServerDeclaration) TenantURL(baseURL string) (TenantURL, bool) {
	u, ok := s.urls[baseURL]
	return u, ok
}

// CanonicalBaseURL returns the base URL of tenant 1 on this server.
func (s *ServerDeclaration) CanonicalBaseURL() (string, bool) {
	return s.BaseURL(CanonicalTenantID)
}

// Setting returns the connection parameter with the given key.
func (s *ServerDeclaration) Setting(key string) (any, bool) {
	for _, p := range s.Connection {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// StringSetting returns a connection parameter rendered as a string, or "".
func (s *ServerDeclaration) StringSetting(key string) string {
	v, ok := s.Setting(key)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return stringify(v)
}

// Model is the normalized site declaration. It is never mutated after Load and may
// be shared across goroutines without locking.
type Model struct {
	Multisite bool
	Servers   []*ServerDeclaration
}

// Raw returns a deep copy of the declaration stripped of derived indexes,
// suitable for merging new sites and serializing back to source text.
func (m *Model) Raw() Raw {
	raw := Raw{Multisite: m.Multisite, Servers: make([]RawServer, 0, len(m.Servers))}
	for _, s := range m.Servers {
		raw.Servers = append(raw.Servers, RawServer{
			Connection: append([]Param(nil), s.Connection...),
			Subdomains: s.Subdomains,
			Sites:      append([]Site(nil), s.Sites...),
		})
	}
	return raw
}

// Raw is the declaration as written in the source, before normalization.
type Raw struct {
	Multisite bool
	Servers   []RawServer
}

// RawServer is a server as written in the source. Positional is set when its
// sites were declared as a list, in which case TenantID holds the 0-based position.
type RawServer struct {
	Connection []Param
	Subdomains bool
	Sites      []Site
	Positional bool
}
