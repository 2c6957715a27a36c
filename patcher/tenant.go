package patcher

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// EventKind names the administrative signal a patch responds to.
type EventKind string

const (
	// EventMultisiteEnabled is raised when the operator confirms enabling multi-tenancy.
	EventMultisiteEnabled EventKind = "multisite_enabled"
	// EventTenantCreated is raised when the host created a tenant this system does not know yet.
	EventTenantCreated EventKind = "tenant_created"
)

// Event describes an administrative signal together with the host tenant record
// data needed to derive base URLs for a new tenant.
type Event struct {
	Kind     EventKind `validate:"required,oneof=multisite_enabled tenant_created"`
	TenantID int       `validate:"required_if=Kind tenant_created,omitempty,gt=1"`
	Domain   string    `validate:"required_if=Kind tenant_created,omitempty,hostname_port|hostname_rfc1123"`
	Path     string    `validate:"required_if=Kind tenant_created,omitempty,startswith=/"`
}

var eventValidator = validator.New()

// Validate checks the event carries what its kind requires.
func (e Event) Validate() error {
	err := eventValidator.Struct(e)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(msgs, ", "))
}

// Addition is one base URL derived for a new tenant on one server.
type Addition struct {
	ServerIndex int
	BaseURL     string
	TenantID    int
}

// NewTenantSites derives the base URL of a newly created tenant on every server.
// Subdomain servers get the first label of the record domain in front of their
// canonical host. Path servers get the record path beyond the matched server's
// canonical path appended to their own canonical URL. Servers that already
// declare the tenant, or have no canonical tenant to derive from, are skipped.
func NewTenantSites(model *sitesettings.Model, serverIndex int, ev Event) ([]Addition, error) {
	if ev.Kind != EventTenantCreated {
		return nil, fmt.Errorf("%w: kind %q does not add a tenant", ErrInvalidEvent, ev.Kind)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if serverIndex < 0 || serverIndex >= len(model.Servers) {
		return nil, fmt.Errorf("%w: server %d is not declared", ErrInvalidEvent, serverIndex)
	}

	matched := model.Servers[serverIndex]
	if matched.HasTenant(ev.TenantID) {
		return nil, ErrNoOp
	}
	canonical, ok := canonicalURL(matched)
	if !ok {
		return nil, fmt.Errorf("server %d: %w", serverIndex, ErrNoCanonicalTenant)
	}

	label := firstLabel(ev.Domain)
	suffix := pathSuffix(ev.Path, canonical.Path)

	var additions []Addition
	for ndx, server := range model.Servers {
		if server.HasTenant(ev.TenantID) {
			continue
		}
		u, ok := canonicalURL(server)
		if !ok {
			continue
		}

		var baseURL string
		if server.Subdomains {
			baseURL = u.Scheme + "://" + label + "." + u.Host
		} else {
			baseURL = strings.TrimRight(u.Scheme+"://"+u.Host+u.Path+suffix, "/")
		}

		if other, taken := server.TenantID(baseURL); taken {
			return nil, fmt.Errorf("server %d: %w: %s belongs to tenant %d", ndx, ErrBaseURLConflict, baseURL, other)
		}
		if _, err := sitesettings.ParseTenantURL(baseURL); err != nil {
			return nil, fmt.Errorf("server %d: derived base url %q: %w", ndx, baseURL, err)
		}
		additions = append(additions, Addition{ServerIndex: ndx, BaseURL: baseURL, TenantID: ev.TenantID})
	}
	return additions, nil
}

// ApplyNewTenant re-reads the declaration from src, merges the new tenant's sites
// and splices the re-encoded block in place of the old one. Everything outside the
// site_settings block is returned byte-identical.
func ApplyNewTenant(src []byte, serverIndex int, ev Event) ([]byte, error) {
	model, err := sitesettings.Parse(src)
	if err != nil {
		return nil, err
	}

	additions, err := NewTenantSites(model, serverIndex, ev)
	if err != nil {
		return nil, err
	}

	raw := model.Raw()
	for _, a := range additions {
		raw.Servers[a.ServerIndex].Sites = append(raw.Servers[a.ServerIndex].Sites,
			sitesettings.Site{BaseURL: a.BaseURL, TenantID: a.TenantID})
	}
	if _, err := sitesettings.Normalize(raw); err != nil {
		return nil, fmt.Errorf("merged declaration: %w", err)
	}

	lines, err := EncodeBlock(raw)
	if err != nil {
		return nil, err
	}
	return spliceBlock(src, lines)
}

func canonicalURL(server *sitesettings.ServerDeclaration) (sitesettings.TenantURL, bool) {
	baseURL, ok := server.CanonicalBaseURL()
	if !ok {
		return sitesettings.TenantURL{}, false
	}
	return server.TenantURL(baseURL)
}

// firstLabel returns the leftmost DNS label of a domain, ignoring any port.
func firstLabel(domain string) string {
	if host, _, err := net.SplitHostPort(domain); err == nil {
		domain = host
	}
	label, _, _ := strings.Cut(domain, ".")
	return label
}

// pathSuffix returns the part of a tenant record path beyond the canonical path,
// without a leading or trailing slash.
func pathSuffix(recordPath, canonicalPath string) string {
	suffix, ok := strings.CutPrefix(recordPath, canonicalPath)
	if !ok {
		suffix, ok = strings.CutPrefix(recordPath+"/", canonicalPath)
		if !ok {
			suffix = recordPath
		}
	}
	return strings.Trim(suffix, "/")
}
