package sitesettings

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors identifying why a site settings source could not be loaded.
var (
	// ErrMissingSource indicates no site settings file exists yet.
	ErrMissingSource = errors.New("site settings source not found")
	// ErrMalformedSource indicates the source is not a valid declaration.
	ErrMalformedSource = errors.New("malformed site settings source")
	// ErrMalformedURL indicates a declared base URL could not be parsed.
	ErrMalformedURL = errors.New("malformed base url")
	// ErrDuplicateTenantID indicates two base URLs of one server share a tenant ID.
	ErrDuplicateTenantID = errors.New("duplicate tenant id")
)

var errMissingSchemeOrHost = errors.New("missing scheme or host")

// LoadError describes a fatal problem with the site settings source together
// with the action an operator should take.
type LoadError struct {
	Kind    error  // one of the sentinel errors above
	Path    string // source file, when known
	Server  int    // 0-based server index, -1 when not server specific
	BaseURL string
	Message string
	Action  string
	Cause   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	var parts []string

	if e.Kind != nil {
		parts = append(parts, e.Kind.Error()+":")
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if e.Server >= 0 {
		parts = append(parts, fmt.Sprintf("servers[%d]", e.Server))
	}
	if e.BaseURL != "" {
		parts = append(parts, fmt.Sprintf("%q", e.BaseURL))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, "("+e.Cause.Error()+")")
	}
	if e.Action != "" {
		parts = append(parts, "-", e.Action)
	}

	return strings.Join(parts, " ")
}

// Unwrap exposes the sentinel kind so callers can use errors.Is.
func (e *LoadError) Unwrap() error {
	return e.Kind
}

func newMissingSourceError(path string) *LoadError {
	return &LoadError{
		Kind:   ErrMissingSource,
		Path:   path,
		Server: -1,
		Action: "add your database connection info and sites to the file (run 'sitesettings validate --init' to write a template)",
	}
}

func newMalformedSourceError(server int, message string, cause error) *LoadError {
	return &LoadError{
		Kind:    ErrMalformedSource,
		Server:  server,
		Message: message,
		Cause:   cause,
		Action:  "fix the site_settings block",
	}
}

func newMalformedURLError(server int, baseURL string, cause error) *LoadError {
	return &LoadError{
		Kind:    ErrMalformedURL,
		Server:  server,
		BaseURL: baseURL,
		Cause:   cause,
		Action:  "use an absolute base url such as https://www.example.com",
	}
}

func newDuplicateTenantError(server int, baseURL string, tenantID int, other string) *LoadError {
	return &LoadError{
		Kind:    ErrDuplicateTenantID,
		Server:  server,
		BaseURL: baseURL,
		Message: fmt.Sprintf("tenant %d is already mapped to %q", tenantID, other),
		Action:  "give every base url of a server its own tenant id",
	}
}
