// Package rewrite corrects generated output that references another environment's
// base URL for the current tenant.
package rewrite

import (
	"bytes"
	"strings"

	"github.com/gaborage/go-sitesettings/multitenant"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

// Replacer substitutes other servers' base URLs for the resolved tenant with the
// matched base URL. It is a pure byte substitution and never parses the body.
type Replacer struct {
	target []byte
	from   [][]byte
}

// NewReplacer prepares the substitutions for a resolution. Servers are applied in
// declaration order; when one server's URL is a substring of another's the earlier
// substitution wins.
func NewReplacer(model *sitesettings.Model, res *multitenant.Resolution) *Replacer {
	r := &Replacer{}
	if model == nil || res == nil {
		return r
	}

	r.target = []byte(res.BaseURL)
	for _, server := range model.Servers {
		baseURL, ok := server.BaseURL(res.TenantID)
		if !ok || baseURL == "" || baseURL == res.BaseURL {
			continue
		}
		r.from = append(r.from, []byte(baseURL), []byte(EscapeSlashes(baseURL)))
	}
	return r
}

// Empty reports whether the replacer has nothing to substitute.
func (r *Replacer) Empty() bool {
	return len(r.from) == 0
}

// Apply returns body with every substitution applied.
func (r *Replacer) Apply(body []byte) []byte {
	if len(body) == 0 || r.Empty() {
		return body
	}
	for _, old := range r.from {
		body = bytes.ReplaceAll(body, old, r.target)
	}
	return body
}

// Body is a convenience for NewReplacer(model, res).Apply(body).
func Body(model *sitesettings.Model, res *multitenant.Resolution, body []byte) []byte {
	return NewReplacer(model, res).Apply(body)
}

// EscapeSlashes returns s with every "/" written as "\/", the form JSON encoders emit.
func EscapeSlashes(s string) string {
	return strings.ReplaceAll(s, "/", `\/`)
}
