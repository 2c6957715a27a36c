// Package multitenant resolves which declared environment a request belongs to
// and carries that decision through the request context.
package multitenant

import (
	"net"
	"net/http"
	"strings"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// Resolution is the outcome of matching one request against the site declaration.
type Resolution struct {
	Server      *sitesettings.ServerDeclaration
	ServerIndex int
	BaseURL     string
	TenantID    int
}

// TenantURL returns the parsed form of the matched base URL.
func (r *Resolution) TenantURL() sitesettings.TenantURL {
	u, _ := r.Server.TenantURL(r.BaseURL)
	return u
}

// SiteResolver matches inbound requests to declared base URLs.
type SiteResolver struct {
	// TrustProxies makes the resolver honor X-Forwarded-Proto and X-Forwarded-Host.
	TrustProxies bool
}

// ResolveRequest reconstructs the request URL and resolves it against model.
func (r *SiteResolver) ResolveRequest(model *sitesettings.Model, req *http.Request) (*Resolution, bool) {
	if req == nil {
		return nil, false
	}
	trust := r != nil && r.TrustProxies
	return Resolve(model, RequestURL(req, trust))
}

// Resolve returns the declared base URL that is the longest literal prefix of
// requestURL. On equal lengths the first declaration wins.
func Resolve(model *sitesettings.Model, requestURL string) (*Resolution, bool) {
	if model == nil {
		return nil, false
	}

	var best *Resolution
	bestScore := 0
	for ndx, server := range model.Servers {
		for _, site := range server.Sites {
			if !strings.HasPrefix(requestURL, site.BaseURL) {
				continue
			}
			if score := len(site.BaseURL); score > bestScore {
				bestScore = score
				best = &Resolution{
					Server:      server,
					ServerIndex: ndx,
					BaseURL:     site.BaseURL,
					TenantID:    site.TenantID,
				}
			}
		}
	}

	return best, best != nil
}

// RequestURL rebuilds the fully-qualified URL the client asked for. The port is only
// kept when it is neither 80 nor 443.
func RequestURL(req *http.Request, trustProxies bool) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	host := req.Host

	if trustProxies {
		if proto := firstHeaderValue(req, "X-Forwarded-Proto"); proto != "" {
			scheme = strings.ToLower(proto)
		}
		if forwardedHost := firstHeaderValue(req, "X-Forwarded-Host"); forwardedHost != "" {
			host = forwardedHost
		}
	}

	hostname, port := splitHostPort(host)

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(hostname)
	if port != "" && port != "80" && port != "443" {
		b.WriteByte(':')
		b.WriteString(port)
	}

	// Absolute-form request targets carry scheme and host already.
	uri := req.RequestURI
	if !strings.HasPrefix(uri, "/") && req.URL != nil {
		uri = req.URL.RequestURI()
	}
	b.WriteString(uri)

	return b.String()
}

func splitHostPort(host string) (string, string) {
	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		return host, ""
	}
	// Re-bracket IPv6 literals
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	return hostname, port
}

func firstHeaderValue(req *http.Request, name string) string {
	value := req.Header.Get(name)
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}
