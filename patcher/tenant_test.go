package patcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

func created(id int, domain, path string) Event {
	return Event{Kind: EventTenantCreated, TenantID: id, Domain: domain, Path: path}
}

func mustParse(t *testing.T, src string) *sitesettings.Model {
	t.Helper()
	model, err := sitesettings.Parse([]byte(src))
	require.NoError(t, err)
	return model
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{name: "multisite enabled", event: Event{Kind: EventMultisiteEnabled}},
		{name: "tenant created", event: created(2, "blog.example.com", "/")},
		{name: "tenant created with port", event: created(2, "localhost:8080", "/blog/")},
		{name: "missing kind", event: Event{}, wantErr: true},
		{name: "unknown kind", event: Event{Kind: "deleted"}, wantErr: true},
		{name: "canonical tenant", event: created(1, "example.com", "/"), wantErr: true},
		{name: "missing domain", event: created(2, "", "/"), wantErr: true},
		{name: "relative path", event: created(2, "example.com", "blog/"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewTenantSitesSubdomainServer(t *testing.T) {
	model := mustParse(t, `site_settings:
  servers:
    - subdomains: true
      sites:
        "https://site1.example.com": 1
    - subdomains: true
      sites:
        "http://site1.local:8080": 1
`)

	additions, err := NewTenantSites(model, 0, created(2, "blog2.example.com", "/"))
	require.NoError(t, err)

	assert.Equal(t, []Addition{
		{ServerIndex: 0, BaseURL: "https://blog2.site1.example.com", TenantID: 2},
		{ServerIndex: 1, BaseURL: "http://blog2.site1.local:8080", TenantID: 2},
	}, additions)
}

func TestNewTenantSitesPathServer(t *testing.T) {
	model := mustParse(t, `site_settings:
  servers:
    - sites:
        "https://example.com/site1": 1
    - sites:
        "https://staging.example.com": 1
`)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "nested below canonical path", path: "/site1/extra", want: []string{"https://example.com/site1/extra", "https://staging.example.com/extra"}},
		{name: "trailing slash", path: "/site1/extra/", want: []string{"https://example.com/site1/extra", "https://staging.example.com/extra"}},
		{name: "outside canonical path", path: "/other/", want: []string{"https://example.com/site1/other", "https://staging.example.com/other"}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			additions, err := NewTenantSites(model, 0, created(i+2, "example.com", tt.path))
			require.NoError(t, err)

			got := make([]string, 0, len(additions))
			for _, a := range additions {
				got = append(got, a.BaseURL)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewTenantSitesSkipsServers(t *testing.T) {
	model := mustParse(t, `site_settings:
  servers:
    - sites:
        "https://example.com": 1
    - sites:
        "https://dev.local": 1
        "https://dev.local/custom": 2
    - sites:
        "https://orphan.local/x": 5
`)

	additions, err := NewTenantSites(model, 0, created(2, "example.com", "/blog/"))
	require.NoError(t, err)
	assert.Equal(t, []Addition{{ServerIndex: 0, BaseURL: "https://example.com/blog", TenantID: 2}}, additions)
}

func TestNewTenantSitesErrors(t *testing.T) {
	model := mustParse(t, `site_settings:
  servers:
    - sites:
        "https://example.com": 1
        "https://example.com/blog": 2
    - sites:
        "https://orphan.local/x": 5
`)

	_, err := NewTenantSites(model, 0, created(2, "example.com", "/blog/"))
	assert.ErrorIs(t, err, ErrNoOp)

	_, err = NewTenantSites(model, 0, created(3, "example.com", "/blog/"))
	assert.ErrorIs(t, err, ErrBaseURLConflict)

	_, err = NewTenantSites(model, 1, created(3, "example.com", "/blog/"))
	assert.ErrorIs(t, err, ErrNoCanonicalTenant)

	_, err = NewTenantSites(model, 7, created(3, "example.com", "/blog/"))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewTenantSites(model, 0, Event{Kind: EventMultisiteEnabled})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestApplyNewTenantSplicesBlock(t *testing.T) {
	src := "# header\n" +
		"site_settings:\n" +
		"  multisite: false\n" +
		"  servers:\n" +
		"    - host: db\n" +
		"      sites:\n" +
		"        \"https://example.com\": 1\n" +
		"# trailer\n" +
		"other: 1\n"

	out, err := ApplyNewTenant([]byte(src), 0, created(2, "example.com", "/blog2/"))
	require.NoError(t, err)

	assert.Equal(t, "# header\n"+
		"site_settings:\n"+
		"  multisite: false\n"+
		"\n"+
		"  servers:\n"+
		"    - # DB Arguments\n"+
		"      host: db\n"+
		"\n"+
		"      # Multisite Arguments\n"+
		"      subdomains: false\n"+
		"\n"+
		"      # Site(s) on this server\n"+
		"      sites:\n"+
		"        \"https://example.com\": 1\n"+
		"        \"https://example.com/blog2\": 2\n"+
		"# trailer\n"+
		"other: 1\n", string(out))

	model := mustParse(t, string(out))
	baseURL, ok := model.Servers[0].BaseURL(2)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/blog2", baseURL)

	_, err = ApplyNewTenant(out, 0, created(2, "example.com", "/blog2/"))
	assert.ErrorIs(t, err, ErrNoOp)
}

func TestApplyNewTenantSkipsNestedAnchor(t *testing.T) {
	docs := "docs:\n" +
		"  site_settings:\n" +
		"    note: keep\n"
	src := docs +
		"site_settings:\n" +
		"  multisite: true\n" +
		"  servers:\n" +
		"    - host: db\n" +
		"      sites:\n" +
		"        \"https://example.com\": 1\n"

	out, err := ApplyNewTenant([]byte(src), 0, created(2, "example.com", "/blog2/"))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(string(out), docs+"site_settings:\n"))
	model := mustParse(t, string(out))
	assert.True(t, model.Multisite)
	baseURL, ok := model.Servers[0].BaseURL(2)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/blog2", baseURL)
}

func TestApplyNewTenantRejectsBrokenSource(t *testing.T) {
	_, err := ApplyNewTenant([]byte("site_settings: ["), 0, created(2, "example.com", "/b/"))
	assert.ErrorIs(t, err, sitesettings.ErrMalformedSource)
}
