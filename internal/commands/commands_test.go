package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sitesettings/patcher"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

const testSource = `# deployment notes
site_settings:
  multisite: false
  servers:
    - host: prod-db
      subdomains: false
      sites:
        "https://example.test": 1
        "https://example.test/shop": 2
    - host: dev-db
      subdomains: false
      sites:
        "http://dev.test": 1
        "http://dev.test/shop": 2
`

func setupSource(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site-settings.yaml")
	if source != "" {
		require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	}
	t.Setenv("SITESETTINGS_SITE_SETTINGS__PATH", path)
	t.Setenv("SITESETTINGS_LOG__LEVEL", "disabled")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommandTree(t *testing.T) {
	cmd := NewRootCommand("v1.2.3")
	assert.Equal(t, "sitesettings", cmd.Use)
	assert.Equal(t, "v1.2.3", cmd.Version)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "resolve", "validate", "patch", "version"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sitesettings version test\n"+
		"Built with "+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH+"\n", out)
}

func TestResolveCommand(t *testing.T) {
	setupSource(t, testSource)

	out, err := execute(t, "resolve", "http://dev.test/shop/cart")
	require.NoError(t, err)
	assert.Contains(t, out, "server:    1\n")
	assert.Contains(t, out, "tenant:    2\n")
	assert.Contains(t, out, "base url:  http://dev.test/shop\n")
	assert.Contains(t, out, "canonical: http://dev.test\n")
	assert.NotContains(t, out, "multisite:")
}

func TestResolveCommandMiss(t *testing.T) {
	setupSource(t, testSource)

	_, err := execute(t, "resolve", "http://unknown.test/")
	require.Error(t, err)
}

func TestResolveCommandRequiresURL(t *testing.T) {
	setupSource(t, testSource)

	_, err := execute(t, "resolve")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	path := setupSource(t, testSource)

	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, path+": ok (multisite=false, servers=2)")
	assert.Contains(t, out, "servers[1] subdomains=false")
	assert.Contains(t, out, "http://dev.test/shop")
}

func TestValidateCommandReportsLoadErrors(t *testing.T) {
	setupSource(t, `site_settings:
  servers:
    - sites:
        "https://a.test": 1
        "https://b.test": 1
`)

	_, err := execute(t, "validate")
	assert.ErrorIs(t, err, sitesettings.ErrDuplicateTenantID)
}

func TestValidateCommandInit(t *testing.T) {
	path := setupSource(t, "")

	_, err := execute(t, "validate")
	assert.ErrorIs(t, err, sitesettings.ErrMissingSource)
	assert.NoFileExists(t, path)

	out, err := execute(t, "validate", "--init")
	assert.ErrorIs(t, err, sitesettings.ErrTemplateWritten)
	assert.Contains(t, out, "Template written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sitesettings.Template, string(data))
}

func TestPatchMultisiteCommand(t *testing.T) {
	path := setupSource(t, testSource)

	out, err := execute(t, "patch", "multisite")
	require.NoError(t, err)
	assert.Equal(t, path+" patched\n", out)

	model, err := sitesettings.Load(path)
	require.NoError(t, err)
	assert.True(t, model.Multisite)

	out, err = execute(t, "patch", "multisite")
	require.NoError(t, err)
	assert.Equal(t, path+" already up to date\n", out)
}

func TestPatchTenantCommand(t *testing.T) {
	path := setupSource(t, testSource)

	_, err := execute(t, "patch", "tenant", "--server", "0", "--id", "3", "--domain", "example.test", "--path", "/blog/")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# deployment notes\n")

	model, err := sitesettings.Load(path)
	require.NoError(t, err)
	baseURL, ok := model.Servers[0].BaseURL(3)
	require.True(t, ok)
	assert.Equal(t, "https://example.test/blog", baseURL)
	baseURL, ok = model.Servers[1].BaseURL(3)
	require.True(t, ok)
	assert.Equal(t, "http://dev.test/blog", baseURL)

	out, err := execute(t, "patch", "tenant", "--server", "0", "--id", "3", "--domain", "example.test", "--path", "/blog/")
	require.NoError(t, err)
	assert.Contains(t, out, "already up to date")
}

func TestPatchTenantCommandErrors(t *testing.T) {
	setupSource(t, testSource)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing_id", args: []string{"--domain", "example.test"}},
		{name: "canonical_id", args: []string{"--id", "1", "--domain", "example.test"}},
		{name: "relative_path", args: []string{"--id", "3", "--domain", "example.test", "--path", "blog"}},
		{name: "undeclared_server", args: []string{"--server", "5", "--id", "3", "--domain", "example.test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"patch", "tenant"}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestPatchTenantCommandInvalidEvent(t *testing.T) {
	setupSource(t, testSource)

	_, err := execute(t, "patch", "tenant", "--id", "1", "--domain", "example.test")
	assert.ErrorIs(t, err, patcher.ErrInvalidEvent)
}
