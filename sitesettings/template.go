package sitesettings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Template is written on first run so the operator has something to fill in.
const Template = `# Multi-environment site settings.
#
# Every server below is a deployment target. Requests are matched against the
# declared base URLs (longest literal prefix wins) and output referencing the
# canonical tenant is rewritten to the matched environment.
site_settings:
  multisite: false

  servers:
    - # DB Arguments
      host: mysql.host.com
      user: mysqluser
      pass: password
      dbname: wordpress_db

      # Multisite Arguments
      subdomains: false

      # Site(s) on this server
      sites:
        # BASE URL: TENANT ID
        "https://www.example.com": 1
`

// ErrTemplateWritten is returned after a template was scaffolded; startup must stop
// until the operator has filled it in.
var ErrTemplateWritten = errors.New("site settings template written")

// WriteTemplate creates the template at path when no file exists there.
// It never overwrites an existing file.
func WriteTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("write site settings template: %w", err)
	}
	if _, err := f.WriteString(Template); err != nil {
		_ = f.Close()
		return fmt.Errorf("write site settings template: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write site settings template: %w", err)
	}
	return fmt.Errorf("%w: add your database connection info to %s", ErrTemplateWritten, path)
}
