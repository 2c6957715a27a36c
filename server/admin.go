package server

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/patcher"
)

// Messages shown on the host's network setup page.
const (
	wizardTitle        = "Site Settings"
	wizardWritable     = "Continue as normal and follow all prompts. The site settings file will be updated automatically."
	wizardNotWritable  = `<strong style="color: red;">The site settings file is not writable. Halting installation.</strong>`
	wizardPatched      = `<p><strong>Site Settings:</strong> The site settings file has been patched. Skip to step 2.</p>`
	wizardPatchFailed  = `<p><strong style="color: red;">Site Settings:</strong> The site settings file could not be patched. Enable multisite in it by hand before continuing.</p>`
	wizardInstallInput = `value="Install"`
	siteNewPatchFailed = `<div class="error"><p><strong style="color: red;">Site Settings:</strong> The new site could not be added to the site settings file. Add it by hand before using it.</p></div>`
)

var (
	tableRow                  = regexp.MustCompile(`(?s)<tr\b.*?</tr>`)
	wizardServerAddressNotice = regexp.MustCompile(`(?s)<h3>Server Address.*?We recommend you change your siteurl.*?</p>`)
	wizardBecauseRow          = regexp.MustCompile(`Because your?`)
	wizardServerAddressRow    = regexp.MustCompile(`Server Address`)
	wizardConfigSnippet       = regexp.MustCompile(`(?s)<p>\s*Add the following.*?</textarea>`)
	bodyOpenTag               = regexp.MustCompile(`(?i)<body\b[^>]*>`)
)

// AdminMiddleware watches the host's administrative pages for the events that
// require the site settings file to change. It must run inside
// EnvironmentMiddleware so the captured page can be edited before it is emitted.
//
// While multisite is off, the network setup page is the installation wizard:
// GET annotates it with whether the file is writable, POST enables multisite.
// Once multisite is on, a GET of the new-site page with an id reports a tenant
// the host has just created.
func AdminMiddleware(engine *environment.Engine, log logger.Logger, cfg config.AdminConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			multisite := engine.Model().Multisite

			switch {
			case !multisite && cfg.NetworkSetupPath != "" && strings.HasSuffix(path, cfg.NetworkSetupPath):
				if err := next(c); err != nil {
					return err
				}
				capture, ok := CaptureFrom(c)
				if !ok {
					return nil
				}
				if req.Method == http.MethodPost {
					enableMultisite(c, capture, engine, log)
				} else {
					annotateWizard(capture, engine, log)
				}
				return nil

			case multisite && cfg.SiteNewPath != "" && strings.HasSuffix(path, cfg.SiteNewPath) && req.Method == http.MethodGet:
				if err := next(c); err != nil {
					return err
				}
				capture, _ := CaptureFrom(c)
				reportNewTenant(c, capture, engine, log)
				return nil
			}

			return next(c)
		}
	}
}

func annotateWizard(capture *Capture, engine *environment.Engine, log logger.Logger) {
	html := capture.Bytes()
	html = wizardServerAddressNotice.ReplaceAll(html, nil)
	html = replaceRows(html, wizardBecauseRow, nil)

	message := wizardWritable
	if err := engine.CheckWritable(); err != nil {
		log.Warn().Err(err).Str("path", engine.Path()).Msg("Site settings file not writable, blocking network installation")
		message = wizardNotWritable
		html = []byte(strings.ReplaceAll(string(html), wizardInstallInput, wizardInstallInput+` disabled="disabled"`))
	}

	row := `<tr><th scope="row">` + wizardTitle + `</th><td>` + message + `</td></tr>`
	html = replaceRows(html, wizardServerAddressRow, []byte(row))
	capture.Replace(html)
}

// replaceRows replaces every table row whose content matches marker with repl.
func replaceRows(html []byte, marker *regexp.Regexp, repl []byte) []byte {
	return tableRow.ReplaceAllFunc(html, func(row []byte) []byte {
		if marker.Match(row) {
			return repl
		}
		return row
	})
}

func enableMultisite(c echo.Context, capture *Capture, engine *environment.Engine, log logger.Logger) {
	ctx := c.Request().Context()
	reqLog := logger.FromContext(ctx, log)

	err := engine.HandleMultisiteEnabled(ctx)
	switch {
	case err == nil:
		reqLog.Info().Str("path", engine.Path()).Msg("Multisite enabled in site settings")
	case errors.Is(err, patcher.ErrNoOp):
		reqLog.Debug().Msg("Multisite already enabled in site settings")
	default:
		reqLog.Error().Err(err).Str("path", engine.Path()).Msg("Failed to enable multisite in site settings")
		capture.Replace(wizardConfigSnippet.ReplaceAllLiteral(capture.Bytes(), []byte(wizardPatchFailed)))
		capture.SetStatus(http.StatusInternalServerError)
		return
	}

	capture.Replace(wizardConfigSnippet.ReplaceAllLiteral(capture.Bytes(), []byte(wizardPatched)))
}

// reportNewTenant declares the tenant named by the page's id. A failure other
// than a no-op or a base URL conflict blocks the page with a notice and a 500.
func reportNewTenant(c echo.Context, capture *Capture, engine *environment.Engine, log logger.Logger) {
	raw := c.QueryParam("id")
	if raw == "" {
		return
	}
	ctx := c.Request().Context()
	reqLog := logger.FromContext(ctx, log)

	tenantID, err := strconv.Atoi(raw)
	if err != nil || tenantID <= 0 {
		reqLog.Debug().Str("id", raw).Msg("Ignoring new-site page with invalid id")
		return
	}

	err = engine.HandleNewTenant(ctx, tenantID)
	switch {
	case err == nil:
		reqLog.Info().Int("new_tenant_id", tenantID).Msg("Tenant added to site settings")
	case errors.Is(err, patcher.ErrNoOp):
		reqLog.Debug().Int("new_tenant_id", tenantID).Err(err).Msg("Tenant already declared, nothing to patch")
	case errors.Is(err, patcher.ErrBaseURLConflict):
		reqLog.Warn().Int("new_tenant_id", tenantID).Err(err).Msg("Tenant base URL collides with a declared site")
	default:
		reqLog.Error().Int("new_tenant_id", tenantID).Err(err).Msg("Failed to add tenant to site settings")
		if capture != nil {
			capture.Replace(insertNotice(capture.Bytes(), siteNewPatchFailed))
			capture.SetStatus(http.StatusInternalServerError)
		}
	}
}

// insertNotice places notice right after the opening body tag, or at the
// start of html when the page has none.
func insertNotice(html []byte, notice string) []byte {
	out := make([]byte, 0, len(html)+len(notice))
	if loc := bodyOpenTag.FindIndex(html); loc != nil {
		out = append(out, html[:loc[1]]...)
		out = append(out, notice...)
		return append(out, html[loc[1]:]...)
	}
	out = append(out, notice...)
	return append(out, html...)
}
