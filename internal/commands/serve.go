package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-sitesettings/app"
	"github.com/gaborage/go-sitesettings/sitesettings"
)

// NewServeCommand creates the serve command
func NewServeCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Starts the resolving reverse proxy and the host bridge API.

Startup halts when the site settings file is missing or malformed. A missing
file is replaced by a template to fill in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, global)
		},
	}
}

func runServe(ctx context.Context, global *GlobalOptions) error {
	cfg, log, err := loadConfig(global)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if errors.Is(err, sitesettings.ErrMissingSource) {
		if tmplErr := sitesettings.WriteTemplate(cfg.SiteSettings.Path); tmplErr != nil {
			return tmplErr
		}
	}
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
