package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/patcher"
)

// TenantOptions holds options for the patch tenant command
type TenantOptions struct {
	Server int
	ID     int
	Domain string
	Path   string
}

// NewPatchCommand creates the patch command group
func NewPatchCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply an administrative patch to the site settings file",
	}

	cmd.AddCommand(newPatchMultisiteCommand(global), newPatchTenantCommand(global))
	return cmd
}

func newPatchMultisiteCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "multisite",
		Short: "Turn multisite on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(global)
			if err != nil {
				return err
			}
			return runPatch(cmd, patcher.New(cfg.SiteSettings.Path, log), func(ctx context.Context, p *patcher.Patcher) error {
				return p.EnableMultisite(ctx)
			})
		},
	}
}

func newPatchTenantCommand(global *GlobalOptions) *cobra.Command {
	opts := &TenantOptions{}

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Declare a newly created tenant on every server",
		Long: `Derives the tenant's base URL on every server from the host's tenant
record, given relative to the server it was created on.`,
		Example: `  sitesettings patch tenant --server 0 --id 3 --domain example.com --path /blog/`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(global)
			if err != nil {
				return err
			}
			return runPatchTenant(cmd, cfg.SiteSettings.Path, opts, log)
		},
	}

	cmd.Flags().IntVarP(&opts.Server, "server", "s", 0, "Index of the server the tenant was created on")
	cmd.Flags().IntVar(&opts.ID, "id", 0, "Tenant ID")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "Tenant domain as recorded by the host")
	cmd.Flags().StringVar(&opts.Path, "path", "/", "Tenant path as recorded by the host")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

func runPatchTenant(cmd *cobra.Command, path string, opts *TenantOptions, log logger.Logger) error {
	ev := patcher.Event{
		Kind:     patcher.EventTenantCreated,
		TenantID: opts.ID,
		Domain:   opts.Domain,
		Path:     opts.Path,
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	return runPatch(cmd, patcher.New(path, log), func(ctx context.Context, p *patcher.Patcher) error {
		return p.AddTenant(ctx, opts.Server, ev)
	})
}

func runPatch(cmd *cobra.Command, p *patcher.Patcher, apply func(context.Context, *patcher.Patcher) error) error {
	out := cmd.OutOrStdout()

	err := apply(cmd.Context(), p)
	switch {
	case errors.Is(err, patcher.ErrNoOp):
		fmt.Fprintf(out, "%s already up to date\n", p.Path())
		return nil
	case err != nil:
		return err
	}

	fmt.Fprintf(out, "%s patched\n", p.Path())
	return nil
}
