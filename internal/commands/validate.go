package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-sitesettings/sitesettings"
)

// ValidateOptions holds options for the validate command
type ValidateOptions struct {
	Init bool
}

// NewValidateCommand creates the validate command
func NewValidateCommand(global *GlobalOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the site settings file",
		Long: `Loads the site settings file and reports every declared server and site.

With --init a template is written when the file does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			return runValidate(cmd, cfg.SiteSettings.Path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Init, "init", false, "Write a template when the file is missing")

	return cmd
}

func runValidate(cmd *cobra.Command, path string, opts *ValidateOptions) error {
	out := cmd.OutOrStdout()

	model, err := sitesettings.Load(path)
	if errors.Is(err, sitesettings.ErrMissingSource) && opts.Init {
		if err := sitesettings.WriteTemplate(path); err != nil {
			if errors.Is(err, sitesettings.ErrTemplateWritten) {
				fmt.Fprintf(out, "Template written to %s\n", path)
			}
			return err
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: ok (multisite=%t, servers=%d)\n", path, model.Multisite, len(model.Servers))
	for i, server := range model.Servers {
		fmt.Fprintf(out, "servers[%d] subdomains=%t\n", i, server.Subdomains)
		for _, site := range server.Sites {
			fmt.Fprintf(out, "  %-40s %d\n", site.BaseURL, site.TenantID)
		}
	}
	return nil
}
