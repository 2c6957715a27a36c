// Package commands implements the sitesettings command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/logger"
)

// GlobalOptions holds flags shared by every subcommand
type GlobalOptions struct {
	ConfigFile string
}

// NewRootCommand creates the sitesettings command tree
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "sitesettings",
		Short: "Resolve and rewrite multi-environment site URLs",
		Long: `Serves a host application from several deployment environments at once.

Each request is matched against the base URLs declared in the site settings file,
the response is rewritten to the matched environment, and administrative
actions patch the file in place.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Service configuration file (YAML)")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewResolveCommand(opts),
		NewValidateCommand(opts),
		NewPatchCommand(opts),
		NewVersionCommand(version),
	)

	return cmd
}

func loadConfig(opts *GlobalOptions) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Pretty), nil
}
