package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
)

// NewResolveCommand creates the resolve command
func NewResolveCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Show which server and tenant a URL resolves to",
		Example: `  sitesettings resolve https://staging.example.com/shop/cart
  sitesettings resolve -c service.yaml http://localhost:8080/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(global)
			if err != nil {
				return err
			}
			engine, err := environment.New(environment.Options{
				Path:   cfg.SiteSettings.Path,
				Strict: cfg.SiteSettings.Strict,
			}, host.NewRegistry(nil), logger.New("disabled", false))
			if err != nil {
				return err
			}
			return runResolve(cmd, engine, args[0])
		},
	}
}

func runResolve(cmd *cobra.Command, engine *environment.Engine, requestURL string) error {
	ctx, res, err := engine.BindURL(cmd.Context(), requestURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "server:    %d\n", res.ServerIndex)
	fmt.Fprintf(out, "tenant:    %d\n", res.TenantID)
	fmt.Fprintf(out, "base url:  %s\n", res.BaseURL)
	if canonical, ok := res.Server.CanonicalBaseURL(); ok {
		fmt.Fprintf(out, "canonical: %s\n", canonical)
	}
	if env, ok := multitenant.EnvironmentFrom(ctx); ok {
		printEnvironment(out, env)
	}
	return nil
}

func printEnvironment(out io.Writer, env multitenant.Environment) {
	fmt.Fprintf(out, "multisite: subdomains=%t domain=%s path=%s\n",
		env.SubdomainInstall, env.DomainCurrentSite, env.PathCurrentSite)
}
