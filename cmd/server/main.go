package main

import (
	"context"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/app"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/config"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the configuration loaded before any subcommand runs.
type cli struct {
	config config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "azure-oauth2",
		Short: "Azure AD OAuth2 client: sign users in and keep their tokens fresh",
		Long: `azure-oauth2 runs the Azure AD authorization code flow for one or more app
registrations, stores the signed-in users and refreshes their tokens.

Configuration is read from the environment and an optional .env file (ENV_FILE).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			logging.Setup(cfg.GetLogLevel(), cfg.GetEnv())
			c.config = cfg
			return nil
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.migrateCmd(),
		c.clientsCmd(),
		c.tokensCmd(),
		c.statesCmd(),
		c.usersCmd(),
	)
	return root
}

// withApp opens the stores, applies migrations and loads registrations before fn runs.
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, c.config)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Bootstrap(ctx); err != nil {
		return err
	}
	return fn(a)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
