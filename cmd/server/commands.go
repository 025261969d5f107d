package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/app"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/token/idtoken"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), c.config)
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		},
	}
}

func (c *cli) clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage Azure AD app registrations",
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update registrations from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				created, updated, err := a.SyncClients(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated\n", args[0], created, updated)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				all, err := a.Clients.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCLIENT ID\tTENANT\tVALID\tNAME")
				for _, client := range all {
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", client.ID, client.ClientID, client.TenantID, client.IsValid, utils.Value(client.Name))
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(importCmd, listCmd)
	return cmd
}

func (c *cli) tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Refresh user access tokens",
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh <objectId>",
		Short: "Refresh one user's access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if !a.Auth.RefreshToken(cmd.Context(), args[0]) {
					return fmt.Errorf("token for %s was not refreshed", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token for %s\n", args[0])
				return nil
			})
		},
	}

	expiredCmd := &cobra.Command{
		Use:   "refresh-expired",
		Short: "Refresh every expired token that has a refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				refreshed := a.Auth.RefreshExpiredTokens(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d tokens\n", refreshed)
				return nil
			})
		},
	}

	cmd.AddCommand(refreshCmd, expiredCmd)
	return cmd
}

func (c *cli) statesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Maintain stored authorization states",
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete used and expired states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				removed, err := a.Auth.CleanupExpiredStates(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d states\n", removed)
				return nil
			})
		},
	}

	cmd.AddCommand(cleanupCmd)
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect signed-in users",
	}

	var live bool
	showCmd := &cobra.Command{
		Use:   "show <objectId>",
		Short: "Print a user's stored profile as JSON",
		Long: `Print a user's stored profile and the claims of their last id token.

With --live the profile is fetched from Microsoft Graph, refreshing the access
token first when it has expired, and the stored user is updated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if live {
					info, err := a.Auth.FetchUserInfo(cmd.Context(), args[0], true)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), info)
				}

				user, err := a.Users.FindByObjectID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := struct {
					User     any             `json:"user"`
					IDClaims *idtoken.Claims `json:"idTokenClaims,omitempty"`
				}{User: user}
				if user.IDToken != nil && *user.IDToken != "" {
					claims, err := idtoken.Decode(*user.IDToken)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: stored id token is unreadable: %v\n", err)
					} else {
						view.IDClaims = claims
					}
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	showCmd.Flags().BoolVar(&live, "live", false, "fetch the profile from Microsoft Graph")

	cmd.AddCommand(showCmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
