package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/crossdock/internal/client"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/ui"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:     "login <identity>",
	Short:   "Start an operator session at a site",
	GroupID: "operator",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteFlag, _ := cmd.Flags().GetString("site")
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if siteFlag == "" {
			siteFlag = string(activeProfile().Site)
		}
		site, ok := model.ParseSite(siteFlag)
		if !ok {
			return fmt.Errorf("--site must be %s or %s", model.SiteReserva, model.SitePavuna)
		}

		entry, err := scanner.CreateSession(context.Background(), args[0], site)
		if err != nil {
			return fmt.Errorf("logging in: %w", err)
		}

		if err := updateProfile(func(p *Profile) {
			p.URL = httpURL
			p.GRPCAddr = serverAddr
			p.Token = authToken
			if natsURL != "" {
				p.NATSURL = natsURL
			}
			p.Identity = entry.Identity
			p.Site = entry.Site
			p.SessionID = entry.ID
		}); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s at %s (session %s)\n",
			ui.RenderAccent(entry.Identity), entry.SiteLabel, entry.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "End the operator session",
	GroupID: "operator",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		if err := api.DeleteSession(context.Background(), sid); err != nil && !isNotFound(err) {
			return fmt.Errorf("ending session: %w", err)
		}
		if err := updateProfile(func(p *Profile) {
			if p.SessionID == sid {
				p.SessionID = ""
			}
		}); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the operator session",
	GroupID: "operator",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sid, err := requireSession()
		if err != nil {
			return err
		}
		entry, err := api.GetSession(context.Background(), sid)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("session %s expired: %w", sid, errNotLoggedIn)
			}
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		printSession(cmd.OutOrStdout(), entry)
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List active operator sessions",
	GroupID: "operator",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := api.ListSessions(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		printSessionTable(cmd.OutOrStdout(), entries)
		return nil
	},
}

func isNotFound(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func init() {
	loginCmd.Flags().String("site", "", "site the operator works at (reserva or pavuna)")
	loginCmd.Flags().String("nats-url", "", "NATS URL remembered for xd watch")
}
