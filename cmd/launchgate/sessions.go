package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/axmq/launchgate/nav"
	"github.com/axmq/launchgate/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored Matrix sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		sessions := env.registry.Sessions()
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER ID\tDEVICE\tHOMESERVER\tSYNCED\tADDED")
		for _, s := range sessions {
			creds := s.Credentials()
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				creds.UserID,
				creds.DeviceID,
				creds.HomeserverURL,
				s.IsInitialSyncComplete(),
				creds.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var addFlags session.Credentials

var sessionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store the credentials of a signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.registry.Add(cmd.Context(), addFlags)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", s.UserID())
		return nil
	},
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Forget a session but keep its local data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.registry.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var sessionsLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log every session out and discard its local data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		coordinator := nav.NewCoordinator(nav.CoordinatorConfig{
			Sessions: env.registry,
			Clients:  nav.MatrixLogoutClients(),
			Logger:   env.log,
		})
		count := env.registry.Count()
		if err := coordinator.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged out %d session(s)\n", count)
		return nil
	},
}

func init() {
	f := sessionsAddCmd.Flags()
	f.StringVar(&addFlags.UserID, "user", "", "Matrix user ID (@name:server)")
	f.StringVar(&addFlags.DeviceID, "device", "", "device ID")
	f.StringVar(&addFlags.HomeserverURL, "homeserver", "", "homeserver base URL")
	f.StringVar(&addFlags.AccessToken, "token", "", "access token")
	_ = sessionsAddCmd.MarkFlagRequired("user")
	_ = sessionsAddCmd.MarkFlagRequired("homeserver")
	_ = sessionsAddCmd.MarkFlagRequired("token")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsAddCmd, sessionsRemoveCmd, sessionsLogoutCmd)
}
