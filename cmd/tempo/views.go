package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the current tracking state",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := daemonClient.Status(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(st)
			return nil
		}
		printStatus(st)
		return nil
	},
}

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "List recent tracking sessions",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := daemonClient.Sessions(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		printSessions(out.Sessions)
		return nil
	},
}

var exportFormat string

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Dump the active session's activity units",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := daemonClient.Export(cmd.Context(), exportFormat)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(body)
		return err
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the daemon is running",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemonClient.Health(cmd.Context()); err != nil {
			return fmt.Errorf("daemon unreachable at %s: %w", httpURL, err)
		}
		fmt.Println("daemon is up")
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "dump format (csv or json)")
}
