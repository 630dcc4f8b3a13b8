package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/groblegark/tempo/internal/client"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Short:   "Start tracking (resumes if paused)",
	GroupID: "tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, daemonClient.Start)
	},
}

var pauseCmd = &cobra.Command{
	Use:     "pause",
	Short:   "Pause tracking (opens a break)",
	GroupID: "tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, daemonClient.Pause)
	},
}

var resumeCmd = &cobra.Command{
	Use:     "resume",
	Short:   "Resume tracking after a pause",
	GroupID: "tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, daemonClient.Resume)
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop",
	Short:   "Stop the session and export its time",
	GroupID: "tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd, daemonClient.Stop)
	},
}

var issueCmd = &cobra.Command{
	Use:     "issue [key]",
	Short:   "Pin exports to one issue key (no argument clears the pin)",
	GroupID: "tracking",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		out, err := daemonClient.SetIssue(cmd.Context(), key)
		if err != nil {
			return err
		}
		printControl(out)
		return nil
	},
}

func runControl(cmd *cobra.Command, op func(ctx context.Context) (*client.ControlResponse, error)) error {
	out, err := op(cmd.Context())
	if err != nil {
		return err
	}
	printControl(out)
	return nil
}
