package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groblegark/tempo/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Write a commented default config file",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}
