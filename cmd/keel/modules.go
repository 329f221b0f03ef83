package main

import (
	"github.com/aretw0/keel/internal/cli"
	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the built-in modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListModules(nil, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
