package main

import (
	"github.com/aretw0/keel/internal/cli"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [dir]",
	Short: "Print the merged configuration",
	Long:  `Loads defaults, the configuration file, KEEL_ environment variables and --set overrides, and prints the result as YAML.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.PrintConfig(runOptions(cmd, args), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
