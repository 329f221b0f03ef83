package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/keel"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of keel",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "keel version %s\n", strings.TrimSpace(keel.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
