package main

import (
	"os"

	"github.com/aretw0/keel/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run an application",
	Long:  `Starts the application in the given directory and blocks until it shuts down. The process exits with the application's exit code.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptions(cmd, args)
		opts.LogLevel, _ = cmd.Flags().GetString("log-level")
		opts.LogFormat, _ = cmd.Flags().GetString("log-format")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		code, err := cli.Run(opts, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().String("log-format", "text", "Log format (text, json)")
	runCmd.Flags().BoolP("quiet", "q", false, "Only log errors and skip the banner")
	runCmd.Flags().Bool("debug", false, "Log lifecycle phases and state changes")
}
