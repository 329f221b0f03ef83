package main

import (
	"fmt"
	"os"

	"github.com/aretw0/keel/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keel",
	Short: "Keel runs applications through launch, run and shutdown phases",
	Long: `Keel loads an application's configuration, builds the modules it lists and
drives them through launch, run and shutdown. SIGINT, SIGTERM and failures
all end in a single graceful shutdown.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Application directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default: keel.{yaml,yml,json,toml} in --dir)")
	rootCmd.PersistentFlags().StringArray("set", nil, "Override a configuration key (key.path=value)")
}

// runOptions collects the shared flags. A positional argument replaces --dir
// when the flag was not given.
func runOptions(cmd *cobra.Command, args []string) cli.RunOptions {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	if !flags.Changed("dir") && len(args) > 0 {
		dir = args[0]
	}
	configFile, _ := flags.GetString("config")
	sets, _ := flags.GetStringArray("set")

	return cli.RunOptions{
		Dir:        dir,
		ConfigFile: configFile,
		Sets:       sets,
	}
}
