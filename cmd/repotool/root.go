package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/repotool/pkg/repotool/config"
)

// errDifferences is returned by a command whose pass found reportable
// differences. It maps to exit code 1 and is never printed.
var errDifferences = errors.New("differences found")

var (
	cfgFile   string
	configErr error

	// vp holds the configuration of the current execution. It is rebuilt
	// by initConfig so no state survives between executions.
	vp = viper.New()

	rootCmd = &cobra.Command{
		Use:   "repotool",
		Short: "Track the integrity of a file repository with a manifest",
		Long: `repotool keeps a manifest of every file in a directory tree (size,
modification time and content hash) and reports what has changed since.

Examples:
  repotool create                 # Record the current directory in a new manifest
  repotool status -d              # List missing, changed and new files
  repotool validate -m ~/photos   # Re-hash everything and detect moved files
  repotool update                 # Accept the current state into the manifest
  repotool history                # Show past runs`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnFinalize(finalizeLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/repotool/config.yaml)")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override I/O worker count (0=auto)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "report format: plain, pretty, json, yaml")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
}

// initConfig binds the flags, config file and environment. A read failure
// is kept and reported by the first command that needs config.
func initConfig() {
	vp = viper.New()

	flags := rootCmd.PersistentFlags()
	_ = vp.BindPFlag("workers", flags.Lookup("workers"))
	_ = vp.BindPFlag("output", flags.Lookup("output"))
	_ = vp.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = vp.BindPFlag("verbose", flags.Lookup("verbose"))

	config.Prepare(vp, cfgFile)
	configErr = config.Read(vp)
}

// loadConfig returns the resolved configuration for the current command.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	return config.FromViper(vp)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func getVerbose() bool {
	return vp.GetBool("verbose")
}

func getQuiet() bool {
	return vp.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
