package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/repotool/pkg/repotool/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage repotool configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/repotool/config.yaml (if set)
  2. ~/.config/repotool/config.yaml

Environment variables override config file settings using the REPOTOOL_ prefix:
  REPOTOOL_WORKERS=8
  REPOTOOL_OUTPUT=pretty
  REPOTOOL_HISTORY_ENABLED=false`,
	// Config commands must work even when the current file is broken.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, file, environment and flags.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if configErr != nil {
		printError("Failed to load configuration: %v", configErr)
	} else if _, err := loadConfig(); err != nil {
		printError("Invalid configuration: %v", err)
	}

	if configFile := vp.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "Config file: %s\n\n", configFile)
	} else {
		fmt.Fprintf(out, "Config file: (using defaults, no file found)\n\n")
	}

	settings := vp.AllSettings()
	delete(settings, "quiet")
	delete(settings, "verbose")

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	overrides := environmentOverrides()
	if len(overrides) == 0 {
		fmt.Fprintln(out, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(out, kv)
	}
	return nil
}

// environmentOverrides returns the REPOTOOL_ variables that are set, sorted.
func environmentOverrides() []string {
	var vars []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix+"_") {
			vars = append(vars, kv)
		}
	}
	sort.Strings(vars)
	return vars
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Config file already exists: %s\n", configPath)
		fmt.Fprintln(cmd.OutOrStdout(), "Use 'repotool config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created default config file: %s\n", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if configFile := vp.ConfigFileUsed(); configFile != "" {
		fmt.Fprintln(cmd.OutOrStdout(), configFile)
		return nil
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath)
	return nil
}
