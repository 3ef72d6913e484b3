package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/repotool/pkg/repotool/config"
	"github.com/jamesainslie/repotool/pkg/repotool/logging"
	"github.com/jamesainslie/repotool/pkg/repotool/types"
)

// defaultMaxLogSize applies when logging.rotation.max_size is empty or invalid.
const defaultMaxLogSize = 10 * types.MiB

// initializeLogging is the root PersistentPreRunE hook.
func initializeLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	consoleLevel := "warn"
	switch {
	case getQuiet():
		consoleLevel = ""
	case getVerbose():
		consoleLevel = "debug"
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel,
	}); err != nil {
		return err
	}

	logging.Get("cli").Debug("logging initialized",
		"command", cmd.CommandPath(),
		"level", cfg.Logging.Level,
		"console", consoleLevel,
	)
	return nil
}

func finalizeLogging() {
	_ = logging.Close()
}

// parseRotationConfig converts the config representation into the writer's.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize := int64(defaultMaxLogSize)
	if rc.MaxSize != "" {
		if parsed, err := types.ParseSize(rc.MaxSize); err == nil && parsed > 0 {
			maxSize = parsed
		}
	}

	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}
