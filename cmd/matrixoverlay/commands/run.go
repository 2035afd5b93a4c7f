package commands

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/MatrixOverlay/internal/instance"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/bryanchriswhite/MatrixOverlay/internal/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the overlay",
	Long: `Start the overlay on every connected monitor.

Only one overlay may run per session. Use "matrixoverlay toggle" or
Ctrl+Alt+W to hide and show it, and "matrixoverlay quit" or Ctrl+Alt+Q to
stop it. Edits to the config file are applied while running.`,
	Example: `  # Start with the default config
  matrixoverlay run

  # Start with the preview server on port 8765
  matrixoverlay run --preview-port 8765

  # Start with debug logging
  matrixoverlay run --log-level debug`,
	RunE: runOverlay,
}

func init() {
	rootCmd.AddCommand(runCmd)
	// Bare "matrixoverlay" starts the overlay too
	rootCmd.RunE = runOverlay
}

func runOverlay(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetString("log_format") != "json")

	log := logger.WithComponent("main")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Starting MatrixOverlay")

	lock, err := instance.Acquire()
	switch {
	case errors.Is(err, instance.ErrAlreadyRunning):
		return fmt.Errorf("%w (use 'matrixoverlay quit' to stop it)", err)
	case err != nil:
		// No session bus: run without the lock and remote control
		log.Warn().Err(err).Msg("Single-instance lock unavailable")
	default:
		defer lock.Release()
	}

	return runner.New(configMgr, lock).Run(cmd.Context())
}
