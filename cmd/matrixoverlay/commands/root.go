package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "matrixoverlay",
		Short: "MatrixOverlay - digital rain system monitor on the desktop",
		Long: `MatrixOverlay draws a transparent, click-through overlay on every
monitor, just above the wallpaper. Each monitor shows a day-of-week header and
live system metrics in glowing text over an animated digital rain background.

Features:
  • One overlay per RandR monitor, primary first
  • Per-monitor metric lists with uniqueness checks
  • Falling, static or pulsing background animation
  • Hot reload of the YAML configuration
  • Ctrl+Alt+W toggles the overlay, Ctrl+Alt+Q quits
  • Optional local preview server (MJPEG + JSON API)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), viper.GetString("log_format") != "json")
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/matrixoverlay/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "pretty", "log output format (pretty or json)")
	rootCmd.PersistentFlags().Int("preview-port", 0, "enable the preview server on this port")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("preview_port", rootCmd.PersistentFlags().Lookup("preview-port"))
	viper.SetEnvPrefix("MATRIXOVERLAY")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config manager and applies flag overrides
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}
	if viper.IsSet("preview_port") {
		if port := viper.GetInt("preview_port"); port > 0 {
			configMgr.SetPreviewPort(port)
		}
	}
	return configMgr, nil
}
