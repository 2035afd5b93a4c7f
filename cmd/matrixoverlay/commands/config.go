package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage MatrixOverlay configuration",
	Long:  `View and manage MatrixOverlay configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current MatrixOverlay configuration, including defaults.`,
	Example: `  # Show configuration as YAML (default)
  matrixoverlay config show

  # Show configuration as JSON
  matrixoverlay config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Keys use dots for nesting. The
result is validated before it is saved; a running overlay applies it
immediately.`,
	Example: `  # Switch the rain to pulse mode
  matrixoverlay config set cosmetics.rain_mode pulse

  # Freeze the rain
  matrixoverlay config set cosmetics.rain_speed 0`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Example: `  # Get the update interval
  matrixoverlay config get general.update_ms`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate a configuration file",
	Long: `Parse and validate a configuration file without starting the overlay.
Defaults to the active config file. Monitors whose metric lists overlap too
much are reported as warnings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// readViper loads the config file into a fresh viper instance
func readViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v, err := readViper(configMgr.GetConfigPath())
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	typed, err := parseValue(value)
	if err != nil {
		return err
	}
	v.Set(key, typed)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}
	if err := configMgr.Update(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

// parseValue lets YAML type a command-line value so "0" and "true" land as
// numbers and booleans. A value YAML reads as nothing, such as "#00FF41"
// which is a comment, is kept as the raw string.
func parseValue(value string) (interface{}, error) {
	var typed interface{}
	if err := yaml.Unmarshal([]byte(value), &typed); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", value, err)
	}
	if typed == nil {
		switch strings.TrimSpace(value) {
		case "", "null", "~":
			return nil, fmt.Errorf("empty value for configuration key")
		}
		return value, nil
	}
	return typed, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	v, err := readViper(configMgr.GetConfigPath())
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Println(v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(configMgr.GetConfigPath())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}

	for _, c := range layout.ValidateUniqueness(cfg.Screens) {
		fmt.Printf("⚠ Monitors %d and %d share %s (uniqueness %.2f)\n",
			c.A, c.B, strings.Join(c.Shared, ", "), c.Uniqueness)
	}
	fmt.Printf("✅ %s is valid (%d screens, rain %s)\n", path, len(cfg.Screens), cfg.Cosmetics.RainMode)
	return nil
}
