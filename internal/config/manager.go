package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"gopkg.in/yaml.v3"
)

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/matrixoverlay/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "matrixoverlay", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile selects
// the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	cfg, err := m.load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		m.config = cfg
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("screens", len(m.config.Screens)).
		Str("rain_mode", m.config.Cosmetics.RainMode).
		Msg("Config loaded")

	return m, nil
}

// load reads and validates the configuration from disk without touching the
// manager's current state.
func (m *Manager) load() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result. Keys
// absent from the document keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.General.GlowPasses) == 0 {
		cfg.General.GlowPasses = DefaultGlowPasses()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.Clone()
}

// Reload re-reads the file. On failure the previous configuration stays active
// and the error is returned.
func (m *Manager) Reload() (*Config, error) {
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config reloaded")
	return cfg.Clone(), nil
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write through a temp file so the watcher never sees a half-written file
	tmp := m.configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, m.configPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Update replaces the configuration after validating it, then saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg.Clone()
	m.mu.Unlock()
	return m.Save()
}

// SetLogLevel overrides the log level in memory (not persisted)
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetPreviewPort enables the preview server on port (not persisted)
func (m *Manager) SetPreviewPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Preview.Enabled = true
	m.config.Preview.Port = port
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory holding the config file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
