package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rescache/internal/artifacts"
	"rescache/internal/common"
)

// getConfigDir returns the config directory path.
// Uses RESCACHE_CONFIG_DIR env var if set, otherwise defaults to ~/.rescache.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("RESCACHE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rescache")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// PidPath returns the PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), "daemon.pid")
}

// LogPath returns the log file path.
// Uses RESCACHE_DAEMON_LOG env var if set, otherwise defaults to config_dir/daemon.log.
func LogPath() string {
	if envPath := os.Getenv("RESCACHE_DAEMON_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "daemon.log")
}

// LockPath returns the sweeper lock file path
func LockPath() string {
	return filepath.Join(getConfigDir(), "sweeper.lock")
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// DefaultCacheDir returns the cache directory used when settings leave it empty
func DefaultCacheDir() string {
	return filepath.Join(getConfigDir(), "cache")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with default files
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create default settings file if not exists (using template)
	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings represents daemon and cache settings
type Settings struct {
	CacheDir      string        `yaml:"cache_dir"`      // default: config_dir/cache
	Staleness     time.Duration `yaml:"staleness"`      // files untouched for longer are swept
	SweepInterval time.Duration `yaml:"sweep_interval"` // time between sweeps in the daemon
	LogLevel      string        `yaml:"log_level"`      // trace, debug, info, warn, none (default: none)
	Keep          []string      `yaml:"keep"`           // gitignore-style patterns never swept
}

// ResolvedCacheDir returns the cache directory, falling back to DefaultCacheDir.
// A leading ~/ is expanded to the home directory.
func (s *Settings) ResolvedCacheDir() string {
	dir := s.CacheDir
	if dir == "" {
		return DefaultCacheDir()
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, rest)
		}
	}
	return dir
}

// Validate checks settings values.
func (s *Settings) Validate() error {
	if s.Staleness < 0 {
		return fmt.Errorf("%w: negative staleness %v", common.ErrInvalidSettings, s.Staleness)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep_interval must be positive, got %v", common.ErrInvalidSettings, s.SweepInterval)
	}
	if _, _, err := ParseLogLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidSettings, err)
	}
	return nil
}

// loadDefaultSettings parses default settings from embedded artifact.
func loadDefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// LoadSettings loads the settings from config_dir/settings.yaml.
// Always reads from file to get latest config. Falls back to embedded defaults
// if the file doesn't exist; fields missing from the file keep their defaults.
func LoadSettings() (*Settings, error) {
	settings := loadDefaultSettings()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &settings, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidSettings, SettingsPath(), err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings saves the settings to config_dir/settings.yaml
func SaveSettings(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	// Add header comment (same as template header)
	header := []byte("# rescache settings\n# See: rescache settings --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}
