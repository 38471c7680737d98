package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rescache/internal/daemon"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change persistent settings",
	Long: `Show or change the settings stored in ~/.rescache/settings.yaml.
Changes take effect on next daemon start.

Examples:
  # Show current settings
  rescache settings

  # Sweep every 5 minutes, deleting files unused for 2 hours
  rescache settings --interval 5m --staleness 2h

  # Move the cache and enable debug logging
  rescache settings --cache-dir /var/cache/tiles --logging debug

  # Never sweep lock files or the index
  rescache settings --keep '*.lock' --keep index.db`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var (
	settingsStaleness string
	settingsInterval  string
	settingsLogLevel  string
	settingsKeep      []string
)

func init() {
	settingsCmd.Flags().StringVar(&settingsStaleness, "staleness", "", "Staleness window, e.g. 24h")
	settingsCmd.Flags().StringVar(&settingsInterval, "interval", "", "Sweep interval, e.g. 10m")
	settingsCmd.Flags().StringVar(&settingsLogLevel, "logging", "", "Log level: trace, debug, info, warn, none")
	settingsCmd.Flags().StringSliceVar(&settingsKeep, "keep", nil, "Keep pattern (repeatable, replaces the list)")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	changed, err := applySettingsFlags(cmd, settings)
	if err != nil {
		return err
	}
	if !changed {
		printSettings(settings)
		return nil
	}

	if err := daemon.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Println("Settings saved")
	if daemon.IsDaemonRunning() {
		fmt.Println("Restart the daemon to apply: rescache daemon start --restart")
	}
	return nil
}

// applySettingsFlags copies every flag the user set into settings.
func applySettingsFlags(cmd *cobra.Command, settings *daemon.Settings) (bool, error) {
	changed := false
	if cmd.Flags().Changed("cache-dir") {
		settings.CacheDir = cacheDirFlag
		changed = true
	}
	if cmd.Flags().Changed("staleness") {
		d, err := parseDuration("staleness", settingsStaleness)
		if err != nil {
			return false, err
		}
		settings.Staleness = d
		changed = true
	}
	if cmd.Flags().Changed("interval") {
		d, err := parseDuration("interval", settingsInterval)
		if err != nil {
			return false, err
		}
		settings.SweepInterval = d
		changed = true
	}
	if cmd.Flags().Changed("logging") {
		level := strings.ToLower(settingsLogLevel)
		if _, enabled, err := daemon.ParseLogLevel(level); err != nil {
			return false, fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, none", settingsLogLevel)
		} else if !enabled {
			level = ""
		}
		settings.LogLevel = level
		changed = true
	}
	if cmd.Flags().Changed("keep") {
		settings.Keep = settingsKeep
		changed = true
	}
	return changed, nil
}

func printSettings(settings *daemon.Settings) {
	fmt.Println("Current settings:")
	fmt.Printf("  Cache dir: %s\n", settings.ResolvedCacheDir())
	fmt.Printf("  Staleness: %s\n", settings.Staleness)
	fmt.Printf("  Sweep interval: %s\n", settings.SweepInterval)
	fmt.Printf("  Log level: %s\n", logLevelName(settings.LogLevel))
	if len(settings.Keep) > 0 {
		fmt.Printf("  Keep: %s\n", strings.Join(settings.Keep, ", "))
	}
	fmt.Println()
	fmt.Printf("Settings file: %s\n", daemon.SettingsPath())
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return d, nil
}
