// Copyright 2024 rescache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rescache/internal/daemon"
	"rescache/internal/filecache"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	// Prod build: version with date
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var cacheDirFlag string

var rootCmd = &cobra.Command{
	Use:   "rescache",
	Short: "Reservation-backed file cache",
	Long: `Keeps a directory of cached files and sweeps out the ones nobody used recently.

Files reserved by a running process are never swept, and reserving a file
refreshes its modification time so it survives the next sweep.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Initialize config directory
		if err := daemon.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("rescache version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Cache directory (overrides settings)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings loads settings and applies flags shared by all commands.
func loadSettings() (*daemon.Settings, error) {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if cacheDirFlag != "" {
		settings.CacheDir = cacheDirFlag
	}
	return settings, nil
}

// openCache opens the configured cache directory for a one-shot command.
func openCache(settings *daemon.Settings) (*filecache.FileCache, error) {
	if err := daemon.SetupLogging(settings.LogLevel, os.Stderr); err != nil {
		return nil, err
	}
	return filecache.New(settings.ResolvedCacheDir(),
		filecache.WithKeepPatterns(settings.Keep...),
		filecache.WithLogger(log.WithField("component", "filecache")),
	)
}
