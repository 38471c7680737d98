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

	"github.com/spf13/cobra"

	"rescache/internal/daemon"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache directory usage",
	Long: `Show the cache directory, the number of files it holds, their total size
and the least recently used file.

Examples:
  rescache info
  rescache info --cache-dir /var/cache/tiles`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	cache, err := openCache(settings)
	if err != nil {
		return err
	}

	usage, err := cache.Usage()
	if err != nil {
		return err
	}

	fmt.Printf("Cache dir: %s\n", cache.CachePath())
	fmt.Printf("Files: %d\n", usage.Files)
	fmt.Printf("Total size: %.1S\n", usage.TotalBytes)
	if usage.Oldest != "" {
		fmt.Printf("Oldest file: %s\n", usage.Oldest)
	}
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon: running (PID %d)\n", pid)
	} else {
		fmt.Println("Daemon: not running")
	}
	return nil
}
