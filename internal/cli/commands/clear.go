package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rescache/internal/daemon"
	"rescache/internal/events"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all unreserved cache files",
	Long: `Asks the running daemon to clear its cache content. Files reserved inside the
daemon are left alone. Without a daemon, the cache directory is purged directly.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	err := daemon.SignalClear()
	if err == nil {
		fmt.Println("Clear requested from daemon")
		return nil
	}
	if !errors.Is(err, daemon.ErrNotRunning) {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	cache, err := openCache(settings)
	if err != nil {
		return err
	}

	registry := events.NewRegistry()
	registry.Register(cache)
	if failed := registry.ClearContent(true); failed > 0 {
		return fmt.Errorf("clear failed for %d listener(s)", failed)
	}
	fmt.Printf("Cleared %s\n", cache.CachePath())
	return nil
}
