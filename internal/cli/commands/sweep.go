package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rescache/internal/daemon"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stale files once",
	Long: `Deletes every file in the cache directory whose modification time is older
than the staleness window. Files matching a keep pattern are never deleted.

Fails if another sweeper (usually the daemon) is running.

Examples:
  rescache sweep
  rescache sweep --staleness 2h`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var sweepStaleness time.Duration

func init() {
	sweepCmd.Flags().DurationVar(&sweepStaleness, "staleness", 0, "Staleness window (default from settings)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("staleness") {
		settings.Staleness = sweepStaleness
	}
	cache, err := openCache(settings)
	if err != nil {
		return err
	}

	sweeper := daemon.NewSweeper(cache, settings, daemon.LockPath())
	result, err := sweeper.SweepLocked(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println(result.Format())
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", len(result.Errors))
	}
	return nil
}
