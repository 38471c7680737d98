package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"rescache/internal/daemon"
	"rescache/internal/util"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long:  `Commands for controlling the background rescache daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  `Starts the rescache daemon in the background.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stops the running rescache daemon.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftovers of a crashed daemon",
	Long:  `Removes a stale PID file and an unheld sweeper lock. Does nothing while the daemon runs.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(daemon.FormatCleanupResult(daemon.CleanupStale()))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	Long: `Runs the sweeper in the foreground until interrupted.

SIGHUP clears the cache content without stopping the daemon.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var daemonRestart bool

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonRestart, "restart", false, "Restart daemon if already running")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonCleanupCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	daemon.CleanupStale()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	return daemon.New(settings).Run(cmd.Context())
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()

		if !daemonRestart {
			fmt.Printf("Daemon already running (PID %d)\n", pid)
			fmt.Println("Use --restart to restart the daemon")
			return nil
		}
		fmt.Printf("Daemon already running (PID %d), restarting...\n", pid)
		if err := stopDaemonAndWait(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop daemon for restart: %w", err)
		}
	}

	if err := startDaemon(cmd.Context()); err != nil {
		return err
	}
	pid, _ := daemon.GetPID()
	fmt.Printf("Daemon started (PID %d)\n", pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		// Still do cleanup in case there are stale artifacts
		daemon.CleanupStale()
		return nil
	}

	if err := stopDaemonAndWait(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon: running (PID %d)\n", pid)
	} else {
		fmt.Println("Daemon: not running")
	}

	fmt.Printf("Cache dir: %s\n", settings.ResolvedCacheDir())
	fmt.Printf("Sweep interval: %s\n", settings.SweepInterval)
	fmt.Printf("Staleness: %s\n", settings.Staleness)
	fmt.Printf("Log level: %s\n", logLevelName(settings.LogLevel))
	return nil
}

func logLevelName(level string) string {
	if _, enabled, err := daemon.ParseLogLevel(level); err != nil || !enabled {
		return "none"
	}
	return level
}

// stopDaemonAndWait sends SIGTERM and waits for the daemon to exit, killing it
// if it does not stop in time.
func stopDaemonAndWait(ctx context.Context) error {
	pid, err := daemon.GetPID()
	if err != nil {
		return err
	}
	if err := util.StopProcess(ctx, pid, util.DefaultPollConfig()); err != nil {
		return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
	}
	daemon.CleanupStale()
	return nil
}
