package daemon

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"

	"rescache/internal/util"
)

// CleanupResult contains the result of a cleanup operation
type CleanupResult struct {
	CleanedPidFile  bool    // Whether a stale PID file was removed
	CleanedLockFile bool    // Whether an unheld sweeper lock file was removed
	Errors          []error // Any errors encountered
}

// CleanupStale removes leftovers of a daemon that exited without shutting
// down cleanly. Nothing is touched while the daemon is running.
func CleanupStale() *CleanupResult {
	result := &CleanupResult{}
	if IsDaemonRunning() {
		return result
	}

	cleaned, err := cleanupStalePidFile()
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.CleanedPidFile = cleaned

	cleaned, err = cleanupStaleLock(LockPath())
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.CleanedLockFile = cleaned
	return result
}

// cleanupStalePidFile removes the PID file if its process is gone.
func cleanupStalePidFile() (bool, error) {
	pid, err := GetPID()
	if os.IsNotExist(err) {
		return false, nil
	}
	if err == nil && util.IsProcessRunning(pid) {
		return false, nil
	}
	// Unreadable or dead
	if err := os.Remove(PidPath()); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove PID file: %w", err)
	}
	return true, nil
}

// cleanupStaleLock removes the sweeper lock file if no process holds it.
func cleanupStaleLock(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to probe lock: %w", err)
	}
	if !locked {
		return false, nil
	}
	defer lock.Unlock()
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("failed to remove lock file: %w", err)
	}
	return true, nil
}

// FormatCleanupResult formats a cleanup result for display
func FormatCleanupResult(result *CleanupResult) string {
	var parts []string

	if result.CleanedPidFile {
		parts = append(parts, "Cleaned up stale PID file")
	}

	if result.CleanedLockFile {
		parts = append(parts, "Cleaned up stale sweeper lock")
	}

	if len(result.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d error(s):", len(result.Errors)))
		for _, e := range result.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", e.Error()))
		}
	}

	if len(parts) == 0 {
		return "No cleanup needed"
	}

	return strings.Join(parts, "\n")
}
