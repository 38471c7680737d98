package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// StartBackgroundProcess starts a detached background process.
// The process will continue running after the parent exits.
func StartBackgroundProcess(executable string, args []string, env []string) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if env != nil {
		cmd.Env = env
	} else {
		cmd.Env = os.Environ()
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Reap the child if it exits while we are still around.
	go cmd.Wait()

	return cmd.Process, nil
}

// StopProcess sends SIGTERM to pid and waits for it to exit, force killing it
// if it is still running after cfg.Timeout.
func StopProcess(ctx context.Context, pid int, cfg PollConfig) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process (PID %d): %w", pid, err)
	}

	gone := func() bool { return !IsProcessRunning(pid) }
	if PollUntil(ctx, cfg, gone) == nil {
		return nil
	}

	// Process didn't stop gracefully, force kill
	_ = proc.Signal(syscall.SIGKILL)
	if PollUntil(ctx, PollConfig{Timeout: 500 * time.Millisecond}, gone) != nil {
		return fmt.Errorf("failed to stop process (PID %d)", pid)
	}
	return nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, sending signal 0 checks if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
