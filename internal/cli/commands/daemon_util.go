package commands

import (
	"context"

	"rescache/internal/daemon"
	"rescache/internal/util"
)

// startDaemon runs "serve" in a detached process and waits until its PID file
// points to a live process. The cache dir override is passed through.
func startDaemon(ctx context.Context) error {
	args := []string{"serve"}
	if cacheDirFlag != "" {
		args = append(args, "--cache-dir", cacheDirFlag)
	}
	return util.StartInBackground(ctx, util.FastPollConfig(), daemon.IsDaemonRunning, args)
}
