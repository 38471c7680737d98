package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"rescache/internal/events"
	"rescache/internal/filecache"
	"rescache/internal/util"
)

// ClearSignal asks a running daemon to purge its cache.
const ClearSignal = syscall.SIGHUP

// Daemon owns the file cache of one config dir, sweeps it on a schedule and
// purges it on clear-content requests.
type Daemon struct {
	Settings *Settings

	cache    *filecache.FileCache
	registry *events.Registry
	sweeper  *Sweeper
	logFile  *os.File
}

// New creates a daemon instance from settings.
func New(settings *Settings) *Daemon {
	return &Daemon{
		Settings: settings,
		registry: events.NewRegistry(),
	}
}

// Cache returns the daemon's file cache. Nil before Open.
func (d *Daemon) Cache() *filecache.FileCache {
	return d.cache
}

// Registry returns the clear-content registry the cache is subscribed to.
func (d *Daemon) Registry() *events.Registry {
	return d.registry
}

// Open validates settings, sets up logging and opens the cache directory.
func (d *Daemon) Open() error {
	if err := d.Settings.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	if err := d.setupLogging(); err != nil {
		return err
	}

	cache, err := filecache.New(d.Settings.ResolvedCacheDir(),
		filecache.WithKeepPatterns(d.Settings.Keep...),
		filecache.WithLogger(log.WithField("component", "filecache")),
	)
	if err != nil {
		return err
	}
	d.cache = cache
	d.registry.Register(cache)

	d.sweeper = NewSweeper(cache, d.Settings, LockPath())
	return nil
}

func (d *Daemon) setupLogging() error {
	_, enabled, err := ParseLogLevel(d.Settings.LogLevel)
	if err != nil {
		return err
	}
	if !enabled {
		return SetupLogging("none", nil)
	}

	// Truncate log file if it exceeds 50MB
	logFile, err := openLogFile(50 * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.logFile = logFile
	return SetupLogging(d.Settings.LogLevel, logFile)
}

// Close releases resources acquired by Open.
func (d *Daemon) Close() error {
	if d.logFile != nil {
		err := d.logFile.Close()
		d.logFile = nil
		return err
	}
	return nil
}

// Run opens the daemon and blocks until ctx is cancelled or a termination
// signal arrives. ClearSignal purges the cache without stopping.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Open(); err != nil {
		return err
	}
	defer d.Close()

	// The lock decides which instance owns the PID file.
	lock, err := d.sweeper.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := util.Retry(ctx, d.writePidFile); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer d.removePidFile()

	log.WithFields(log.Fields{
		"pid": os.Getpid(),
		"dir": d.cache.CachePath(),
	}).Info("daemon started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, ClearSignal)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.sweeper.RunHolding(ctx, lock)
	}()

	for {
		select {
		case sig := <-sigCh:
			if sig == ClearSignal {
				failed := d.registry.ClearContent(true)
				log.WithField("failed_listeners", failed).Info("clear content requested")
				continue
			}
			log.Infof("received signal %v, shutting down", sig)
			cancel()
			return <-errCh
		case err := <-errCh:
			return err
		}
	}
}

func (d *Daemon) writePidFile() error {
	data := []byte(strconv.Itoa(os.Getpid()))
	return os.WriteFile(PidPath(), data, 0600)
}

func (d *Daemon) removePidFile() {
	os.Remove(PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// IsDaemonRunning reports whether the PID file points to a live process.
func IsDaemonRunning() bool {
	pid, err := GetPID()
	if err != nil {
		return false
	}
	return util.IsProcessRunning(pid)
}

// ErrNotRunning is returned when a request needs a running daemon.
var ErrNotRunning = errors.New("daemon is not running")

// SignalClear asks the running daemon to purge its cache.
func SignalClear() error {
	pid, err := GetPID()
	if err != nil || !util.IsProcessRunning(pid) {
		return ErrNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(ClearSignal)
}
