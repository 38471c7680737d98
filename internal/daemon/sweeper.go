package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"

	"rescache/internal/common"
	"rescache/internal/filecache"
	"rescache/internal/util"
)

// Sweeper periodically flushes stale files from a FileCache.
// Only one sweeper per lock file may run at a time, across processes.
type Sweeper struct {
	Cache     *filecache.FileCache
	Staleness time.Duration
	Interval  time.Duration
	LockPath  string

	// OnSweep, if set, receives the result of every sweep.
	OnSweep func(*filecache.FlushResult)

	initOnce sync.Once
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper for cache using the interval and staleness from settings.
func NewSweeper(cache *filecache.FileCache, settings *Settings, lockPath string) *Sweeper {
	return &Sweeper{
		Cache:     cache,
		Staleness: settings.Staleness,
		Interval:  settings.SweepInterval,
		LockPath:  lockPath,
	}
}

func (s *Sweeper) stopped() chan struct{} {
	s.initOnce.Do(func() {
		s.stopCh = make(chan struct{})
	})
	return s.stopCh
}

// acquireLock takes the sweeper lock, retrying while another process holds it.
func (s *Sweeper) acquireLock(ctx context.Context) (*flock.Flock, error) {
	lock := flock.New(s.LockPath)
	_, err := util.RetryWithResult(ctx, func() (bool, error) {
		locked, err := lock.TryLock()
		if err != nil {
			return false, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if !locked {
			return false, fmt.Errorf("%s: %w", s.LockPath, common.ErrSweeperRunning)
		}
		return true, nil
	}, util.LockRetryOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// SweepOnce runs a single sweep.
func (s *Sweeper) SweepOnce() *filecache.FlushResult {
	result := s.Cache.FlushStaleCache(s.Staleness)
	if s.OnSweep != nil {
		s.OnSweep(result)
	}
	return result
}

// SweepLocked runs a single sweep while holding the sweeper lock, so it never
// overlaps a sweep of another process.
func (s *Sweeper) SweepLocked(ctx context.Context) (*filecache.FlushResult, error) {
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return s.SweepOnce(), nil
}

// Run sweeps immediately and then every Interval until ctx is cancelled or
// Stop is called. It returns an error wrapping common.ErrSweeperRunning if
// another sweeper holds the lock.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.checkInterval(); err != nil {
		return err
	}

	lock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	return s.loop(ctx)
}

// RunHolding is Run for a caller that already holds the sweeper lock.
func (s *Sweeper) RunHolding(ctx context.Context, lock *flock.Flock) error {
	if !lock.Locked() {
		return fmt.Errorf("%s: lock not held", lock.Path())
	}
	if err := s.checkInterval(); err != nil {
		return err
	}
	return s.loop(ctx)
}

func (s *Sweeper) checkInterval() error {
	if s.Interval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", common.ErrInvalidSettings)
	}
	return nil
}

func (s *Sweeper) loop(ctx context.Context) error {
	logger := log.WithFields(log.Fields{
		"component": "sweeper",
		"dir":       s.Cache.CachePath(),
	})
	logger.WithFields(log.Fields{
		"interval":  s.Interval,
		"staleness": s.Staleness,
	}).Info("sweeper started")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		result := s.SweepOnce()
		stats := s.Cache.Reservations()
		logger.WithFields(log.Fields{
			"deleted":        len(result.Deleted),
			"freed":          fmt.Sprintf("%.1S", result.FreedBytes),
			"reserved":       len(result.Reserved),
			"errors":         len(result.Errors),
			"reserved_keys":  stats.Keys,
			"active_holders": stats.Holders,
		}).Debug("sweep finished")

		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return nil
		case <-s.stopped():
			logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop asks Run to return. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped())
	})
}
