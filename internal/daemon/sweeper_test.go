package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescache/internal/common"
	"rescache/internal/filecache"
)

func newTestCache(t *testing.T) *filecache.FileCache {
	t.Helper()
	c, err := filecache.New(t.TempDir())
	require.NoError(t, err)
	return c
}

func staleFile(t *testing.T, path string) {
	t.Helper()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestSweeperRunsUntilStopped(t *testing.T) {
	g := NewWithT(t)

	cache := newTestCache(t)
	staleFile(t, cache.Path("old"))

	s := NewSweeper(cache, &Settings{Staleness: time.Minute, SweepInterval: 10 * time.Millisecond},
		filepath.Join(t.TempDir(), "sweeper.lock"))
	var sweeps atomic.Int32
	s.OnSweep = func(*filecache.FlushResult) { sweeps.Add(1) }

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	g.Eventually(cache.Path("old")).ShouldNot(BeAnExistingFile())

	// A file created later goes on the next tick.
	staleFile(t, cache.Path("later"))
	g.Eventually(cache.Path("later")).ShouldNot(BeAnExistingFile())
	g.Expect(sweeps.Load()).To(BeNumerically(">=", 2))

	s.Stop()
	s.Stop()
	g.Eventually(errCh).Should(Receive(BeNil()))
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	g := NewWithT(t)

	s := NewSweeper(newTestCache(t), &Settings{SweepInterval: time.Hour},
		filepath.Join(t.TempDir(), "sweeper.lock"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()
	g.Eventually(errCh).Should(Receive(BeNil()))
}

func TestSweeperSkipsReservedFiles(t *testing.T) {
	g := NewWithT(t)

	cache := newTestCache(t)
	staleFile(t, cache.Path("held"))
	staleFile(t, cache.Path("free"))

	r := cache.Reserve("held")
	// Reserve freshens the file; make it stale again so only the reservation protects it.
	staleFile(t, cache.Path("held"))

	s := NewSweeper(cache, &Settings{Staleness: time.Minute, SweepInterval: 10 * time.Millisecond},
		filepath.Join(t.TempDir(), "sweeper.lock"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	g.Eventually(cache.Path("free")).ShouldNot(BeAnExistingFile())
	g.Consistently(cache.Path("held"), 100*time.Millisecond).Should(BeAnExistingFile())

	require.NoError(t, r.Release())
	g.Eventually(cache.Path("held")).ShouldNot(BeAnExistingFile())
}

func TestSweeperLockContention(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "sweeper.lock")
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	s := NewSweeper(newTestCache(t), &Settings{SweepInterval: time.Hour}, lockPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.Run(ctx)
	assert.ErrorIs(t, err, common.ErrSweeperRunning)
}

func TestSweeperRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	s := &Sweeper{Cache: newTestCache(t), LockPath: filepath.Join(t.TempDir(), "l")}
	assert.ErrorIs(t, s.Run(context.Background()), common.ErrInvalidSettings)
	s.Stop()
}

func TestSweepOnce(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t)
	staleFile(t, cache.Path("a"))

	s := NewSweeper(cache, &Settings{Staleness: time.Minute, SweepInterval: time.Hour}, "")
	var got *filecache.FlushResult
	s.OnSweep = func(r *filecache.FlushResult) { got = r }

	result := s.SweepOnce()
	assert.Same(t, result, got)
	assert.Equal(t, []string{cache.Path("a")}, result.Deleted)
}

func TestSweepLocked(t *testing.T) {
	cache := newTestCache(t)
	staleFile(t, cache.Path("a"))
	lockPath := filepath.Join(t.TempDir(), "sweeper.lock")

	s := NewSweeper(cache, &Settings{Staleness: time.Minute, SweepInterval: time.Hour}, lockPath)
	result, err := s.SweepLocked(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Deleted, 1)

	// Lock is released afterwards
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, other.Unlock())
}
