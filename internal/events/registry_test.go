package events

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescache/internal/filecache"
)

type recorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recorder) OnClearContent(clearMaps bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, clearMaps)
	return nil
}

func (r *recorder) Calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func TestRegisterAndClear(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a, b := &recorder{}, &recorder{}
	reg.Register(a)
	unregisterB := reg.Register(b)
	assert.Equal(t, 2, reg.Len())

	assert.Zero(t, reg.ClearContent(true))
	assert.Equal(t, []bool{true}, a.Calls())
	assert.Equal(t, []bool{true}, b.Calls())

	unregisterB()
	unregisterB()
	assert.Equal(t, 1, reg.Len())

	reg.ClearContent(false)
	assert.Equal(t, []bool{true, false}, a.Calls())
	assert.Equal(t, []bool{true}, b.Calls())

	reg.Unregister(a)
	assert.Zero(t, reg.Len())
}

func TestUnregisterListenerFunc(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var calls atomic.Int32
	f := ListenerFunc(func(bool) error {
		calls.Add(1)
		return nil
	})
	other := &recorder{}
	unregister := reg.Register(f)
	reg.Register(other)

	assert.NotPanics(t, func() { reg.Unregister(f) })
	assert.NotPanics(t, func() { reg.Unregister(nil) })
	assert.Equal(t, 2, reg.Len(), "func listeners are only removed by their unregister func")

	// A comparable listener is still found past a func registration.
	reg.Unregister(other)
	assert.Equal(t, 1, reg.Len())

	unregister()
	assert.Zero(t, reg.Len())
	assert.Zero(t, reg.ClearContent(true))
	assert.Zero(t, calls.Load())
}

func TestClearContentSurvivesFailingListeners(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	last := &recorder{}
	reg.Register(ListenerFunc(func(bool) error { return errors.New("nope") }))
	reg.Register(ListenerFunc(func(bool) error { panic("boom") }))
	reg.Register(last)

	assert.Equal(t, 2, reg.ClearContent(true))
	assert.Equal(t, []bool{true}, last.Calls())
}

func TestListenerMayUnregisterDuringCallback(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var calls atomic.Int32
	var unregister func()
	unregister = reg.Register(ListenerFunc(func(bool) error {
		calls.Add(1)
		unregister()
		return nil
	}))

	done := make(chan struct{})
	go func() {
		reg.ClearContent(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ClearContent deadlocked while a listener unregistered itself")
	}

	reg.ClearContent(true)
	assert.EqualValues(t, 1, calls.Load())
	assert.Zero(t, reg.Len())
}

func TestFileCacheListener(t *testing.T) {
	t.Parallel()

	c, err := filecache.New(t.TempDir())
	require.NoError(t, err)

	path := c.Path("tile")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	reg := NewRegistry()
	reg.Register(c)

	assert.Zero(t, reg.ClearContent(false))
	assert.FileExists(t, path)

	assert.Zero(t, reg.ClearContent(true))
	assert.NoFileExists(t, path)
}
