// Copyright 2024 rescache Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filecache manages a directory of cached files.
//
// Files are reserved by path while in use. Reserving a file freshens its
// modification time. FlushStaleCache deletes files whose modification time is
// older than a staleness window, but only when it can take sole ownership of
// the file through the reservation service, so a reserved file is never
// deleted.
package filecache

import (
	"fmt"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"

	"rescache/internal/common"
	"rescache/internal/reservation"
	"rescache/internal/storage"
)

// FileCache is a reservation service keyed by file path over one directory.
type FileCache struct {
	dir          string
	backend      storage.Backend
	reservations *reservation.Service[string]
	keep         *ignore.GitIgnore
	now          func() time.Time
	log          *logrus.Entry
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithBackend sets the storage backend. Defaults to the host filesystem.
func WithBackend(b storage.Backend) Option {
	return func(c *FileCache) {
		c.backend = b
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *logrus.Entry) Option {
	return func(c *FileCache) {
		c.log = l
	}
}

// WithKeepPatterns excludes files matching any of the gitignore-style patterns
// from sweeps. Patterns match names relative to the cache directory.
func WithKeepPatterns(patterns ...string) Option {
	return func(c *FileCache) {
		if len(patterns) == 0 {
			c.keep = nil
			return
		}
		c.keep = ignore.CompileIgnoreLines(patterns...)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) {
		c.now = now
	}
}

// WithReservationShards sets the shard count of the underlying reservation registry.
func WithReservationShards(n int) Option {
	return func(c *FileCache) {
		c.reservations = reservation.New[string](reservation.WithShards(n))
	}
}

// New creates a FileCache for cacheDir, creating the directory if it does not
// exist. It fails with common.ErrInvalidDirectory if cacheDir exists but is not
// a readable directory, or cannot be created.
func New(cacheDir string, opts ...Option) (*FileCache, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("%w: empty path", common.ErrInvalidDirectory)
	}
	abs, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidDirectory, cacheDir, err)
	}

	c := &FileCache{
		dir:     abs,
		backend: storage.NewLocal(),
		now:     time.Now,
		log:     logrus.WithField("component", "filecache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reservations == nil {
		c.reservations = reservation.New[string]()
	}

	switch {
	case storage.Exists(c.backend, c.dir):
		if !storage.IsDir(c.backend, c.dir) {
			return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidDirectory, c.dir, common.ErrNotDir)
		}
		if !storage.CanRead(c.backend, c.dir) {
			return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidDirectory, c.dir, common.ErrNotReadable)
		}
	case !storage.MkdirAll(c.backend, c.dir):
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidDirectory, c.dir, common.ErrCreateFailed)
	}

	c.log = c.log.WithField("dir", c.dir)
	return c, nil
}

// CachePath returns the absolute path of the cache directory.
func (c *FileCache) CachePath() string {
	return c.dir
}

// Path resolves name to the key used for it. Relative names are taken
// relative to the cache directory.
func (c *FileCache) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(c.dir, name)
}

// Reserve freshens the file and reserves it. Freshening is best effort: it is
// skipped for missing files and its failures are ignored.
func (c *FileCache) Reserve(name string) *reservation.Reservation[string] {
	path := c.Path(name)
	c.freshen(path)
	r := c.reservations.Reserve(path)
	c.log.WithFields(logrus.Fields{
		"path":        path,
		"reservation": r.ID(),
	}).Trace("reserved")
	return r
}

// Release releases r and logs it. It is equivalent to r.Release.
func (c *FileCache) Release(r *reservation.Reservation[string]) error {
	err := r.Release()
	entry := c.log.WithFields(logrus.Fields{
		"path":        r.Key(),
		"reservation": r.ID(),
	})
	if err != nil {
		entry.WithError(err).Debug("release failed")
		return err
	}
	entry.Trace("released")
	return nil
}

// TryWithReservation runs action only if no one else holds a reservation for
// the file. Reports whether action ran.
func (c *FileCache) TryWithReservation(name string, action func()) bool {
	return c.reservations.TryWithReservation(c.Path(name), action)
}

// Holders returns the number of outstanding reservations for the file.
func (c *FileCache) Holders(name string) int {
	return c.reservations.Holders(c.Path(name))
}

// Reservations returns registry statistics.
func (c *FileCache) Reservations() reservation.Stats {
	return c.reservations.Stats()
}

// freshen updates the modification time of path to now.
func (c *FileCache) freshen(path string) {
	if !storage.Exists(c.backend, path) {
		return
	}
	if err := storage.Touch(c.backend, path, c.now()); err != nil {
		c.log.WithField("path", path).WithError(err).Debug("freshen failed")
	}
}

// kept reports whether the file at path matches a keep pattern.
func (c *FileCache) kept(path string) bool {
	if c.keep == nil {
		return false
	}
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		return false
	}
	return c.keep.MatchesPath(filepath.ToSlash(rel))
}
