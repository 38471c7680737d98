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

package filecache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tunabay/go-infounit"

	"rescache/internal/storage"
)

// ErrDeleteFailed is recorded in FlushResult.Errors when a stale file could not be removed.
var ErrDeleteFailed = errors.New("delete failed")

// ErrNegativeStaleness is recorded in FlushResult.Errors when FlushStaleCache
// is given a negative window. Nothing is deleted in that case.
var ErrNegativeStaleness = errors.New("negative staleness")

// FlushResult contains the result of a sweep.
type FlushResult struct {
	Deleted    []string           // Files removed
	Kept       int                // Files still fresh
	Reserved   []string           // Files skipped because someone held a reservation
	Ignored    int                // Files matching a keep pattern, and subdirectories
	FreedBytes infounit.ByteCount // Total size of removed files
	Errors     []error            // Per-file failures; the sweep continued past each
}

// FlushStaleCache deletes files whose modification time is more than
// staleness away from now. Files that are reserved are treated as fresh and
// left alone. An unreadable directory is treated as having nothing to flush.
// staleness must not be negative.
func (c *FileCache) FlushStaleCache(staleness time.Duration) *FlushResult {
	if staleness < 0 {
		err := fmt.Errorf("%w: %v", ErrNegativeStaleness, staleness)
		c.log.WithError(err).Warn("flush skipped")
		return &FlushResult{Errors: []error{err}}
	}
	return c.flush(func(age time.Duration) bool {
		return age > staleness
	})
}

// Purge deletes every file that is not reserved.
func (c *FileCache) Purge() *FlushResult {
	return c.flush(func(time.Duration) bool { return true })
}

func (c *FileCache) flush(stale func(age time.Duration) bool) *FlushResult {
	result := &FlushResult{}
	if !storage.Exists(c.backend, c.dir) {
		return result
	}

	entries := storage.ListFiles(c.backend, c.dir)
	now := c.now()

	for _, e := range entries {
		if e.Info.IsDir() || c.kept(e.Path) {
			result.Ignored++
			continue
		}
		c.flushOne(e, now, stale, result)
	}

	if len(result.Deleted) > 0 || len(result.Errors) > 0 {
		c.log.WithFields(logrus.Fields{
			"deleted":  len(result.Deleted),
			"reserved": len(result.Reserved),
			"kept":     result.Kept,
			"errors":   len(result.Errors),
			"freed":    fmt.Sprintf("%.1S", result.FreedBytes),
		}).Info("flushed stale cache")
	}
	return result
}

// flushOne handles a single file. A panic from the storage layer is recorded
// as an error so the sweep can move on to the next file.
func (c *FileCache) flushOne(e storage.Entry, now time.Time, stale func(time.Duration) bool, result *FlushResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: panic: %v", e.Path, r))
		}
	}()

	ran := c.reservations.TryWithReservation(e.Path, func() {
		modTime := storage.LastModified(c.backend, e.Path)
		if modTime.IsZero() {
			// Removed since the listing.
			return
		}
		if !stale(absDuration(now.Sub(modTime))) {
			result.Kept++
			return
		}
		if !storage.Delete(c.backend, e.Path) {
			result.Errors = append(result.Errors, fmt.Errorf("%w: %s", ErrDeleteFailed, e.Path))
			return
		}
		result.Deleted = append(result.Deleted, e.Path)
		result.FreedBytes += infounit.ByteCount(e.Info.Size())
		c.log.WithField("path", e.Path).Debug("deleted stale file")
	})
	if !ran {
		result.Reserved = append(result.Reserved, e.Path)
		c.log.WithField("path", e.Path).Trace("skipped reserved file")
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Format formats a flush result for display.
func (r *FlushResult) Format() string {
	var parts []string

	if len(r.Deleted) > 0 {
		parts = append(parts, fmt.Sprintf("Deleted %d stale file(s), freed %.1S:", len(r.Deleted), r.FreedBytes))
		for _, p := range r.Deleted {
			parts = append(parts, fmt.Sprintf("  - %s", p))
		}
	}

	if len(r.Reserved) > 0 {
		parts = append(parts, fmt.Sprintf("Skipped %d reserved file(s)", len(r.Reserved)))
	}

	if r.Kept > 0 {
		parts = append(parts, fmt.Sprintf("Kept %d fresh file(s)", r.Kept))
	}

	if len(r.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d error(s):", len(r.Errors)))
		for _, e := range r.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", e.Error()))
		}
	}

	if len(parts) == 0 {
		return "Nothing to flush"
	}

	return strings.Join(parts, "\n")
}
