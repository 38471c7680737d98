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

// Package storage is the persistent-storage layer used by the file cache.
//
// Backends are go-billy filesystems addressed with absolute paths. The helper
// functions in this package report ordinary conditions (missing file,
// permission denied) as boolean or zero results instead of errors, so cache
// code can stay free of I/O error plumbing.
//
// Setting a modification time is an optional capability (billy.Change).
// Touch uses it when present and falls back to a length grow/shrink when not.
package storage

import (
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Backend is the set of filesystem operations the cache needs.
type Backend interface {
	billy.Basic
	billy.Dir
}

// Local is a Backend over the host filesystem. Paths are used as given.
type Local struct {
	Backend
}

// NewLocal returns a Backend for the host filesystem.
func NewLocal() *Local {
	return &Local{Backend: osfs.Default}
}

// Chtimes implements billy.Change for the host filesystem.
func (l *Local) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Chmod implements billy.Change for the host filesystem.
func (l *Local) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// Lchown implements billy.Change for the host filesystem.
func (l *Local) Lchown(name string, uid, gid int) error {
	return os.Lchown(name, uid, gid)
}

// Chown implements billy.Change for the host filesystem.
func (l *Local) Chown(name string, uid, gid int) error {
	return os.Chown(name, uid, gid)
}

var _ billy.Change = (*Local)(nil)

// noChtimes hides any billy.Change implementation of the wrapped backend.
type noChtimes struct {
	Backend
}

// WithoutChtimes wraps b so that it does not expose billy.Change. It models
// storage that rejects direct timestamp writes.
func WithoutChtimes(b Backend) Backend {
	return noChtimes{Backend: b}
}
