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

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
)

// Entry is a directory child returned by ListFiles.
type Entry struct {
	Path string
	Info os.FileInfo
}

// Exists reports whether path exists.
func Exists(b Backend, path string) bool {
	_, err := b.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(b Backend, path string) bool {
	info, err := b.Stat(path)
	return err == nil && info.IsDir()
}

// CanRead reports whether the directory at path can be listed.
func CanRead(b Backend, path string) bool {
	_, err := b.ReadDir(path)
	return err == nil
}

// MkdirAll creates path and any missing parents.
func MkdirAll(b Backend, path string) bool {
	return b.MkdirAll(path, 0o755) == nil
}

// ListFiles returns the direct children of dir, or nil if dir cannot be listed.
func ListFiles(b Backend, dir string) []Entry {
	infos, err := b.ReadDir(dir)
	if err != nil {
		return nil
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Path: filepath.Join(dir, info.Name()),
			Info: info,
		})
	}
	return entries
}

// LastModified returns the modification time of path, or the zero time if it
// cannot be read.
func LastModified(b Backend, path string) time.Time {
	info, err := b.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Delete removes path and reports whether it succeeded.
func Delete(b Backend, path string) bool {
	return b.Remove(path) == nil
}

// ErrTouchFailed is returned by Touch when neither touch strategy worked.
var ErrTouchFailed = errors.New("touch failed")

// Touch sets the modification time of path to now. It uses billy.Change when
// the backend provides it and falls back to TouchByTruncate otherwise or when
// Chtimes fails.
func Touch(b Backend, path string, now time.Time) error {
	var primary error
	if ch, ok := b.(billy.Change); ok {
		if primary = ch.Chtimes(path, now, now); primary == nil {
			return nil
		}
	}

	if err := TouchByTruncate(b, path); err != nil {
		if primary != nil {
			return fmt.Errorf("%w: %s: chtimes: %v; truncate: %v", ErrTouchFailed, path, primary, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrTouchFailed, path, err)
	}
	return nil
}

// TouchByTruncate forces a modification time update by growing the file by
// one byte and shrinking it back to its original length.
func TouchByTruncate(b Backend, path string) (err error) {
	f, err := b.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if err := f.Truncate(length + 1); err != nil {
		return err
	}
	return f.Truncate(length)
}
