package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestLocalImplementsChange(t *testing.T) {
	t.Parallel()

	var b Backend = NewLocal()
	_, ok := b.(billy.Change)
	assert.True(t, ok)

	_, ok = WithoutChtimes(b).(billy.Change)
	assert.False(t, ok, "wrapped backend must hide Chtimes")
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	b := NewLocal()
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	writeFile(t, file, "x", time.Now())

	assert.True(t, Exists(b, dir))
	assert.True(t, Exists(b, file))
	assert.False(t, Exists(b, filepath.Join(dir, "missing")))

	assert.True(t, IsDir(b, dir))
	assert.False(t, IsDir(b, file))
	assert.False(t, IsDir(b, filepath.Join(dir, "missing")))

	assert.True(t, CanRead(b, dir))
	assert.False(t, CanRead(b, filepath.Join(dir, "missing")))

	nested := filepath.Join(dir, "a", "b", "c")
	assert.True(t, MkdirAll(b, nested))
	assert.True(t, IsDir(b, nested))
}

func TestListFiles(t *testing.T) {
	t.Parallel()

	b := NewLocal()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one"), "1", time.Now())
	writeFile(t, filepath.Join(dir, "two"), "22", time.Now())
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	writeFile(t, filepath.Join(dir, "sub", "nested"), "3", time.Now())

	entries := ListFiles(b, dir)
	require.Len(t, entries, 3, "listing is not recursive")

	byPath := make(map[string]os.FileInfo)
	for _, e := range entries {
		byPath[e.Path] = e.Info
	}
	require.Contains(t, byPath, filepath.Join(dir, "one"))
	require.Contains(t, byPath, filepath.Join(dir, "sub"))
	assert.Equal(t, int64(2), byPath[filepath.Join(dir, "two")].Size())
	assert.True(t, byPath[filepath.Join(dir, "sub")].IsDir())

	assert.Nil(t, ListFiles(b, filepath.Join(dir, "missing")))
}

func TestLastModifiedAndDelete(t *testing.T) {
	t.Parallel()

	b := NewLocal()
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeFile(t, file, "x", past)

	assert.True(t, LastModified(b, file).Equal(past))
	assert.True(t, LastModified(b, filepath.Join(dir, "missing")).IsZero())

	assert.True(t, Delete(b, file))
	assert.False(t, Exists(b, file))
	assert.False(t, Delete(b, file), "deleting a missing file reports failure")
}

func TestTouch(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name    string
		backend Backend
	}{
		{"chtimes", NewLocal()},
		{"truncate fallback", WithoutChtimes(NewLocal())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			file := filepath.Join(t.TempDir(), "f")
			writeFile(t, file, "payload", past)

			before := LastModified(tt.backend, file)
			require.NoError(t, Touch(tt.backend, file, time.Now()))
			after := LastModified(tt.backend, file)

			assert.True(t, after.After(before), "mtime should move forward: before=%v after=%v", before, after)

			data, err := os.ReadFile(file)
			require.NoError(t, err)
			assert.Equal(t, "payload", string(data), "touch must not change content")
		})
	}
}

func TestTouchMissingFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing")
	err := Touch(NewLocal(), missing, time.Now())
	assert.ErrorIs(t, err, ErrTouchFailed)
	assert.NoFileExists(t, missing, "fallback must not create the file")
}
