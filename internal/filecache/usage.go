package filecache

import (
	"fmt"

	"github.com/tunabay/go-infounit"

	"rescache/internal/common"
	"rescache/internal/storage"
)

// Usage summarizes the files currently in the cache directory.
type Usage struct {
	Files      int
	TotalBytes infounit.ByteCount
	Oldest     string // path of the least recently freshened file, empty if none
}

// Usage scans the cache directory. Subdirectories are not counted.
func (c *FileCache) Usage() (Usage, error) {
	var u Usage
	if !storage.CanRead(c.backend, c.dir) {
		return u, fmt.Errorf("%w: %s", common.ErrNotReadable, c.dir)
	}

	var oldest int64
	for _, e := range storage.ListFiles(c.backend, c.dir) {
		if e.Info.IsDir() {
			continue
		}
		u.Files++
		u.TotalBytes += infounit.ByteCount(e.Info.Size())
		if mt := e.Info.ModTime().UnixNano(); u.Oldest == "" || mt < oldest {
			oldest = mt
			u.Oldest = e.Path
		}
	}
	return u, nil
}

// OnClearContent purges every unreserved file when clearMaps is set. It lets a
// FileCache subscribe to an events.Registry.
func (c *FileCache) OnClearContent(clearMaps bool) error {
	if !clearMaps {
		return nil
	}
	result := c.Purge()
	if len(result.Errors) > 0 {
		return fmt.Errorf("purge %s: %d file(s) could not be deleted", c.dir, len(result.Errors))
	}
	return nil
}
