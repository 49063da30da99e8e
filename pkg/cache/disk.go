package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

// tempFilePrefix starts names of files of in-progress writes. Keys can't start with it.
const tempFilePrefix = "."

// DiskCache stores every entry in a separate file named exactly as its key.
// The directory is created on first use.
type DiskCache struct {
	absDir string
}

var _ rgrid.DiskCache = (*DiskCache)(nil)

func NewDiskCache(dir string) (*DiskCache, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("couldn't get absolute path: %w", err)
	}
	return &DiskCache{
		absDir: absDir,
	}, nil
}

// Dir returns the absolute path of the cache directory.
func (c *DiskCache) Dir() string {
	return c.absDir
}

// Get returns the content of the cache file. If the file doesn't exist, it returns [rgrid.ErrCacheMiss].
func (c *DiskCache) Get(key rgrid.CacheKey) ([]byte, error) {
	path, err := c.getFilepath(key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(metrics.TierDisk, "get").Inc()
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.CacheMisses.WithLabelValues(metrics.TierDisk).Inc()
			return nil, rgrid.ErrCacheMiss
		}

		metrics.CacheErrors.WithLabelValues(metrics.TierDisk, "get").Inc()
		return nil, fmt.Errorf("couldn't read cache file: %w", err)
	}
	if len(data) == 0 {
		metrics.CacheErrors.WithLabelValues(metrics.TierDisk, "get").Inc()
		return nil, fmt.Errorf("cache file %q is empty", path)
	}

	metrics.CacheHits.WithLabelValues(metrics.TierDisk).Inc()
	return data, nil
}

// Put writes data to the cache file. The content is written to a temporary file first
// and then renamed, so concurrent writers of the same key never leave a partially
// written file: the last writer wins.
func (c *DiskCache) Put(key rgrid.CacheKey, data []byte) (err error) {
	defer func() {
		if err != nil {
			metrics.CacheErrors.WithLabelValues(metrics.TierDisk, "put").Inc()
		}
	}()

	path, err := c.getFilepath(key)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(c.absDir, tempFilePrefix+key.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("couldn't create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		if err != nil {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("couldn't write temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("couldn't close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("couldn't rename temp file: %w", err)
	}
	return nil
}

// getFilepath returns the path of the cache file of the passed key. It creates the cache
// directory if it doesn't exist yet.
func (c *DiskCache) getFilepath(key rgrid.CacheKey) (string, error) {
	name := key.String()
	if name == "" || strings.HasPrefix(name, tempFilePrefix) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid cache key %q", name)
	}

	if err := os.MkdirAll(c.absDir, 0o700); err != nil {
		return "", fmt.Errorf("couldn't create dir %q: %w", c.absDir, err)
	}
	return filepath.Join(c.absDir, name), nil
}

type diskEntry struct {
	key     rgrid.CacheKey
	modTime time.Time
	size    int64
}

// entries lists the cached entries. Files of in-progress writes are skipped.
// It returns an error wrapping [fs.ErrNotExist] if the directory hasn't been created yet.
func (c *DiskCache) entries() ([]diskEntry, error) {
	dirEntries, err := os.ReadDir(c.absDir)
	if err != nil {
		return nil, fmt.Errorf("couldn't read dir %q: %w", c.absDir, err)
	}

	res := make([]diskEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempFilePrefix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Removed after ReadDir.
				continue
			}
			return nil, fmt.Errorf("couldn't get info of %q: %w", e.Name(), err)
		}
		res = append(res, diskEntry{
			key:     rgrid.CacheKey(e.Name()),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}
	return res, nil
}

// remove deletes the cache file of the key. A missing file is not an error.
func (c *DiskCache) remove(key rgrid.CacheKey) error {
	err := os.Remove(filepath.Join(c.absDir, key.String()))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
