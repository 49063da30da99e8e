package rgrid

import (
	"errors"
	"image"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrCacheMiss = errors.New("cache miss")
)

// CacheKey identifies one cached image. It is also the name of the cache file on disk.
type CacheKey string

// NewCacheKey returns a key of pattern 'img_<index>_<last path segment>'.
//
// The upstream API reuses the same filename for many unrelated thumbnails, so the
// filename alone is not enough: the positional index disambiguates them. The same
// locator and index always give the same key. index must be >= 0.
func NewCacheKey(locator string, index int) CacheKey {
	return CacheKey("img_" + strconv.Itoa(index) + "_" + lastPathSegment(locator))
}

func lastPathSegment(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil {
		p = u.Path
	}

	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func (k CacheKey) String() string {
	return string(k)
}

// Image is a resolved image: the decoded bitmap and its encoded form.
type Image struct {
	Key   CacheKey
	Image image.Image
	// Data is the encoded image (JPEG). It can be empty if encoding has failed.
	Data []byte
	// Placeholder is true for the fallback image returned instead of a failed resolution.
	Placeholder bool
}

// MemoryCache is a process-local cache of decoded images. Entries can be evicted at any time.
type MemoryCache interface {
	Get(key CacheKey) (*Image, bool)
	Put(key CacheKey, img *Image)
}

// DiskCache is a durable cache of encoded images. Get must return [ErrCacheMiss] if
// the key is not cached.
type DiskCache interface {
	Get(key CacheKey) ([]byte, error)
	Put(key CacheKey, data []byte) error
}
