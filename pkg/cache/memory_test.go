package cache

import (
	"image"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ShoshinNikita/rgrid/rgrid"
	"github.com/stretchr/testify/require"
)

func newTestImage(key rgrid.CacheKey, size int) *rgrid.Image {
	return &rgrid.Image{
		Key:   key,
		Image: image.NewRGBA(image.Rect(0, 0, size, size)),
	}
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	cache := NewMemoryCache(10, 0)

	_, ok := cache.Get("img_0_a.jpg")
	r.False(ok)

	img := newTestImage("img_0_a.jpg", 5)
	cache.Put("img_0_a.jpg", img)

	got, ok := cache.Get("img_0_a.jpg")
	r.True(ok)
	r.Same(img, got)

	_, ok = cache.Get("img_1_a.jpg")
	r.False(ok)

	// Nil images are ignored.
	cache.Put("img_2_a.jpg", nil)
	_, ok = cache.Get("img_2_a.jpg")
	r.False(ok)
	r.Equal(1, cache.Len())
}

func TestMemoryCache_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("size", func(t *testing.T) {
		r := require.New(t)

		cache := NewMemoryCache(2, 0)
		cache.Put("img_0_a.jpg", newTestImage("img_0_a.jpg", 1))
		cache.Put("img_1_a.jpg", newTestImage("img_1_a.jpg", 1))

		// Make the first entry recently used.
		_, ok := cache.Get("img_0_a.jpg")
		r.True(ok)

		cache.Put("img_2_a.jpg", newTestImage("img_2_a.jpg", 1))
		r.Equal(2, cache.Len())

		_, ok = cache.Get("img_1_a.jpg")
		r.False(ok)
		_, ok = cache.Get("img_0_a.jpg")
		r.True(ok)
		_, ok = cache.Get("img_2_a.jpg")
		r.True(ok)
	})

	t.Run("ttl", func(t *testing.T) {
		r := require.New(t)

		cache := NewMemoryCache(10, 50*time.Millisecond)
		cache.Put("img_0_a.jpg", newTestImage("img_0_a.jpg", 1))

		_, ok := cache.Get("img_0_a.jpg")
		r.True(ok)

		r.Eventually(func() bool {
			_, ok := cache.Get("img_0_a.jpg")
			return !ok
		}, time.Second, 10*time.Millisecond)
	})
}

func TestMemoryCache_Concurrent(t *testing.T) {
	t.Parallel()

	cache := NewMemoryCache(100, 0)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			key := rgrid.CacheKey("img_" + strconv.Itoa(i) + "_a.jpg")
			for range 100 {
				cache.Put(key, newTestImage(key, i+1))
				img, ok := cache.Get(key)
				if !ok || img.Key != key || img.Image.Bounds().Dx() != i+1 {
					t.Errorf("unexpected image for key %q", key)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, cache.Len())
}
