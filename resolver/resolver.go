// Package resolver resolves grid images through the memory cache, the disk cache and the network.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ShoshinNikita/rgrid/imaging"
	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

var ErrStopped = errors.New("can't send tasks after Shutdown call")

const (
	sourceMemory      = "memory"
	sourceDisk        = "disk"
	sourceNetwork     = "network"
	sourcePlaceholder = "placeholder"
)

// Dispatcher runs fn on the execution context required by the consumer of resolved images.
type Dispatcher func(fn func())

// Resolver returns images checking the memory cache first, then the disk cache, and then
// the network. Every miss that falls through to a slower tier populates the faster ones.
// Fetched images are center-cropped before they are cached and returned.
type Resolver struct {
	memory   rgrid.MemoryCache
	disk     rgrid.DiskCache
	fetcher  rgrid.Fetcher
	dispatch Dispatcher

	// fetches is used to have at most one in-flight fetch per key.
	fetches singleflight.Group

	workersCount int

	tasksCh   chan resolveTask
	tasksChMu sync.RWMutex

	stopped       *atomic.Bool
	workersDoneCh chan struct{}
}

type resolveTask struct {
	item rgrid.GridItem
	done func(*rgrid.Image)
}

// NewResolver prepares a new resolver and starts its workers. If dispatch is nil,
// results of [Resolver.ResolveAsync] are delivered on worker goroutines.
func NewResolver(
	memory rgrid.MemoryCache, disk rgrid.DiskCache, fetcher rgrid.Fetcher,
	workersCount int, dispatch Dispatcher,
) *Resolver {

	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}

	r := &Resolver{
		memory:   memory,
		disk:     disk,
		fetcher:  fetcher,
		dispatch: dispatch,
		//
		workersCount: max(workersCount, 1),
		//
		tasksCh: make(chan resolveTask, 10_000),
		//
		stopped:       new(atomic.Bool),
		workersDoneCh: make(chan struct{}),
	}

	go r.startWorkers()

	return r
}

func (r *Resolver) startWorkers() {
	var wg sync.WaitGroup
	for range r.workersCount {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for task := range r.tasksCh {
				metrics.ResolveQueueLength.Dec()

				img := r.Resolve(context.Background(), task.item)
				if task.done != nil {
					r.dispatch(func() {
						task.done(img)
					})
				}
			}
		}()
	}
	wg.Wait()

	close(r.workersDoneCh)
}

// ResolveAsync sends a task to the queue. done is called with the resolved image through
// the dispatcher. A started resolution can't be cancelled: it always completes and populates the caches.
func (r *Resolver) ResolveAsync(item rgrid.GridItem, done func(*rgrid.Image)) error {
	r.tasksChMu.RLock()
	defer r.tasksChMu.RUnlock()

	if r.stopped.Load() {
		return ErrStopped
	}

	metrics.ResolveQueueLength.Inc()
	r.tasksCh <- resolveTask{
		item: item,
		done: done,
	}
	return nil
}

// Resolve returns the image for the item. It never fails: if the image can't be fetched
// or decoded, the placeholder is returned and no cache is populated.
func (r *Resolver) Resolve(ctx context.Context, item rgrid.GridItem) *rgrid.Image {
	key := item.CacheKey()

	now := time.Now()
	img, source := r.resolve(ctx, item.URL, key)
	dur := time.Since(now)

	metrics.ResolveDuration.WithLabelValues(source).Observe(dur.Seconds())
	rlog.Debugf("image %q was resolved from %s in %s", key, source, dur)

	return img
}

func (r *Resolver) resolve(ctx context.Context, url string, key rgrid.CacheKey) (*rgrid.Image, string) {
	if img, ok := r.memory.Get(key); ok {
		return img, sourceMemory
	}

	if img, ok := r.loadFromDisk(key); ok {
		r.memory.Put(key, img)
		return img, sourceDisk
	}

	type result struct {
		img    *rgrid.Image
		source string
	}

	v, _, shared := r.fetches.Do(key.String(), func() (any, error) {
		// The previous call could have already populated the cache.
		if img, ok := r.memory.Get(key); ok {
			return result{img, sourceMemory}, nil
		}

		// The fetch can be shared by other callers, so it must not depend on the context of this one.
		img, err := r.fetchAndStore(context.WithoutCancel(ctx), url, key)
		if err != nil {
			if rgrid.IsNotFoundError(err) {
				rlog.Warnf("image %q not found on %q", key, url)
			} else {
				rlog.Errorf("couldn't fetch image %q from %q: %s", key, url, err)
			}

			placeholder := imaging.Placeholder()
			placeholder.Key = key
			return result{placeholder, sourcePlaceholder}, nil
		}
		return result{img, sourceNetwork}, nil
	})
	if shared {
		metrics.ResolveSharedFetches.Inc()
	}

	res := v.(result)
	return res.img, res.source
}

// loadFromDisk returns false for any error: read and decode errors are treated as cache misses.
func (r *Resolver) loadFromDisk(key rgrid.CacheKey) (*rgrid.Image, bool) {
	data, err := r.disk.Get(key)
	if err != nil {
		if !errors.Is(err, rgrid.ErrCacheMiss) {
			rlog.Warnf("couldn't read image %q from disk cache: %s", key, err)
		}
		return nil, false
	}

	img, err := imaging.Decode(data)
	if err != nil {
		rlog.Warnf("couldn't decode image %q from disk cache: %s", key, err)
		return nil, false
	}

	return &rgrid.Image{
		Key:   key,
		Image: img,
		Data:  data,
	}, true
}

// fetchAndStore downloads and crops the image. Cache writes are best-effort.
func (r *Resolver) fetchAndStore(ctx context.Context, url string, key rgrid.CacheKey) (*rgrid.Image, error) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	original, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't decode fetched image: %w", err)
	}

	img := &rgrid.Image{
		Key:   key,
		Image: imaging.Compact(imaging.CenterCrop(original)),
	}

	img.Data, err = imaging.EncodeJPEG(img.Image)
	if err != nil {
		rlog.Errorf("couldn't encode image %q, it won't be saved on disk: %s", key, err)
	} else if err := r.disk.Put(key, img.Data); err != nil {
		rlog.Errorf("couldn't save image %q on disk: %s", key, err)
	}

	r.memory.Put(key, img)

	return img, nil
}

// Shutdown drops all tasks in the queue and waits for ones that are in progress
// with respect of the passed context.
func (r *Resolver) Shutdown(ctx context.Context) error {
	r.tasksChMu.Lock()
	if !r.stopped.Swap(true) {
		close(r.tasksCh)
	}
	r.tasksChMu.Unlock()

	for range r.tasksCh {
		metrics.ResolveQueueLength.Dec()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.workersDoneCh:
		return nil
	}
}
