package cache

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"sync"
	"time"

	"github.com/ShoshinNikita/rgrid/pkg/metrics"
	"github.com/ShoshinNikita/rgrid/pkg/misc"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
)

type NoopCleaner struct{}

func NewNoopCleaner() *NoopCleaner {
	return &NoopCleaner{}
}

func (NoopCleaner) Shutdown(context.Context) error {
	return nil
}

// Cleaner bounds the disk cache: it periodically evicts entries older than maxAge and
// the oldest entries while the total size is over maxSize. A zero limit disables
// the corresponding check.
type Cleaner struct {
	disk     *DiskCache
	interval time.Duration
	maxAge   time.Duration
	maxSize  int64 // in bytes

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewCleaner(disk *DiskCache, maxAge time.Duration, maxSize int64) *Cleaner {
	c := &Cleaner{
		disk:     disk,
		interval: 5 * time.Minute,
		maxAge:   maxAge,
		maxSize:  maxSize,
		//
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go c.run()

	return c
}

func (c *Cleaner) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.clean(time.Now())

		select {
		case <-ticker.C:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cleaner) clean(now time.Time) {
	entries, err := c.disk.entries()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rlog.Debugf("disk cache dir %q doesn't exist yet", c.disk.Dir())
			return
		}
		rlog.Errorf("couldn't list disk cache entries: %s", err)
		return
	}

	evictions := selectEvictions(entries, now, c.maxAge, c.maxSize)
	if len(evictions) == 0 {
		return
	}

	var (
		evicted int
		freed   int64
	)
	for _, e := range evictions {
		if err := c.disk.remove(e.key); err != nil {
			rlog.Errorf("couldn't evict %q from disk cache: %s", e.key, err)
			continue
		}
		evicted++
		freed += e.size
	}

	metrics.CacheEvictions.WithLabelValues(metrics.TierDisk).Add(float64(evicted))
	rlog.Infof(
		"%d of %d disk cache entries were evicted, %s freed",
		evicted, len(entries), misc.FormatFileSize(freed),
	)
}

// selectEvictions returns the entries to evict, oldest first. Expired entries are always
// the oldest ones, so they form a prefix, and the prefix is extended until the rest fits maxSize.
func selectEvictions(entries []diskEntry, now time.Time, maxAge time.Duration, maxSize int64) []diskEntry {
	entries = slices.Clone(entries)
	slices.SortStableFunc(entries, func(a, b diskEntry) int {
		return a.modTime.Compare(b.modTime)
	})

	var total int64
	for _, e := range entries {
		total += e.size
	}

	var n int
	for ; n < len(entries); n++ {
		expired := maxAge > 0 && entries[n].modTime.Before(now.Add(-maxAge))
		oversized := maxSize > 0 && total >= maxSize
		if !expired && !oversized {
			break
		}
		total -= entries[n].size
	}
	return entries[:n]
}

func (c *Cleaner) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.doneCh:
		return nil
	}
}
