package cmd

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/ShoshinNikita/rgrid/content"
	"github.com/ShoshinNikita/rgrid/fetcher"
	"github.com/ShoshinNikita/rgrid/grid"
	"github.com/ShoshinNikita/rgrid/pkg/cache"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/resolver"
	"github.com/ShoshinNikita/rgrid/rgrid"
	"github.com/ShoshinNikita/rgrid/web"
)

type Rgrid struct {
	cfg rgrid.Config

	loop *grid.Loop

	memoryCache  *cache.MemoryCache
	diskCache    *cache.DiskCache
	cacheCleaner shutdowner

	resolver *resolver.Resolver
	grid     *grid.Grid

	server *web.Server
}

func NewRgrid(cfg rgrid.Config) *Rgrid {
	return &Rgrid{
		cfg: cfg,
	}
}

func (r *Rgrid) Prepare() (err error) {
	// UI Loop
	r.loop = grid.NewLoop()

	// Caches
	r.memoryCache = cache.NewMemoryCache(r.cfg.MemoryCacheSize, r.cfg.MemoryCacheTTL)

	// The cache dir is created on first use.
	r.diskCache, err = cache.NewDiskCache(r.cfg.Dir)
	if err != nil {
		return fmt.Errorf("couldn't prepare disk cache: %w", err)
	}

	if r.cfg.DiskCacheMaxAge > 0 || r.cfg.DiskCacheMaxSize > 0 {
		r.cacheCleaner = cache.NewCleaner(r.diskCache, r.cfg.DiskCacheMaxAge, r.cfg.DiskCacheMaxSize.Bytes())
	} else {
		rlog.Debug("disk cache cleaner is disabled, the cache grows unbounded")

		r.cacheCleaner = cache.NewNoopCleaner()
	}

	// Resolver
	r.resolver = resolver.NewResolver(
		r.memoryCache, r.diskCache, fetcher.NewFetcher(r.cfg.MaxImageSize.Bytes()),
		r.cfg.WorkersCount, r.loop.Dispatch,
	)

	// Grid
	contentClient := content.NewClient(fetcher.NewHTTPClient(), r.cfg.API.URL, r.cfg.API.Limit)
	r.grid = grid.NewGrid(r.loop, contentClient, r.resolver, r.cfg.Prefetch)

	// Web Server
	r.server = web.NewServer(r.cfg, r.grid)

	return nil
}

func (r *Rgrid) Start(onError func()) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for name, s := range map[string]interface{ Start() error }{
			"item list":  startFunc(r.loadItems),
			"web server": r.server,
		} {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := s.Start(); err != nil {
					rlog.Errorf("%s error: %s", name, err)
					onError()
				}
			}()
		}
		wg.Wait()

		close(done)
	}()

	return done
}

type startFunc func() error

func (fn startFunc) Start() error {
	return fn()
}

// loadItems loads the initial item list. A failed load is not fatal: the list stays
// empty until the next refresh.
func (r *Rgrid) loadItems() error {
	if err := r.grid.Refresh(context.Background()); err != nil {
		rlog.Warn("item list is empty, it can be refreshed later")
	}
	return nil
}

// Shutdown shutdowns all components. It is safe to call this method even if Prepare has failed.
func (r *Rgrid) Shutdown(ctx context.Context) error {
	var failed int
	for _, v := range []struct {
		name string
		s    shutdowner
	}{
		{"web server", r.server},
		{"resolver", r.resolver},
		{"ui loop", r.loop},
		{"disk cache cleaner", r.cacheCleaner},
	} {
		err := safeShutdown(ctx, v.s)
		if err != nil {
			failed++
			rlog.Errorf("couldn't gracefully shutdown %s: %s", v.name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("couldn't gracefully shutdown %d component(s), see logs for more info", failed)
	}
	return nil
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// safeShutdown calls Shutdown method only on initialized components.
func safeShutdown(ctx context.Context, s shutdowner) error {
	v := reflect.ValueOf(s)
	if !v.IsValid() || v.IsNil() {
		return nil
	}
	return s.Shutdown(ctx)
}
