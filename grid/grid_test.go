package grid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/ShoshinNikita/rgrid/rgrid"
	"github.com/stretchr/testify/require"
)

func TestGrid_Refresh(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	loop := newTestLoop(t)
	loader := &fakeLoader{}
	resolver := newFakeResolver(loop)
	grid := NewGrid(loop, loader, resolver, true)

	// The list is empty at start, errors don't change it.
	loader.set(nil, &rgrid.ListFetchError{Endpoint: "https://x", Err: errors.New("timeout")})

	err := grid.Refresh(t.Context())
	var listErr *rgrid.ListFetchError
	r.True(errors.As(err, &listErr))

	items, err := grid.Items(t.Context())
	r.NoError(err)
	r.Empty(items)

	// Successful refresh prefetches all images.
	loader.set(newItems(5), nil)
	r.NoError(grid.Refresh(t.Context()))

	items, err = grid.Items(t.Context())
	r.NoError(err)
	r.Equal(newItems(5), items)

	r.Eventually(func() bool {
		for i := range 5 {
			ready, err := grid.Ready(t.Context(), i)
			if err != nil || !ready {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	r.Equal(5, resolver.callsCount())

	// Failed refresh keeps the current list and the images.
	loader.set(nil, &rgrid.ListFetchError{Endpoint: "https://x", Err: errors.New("bad status")})
	r.Error(grid.Refresh(t.Context()))

	items, err = grid.Items(t.Context())
	r.NoError(err)
	r.Len(items, 5)

	ready, err := grid.Ready(t.Context(), 4)
	r.NoError(err)
	r.True(ready)
}

func TestGrid_Image(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	loop := newTestLoop(t)
	loader := &fakeLoader{}
	loader.set(newItems(3), nil)
	resolver := newFakeResolver(loop)
	resolver.placeholders[2] = true

	grid := NewGrid(loop, loader, resolver, false)
	r.NoError(grid.Refresh(t.Context()))
	r.Zero(resolver.callsCount())

	ready, err := grid.Ready(t.Context(), 1)
	r.NoError(err)
	r.False(ready)

	img, err := grid.Image(t.Context(), 1)
	r.NoError(err)
	r.Equal(newItems(3)[1].CacheKey(), img.Key)
	r.Equal(1, resolver.callsCount())

	ready, err = grid.Ready(t.Context(), 1)
	r.NoError(err)
	r.True(ready)

	// The slot is already filled.
	img2, err := grid.Image(t.Context(), 1)
	r.NoError(err)
	r.Same(img, img2)
	r.Equal(1, resolver.callsCount())

	// Placeholders are delivered but not kept.
	img, err = grid.Image(t.Context(), 2)
	r.NoError(err)
	r.True(img.Placeholder)

	ready, err = grid.Ready(t.Context(), 2)
	r.NoError(err)
	r.False(ready)

	for _, index := range []int{-1, 3, 100} {
		_, err = grid.Image(t.Context(), index)
		r.ErrorIs(err, ErrItemNotFound)
	}
}

func TestGrid_StaleDelivery(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	loop := newTestLoop(t)
	loader := &fakeLoader{}
	loader.set(newItems(2), nil)
	resolver := newFakeResolver(loop)
	resolver.hold = make(chan struct{})

	grid := NewGrid(loop, loader, resolver, false)
	r.NoError(grid.Refresh(t.Context()))

	type result struct {
		img *rgrid.Image
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		img, err := grid.Image(context.Background(), 0)
		resultCh <- result{img, err}
	}()

	r.Eventually(func() bool {
		return resolver.callsCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Replace the list while the image is in progress.
	loader.set(newItems(4), nil)
	r.NoError(grid.Refresh(t.Context()))

	close(resolver.hold)

	res := <-resultCh
	r.NoError(res.err)
	r.NotNil(res.img)

	// The delivery was for the previous list.
	ready, err := grid.Ready(t.Context(), 0)
	r.NoError(err)
	r.False(ready)
}

func TestLoop(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	loop := NewLoop()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 10 {
		loop.Dispatch(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	r.NoError(loop.Do(t.Context(), func() {}))

	mu.Lock()
	r.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	mu.Unlock()

	r.NoError(loop.Shutdown(t.Context()))

	// Must not block after shutdown.
	for range 200 {
		loop.Dispatch(func() {})
	}
	r.ErrorIs(loop.Do(t.Context(), func() {}), ErrLoopStopped)

	r.NoError(loop.Shutdown(t.Context()))
}

func TestLoop_ConcurrentShutdown(t *testing.T) {
	t.Parallel()

	loop := NewLoop()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := loop.Shutdown(context.Background()); err != nil {
				t.Errorf("couldn't shutdown loop: %s", err)
			}
		}()
	}
	wg.Wait()
}

func TestGrid_CanceledWhileLoopIsBusy(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	loop := newTestLoop(t)
	loader := &fakeLoader{}
	loader.set(newItems(3), nil)

	g := NewGrid(loop, loader, newFakeResolver(loop), false)
	r.NoError(g.Refresh(t.Context()))

	// Block the loop, so the next calls are queued but not run.
	unblock := make(chan struct{})
	loop.Dispatch(func() { <-unblock })

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	items, err := g.Items(ctx)
	r.ErrorIs(err, context.DeadlineExceeded)
	r.Nil(items)

	ready, err := g.Ready(ctx, 0)
	r.ErrorIs(err, context.DeadlineExceeded)
	r.False(ready)

	// Queued functions run after the callers have returned.
	close(unblock)

	items, err = g.Items(t.Context())
	r.NoError(err)
	r.Len(items, 3)
}

func newTestLoop(t *testing.T) *Loop {
	loop := NewLoop()
	t.Cleanup(func() {
		if err := loop.Shutdown(context.Background()); err != nil {
			t.Errorf("couldn't shutdown loop: %s", err)
		}
	})
	return loop
}

func newItems(count int) []rgrid.GridItem {
	items := make([]rgrid.GridItem, 0, count)
	for i := range count {
		items = append(items, rgrid.GridItem{
			Index: i,
			URL:   "https://x/a.jpg",
			ID:    fmt.Sprintf("id-%d", i),
			Title: fmt.Sprintf("Title %d", i),
		})
	}
	return items
}

type fakeLoader struct {
	mu    sync.Mutex
	items []rgrid.GridItem
	err   error
}

func (l *fakeLoader) set(items []rgrid.GridItem, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = items
	l.err = err
}

func (l *fakeLoader) FetchItems(context.Context) ([]rgrid.GridItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.items, l.err
}

// fakeResolver delivers images through the loop like the real one.
type fakeResolver struct {
	loop *Loop

	// hold blocks deliveries until it is closed.
	hold         chan struct{}
	placeholders map[int]bool

	mu    sync.Mutex
	calls []rgrid.GridItem
}

func newFakeResolver(loop *Loop) *fakeResolver {
	return &fakeResolver{
		loop:         loop,
		placeholders: make(map[int]bool),
	}
}

func (r *fakeResolver) callsCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.calls)
}

func (r *fakeResolver) ResolveAsync(item rgrid.GridItem, done func(*rgrid.Image)) error {
	r.mu.Lock()
	r.calls = append(r.calls, item)
	r.mu.Unlock()

	img := &rgrid.Image{
		Key:         item.CacheKey(),
		Image:       image.NewRGBA(image.Rect(0, 0, 1, 1)),
		Placeholder: r.placeholders[item.Index],
	}
	go func() {
		if r.hold != nil {
			<-r.hold
		}
		r.loop.Dispatch(func() {
			done(img)
		})
	}()
	return nil
}
