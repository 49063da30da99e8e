// Package grid keeps the state of the image grid: the current item list and the images
// delivered to its slots.
package grid

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/rgrid"
)

var ErrItemNotFound = errors.New("item not found")

type ItemsLoader interface {
	FetchItems(ctx context.Context) ([]rgrid.GridItem, error)
}

type Resolver interface {
	// ResolveAsync must deliver the result with [Loop.Dispatch] of the grid loop.
	ResolveAsync(item rgrid.GridItem, done func(*rgrid.Image)) error
}

type Grid struct {
	loop     *Loop
	loader   ItemsLoader
	resolver Resolver
	prefetch bool

	// Fields below must be accessed only on the loop.

	items []rgrid.GridItem
	// generation is incremented on every list change. Deliveries for previous
	// generations are discarded.
	generation int
	slots      map[int]*rgrid.Image
}

func NewGrid(loop *Loop, loader ItemsLoader, resolver Resolver, prefetch bool) *Grid {
	return &Grid{
		loop:     loop,
		loader:   loader,
		resolver: resolver,
		prefetch: prefetch,
		//
		slots: make(map[int]*rgrid.Image),
	}
}

// Refresh loads a new item list and replaces the current one. If the list can't be loaded,
// the current list is kept.
func (g *Grid) Refresh(ctx context.Context) error {
	items, err := g.loader.FetchItems(ctx)
	if err != nil {
		rlog.Errorf("couldn't refresh items, keep the current list: %s", err)
		return err
	}

	generation, err := call(ctx, g.loop, func() int {
		g.items = items
		g.generation++
		clear(g.slots)
		return g.generation
	})
	if err != nil {
		return err
	}

	rlog.Infof("item list was refreshed, got %d items", len(items))

	if g.prefetch {
		for _, item := range items {
			if err := g.resolveSlot(item, generation, nil); err != nil {
				rlog.Warnf("couldn't prefetch image %q: %s", item.CacheKey(), err)
				break
			}
		}
	}
	return nil
}

// Items returns a copy of the current item list.
func (g *Grid) Items(ctx context.Context) ([]rgrid.GridItem, error) {
	return call(ctx, g.loop, func() []rgrid.GridItem {
		return slices.Clone(g.items)
	})
}

// Ready reports whether the image for the slot has been delivered.
func (g *Grid) Ready(ctx context.Context, index int) (bool, error) {
	return call(ctx, g.loop, func() bool {
		_, ok := g.slots[index]
		return ok
	})
}

type slotState struct {
	item       rgrid.GridItem
	found      bool
	img        *rgrid.Image
	generation int
}

// Image returns the image of the slot. If the image has not been delivered yet, it requests
// the resolution and waits for it.
func (g *Grid) Image(ctx context.Context, index int) (*rgrid.Image, error) {
	slot, err := call(ctx, g.loop, func() (slot slotState) {
		if index < 0 || index >= len(g.items) {
			return slot
		}
		return slotState{
			item:       g.items[index],
			found:      true,
			img:        g.slots[index],
			generation: g.generation,
		}
	})
	switch {
	case err != nil:
		return nil, err
	case !slot.found:
		return nil, fmt.Errorf("%w: %d", ErrItemNotFound, index)
	case slot.img != nil:
		return slot.img, nil
	}

	// resultCh is buffered, so the delivery never blocks the loop.
	resultCh := make(chan *rgrid.Image, 1)
	err = g.resolveSlot(slot.item, slot.generation, func(img *rgrid.Image) {
		resultCh <- img
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't resolve image: %w", err)
	}

	select {
	case img := <-resultCh:
		return img, nil
	case <-g.loop.loopDone:
		return nil, ErrLoopStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveSlot requests the image for the slot of the passed list generation. The delivery
// runs on the loop, onDelivery is called even if the delivery is stale.
func (g *Grid) resolveSlot(item rgrid.GridItem, generation int, onDelivery func(*rgrid.Image)) error {
	return g.resolver.ResolveAsync(item, func(img *rgrid.Image) {
		if onDelivery != nil {
			defer onDelivery(img)
		}

		if generation != g.generation {
			rlog.Debugf("discard stale image %q", img.Key)
			return
		}
		if img.Placeholder {
			// Keep the slot empty, so the next request retries the resolution.
			return
		}
		g.slots[item.Index] = img
	})
}
