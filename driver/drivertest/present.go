// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gviegas/gfxsync/driver"
	"github.com/gviegas/gfxsync/internal/bitvec"
)

// Limits on the number of swapchain images.
const (
	minImages = 2
	maxImages = 8
)

// Surface is a driver.Surface for the fake GPU.
// Its extent dictates the size of swapchains created
// from it; changing the extent makes such swapchains
// out of date.
type Surface struct {
	g    *GPU
	size driver.Dim2D
}

// NewSurface creates a new surface with the given extent.
func (g *GPU) NewSurface(size driver.Dim2D) *Surface {
	return &Surface{g: g, size: size}
}

// SetSize changes the surface's extent, as a window
// resize would.
func (s *Surface) SetSize(size driver.Dim2D) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.size = size
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	g         *GPU
	id        int
	sf        *Surface
	imgs      []driver.Image
	size      driver.Dim2D
	mode      driver.PresentMode
	held      *bitvec.V[uint32]
	avail     *semaphore.Weighted
	next      int
	retired   bool
	destroyed bool
}

// NewSwapchain creates a new swapchain.
func (g *GPU) NewSwapchain(sf driver.Surface, conf *driver.SwapchainConf, old driver.Swapchain) (driver.Swapchain, error) {
	s, ok := sf.(*Surface)
	if !ok || s.g != g {
		return nil, errForeign
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return nil, driver.ErrFatal
	}
	if err := g.fault(FaultSwapchain); err != nil {
		return nil, err
	}
	if old != nil {
		o := old.(*swapchain)
		if o.sf != s {
			g.violate("swapchain %d is not associated with the surface", o.id)
		}
		o.retired = true
	}
	size := s.size
	if size.Width <= 0 || size.Height <= 0 {
		size = conf.Size
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.New("drivertest: invalid swapchain extent")
	}
	n := conf.ImageCount
	if n <= 0 {
		n = g.conf.imageCount
	}
	n = max(minImages, min(n, maxImages))
	mode := driver.PFIFO
	for _, m := range g.conf.modes {
		if m == conf.Mode {
			mode = m
			break
		}
	}
	sc := &swapchain{
		g:     g,
		id:    g.newID(),
		sf:    s,
		imgs:  make([]driver.Image, n),
		size:  size,
		mode:  mode,
		held:  bitvec.New[uint32](n),
		avail: semaphore.NewWeighted(int64(n)),
	}
	for i := range sc.imgs {
		sc.imgs[i] = &image{
			g:     g,
			id:    g.newID(),
			pf:    driver.BGRA8un,
			size:  size,
			usg:   driver.URenderTarget | driver.UCopyDst,
			owner: sc,
		}
	}
	g.record(OpSwapchain, sc.id, n)
	return sc, nil
}

// usable checks whether sc can be acquired from.
// g.mu must be held.
func (sc *swapchain) usable() error {
	switch {
	case sc.g.lost:
		return driver.ErrFatal
	case sc.destroyed, sc.retired, sc.size != sc.sf.size:
		return driver.ErrSwapchain
	}
	return nil
}

// Next acquires the next available image.
// It blocks while every image is held, up to timeout.
func (sc *swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	g := sc.g
	g.mu.Lock()
	err := sc.usable()
	g.mu.Unlock()
	if err != nil {
		return -1, err
	}
	ctx := context.Background()
	if timeout != driver.Infinite {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sc.avail.Acquire(ctx, 1); err != nil {
		return -1, driver.ErrTimeout
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := sc.usable(); err != nil {
		sc.avail.Release(1)
		return -1, err
	}
	idx, _ := sc.held.SearchFrom(sc.next)
	sc.held.Set(idx)
	sc.next = (idx + 1) % len(sc.imgs)
	g.signal(sem.(*sema))
	g.record(OpAcquire, sc.id, idx)
	g.cond.Broadcast()
	return idx, nil
}

// release returns the image at index to the presentation
// engine.
// g.mu must be held.
func (g *GPU) release(sc *swapchain, index int) {
	if img := sc.imgs[index].(*image); img.layout != driver.LPresent {
		g.violate("swapchain %d image %d presented while in %s", sc.id, index, img.layout)
	}
	if sc.held.IsSet(index) {
		sc.held.Unset(index)
		sc.avail.Release(1)
	}
	g.record(OpPresent, sc.id, index)
}

// Present enqueues the presentation of swapchain images.
// The images are released when the presentation executes.
// It returns driver.ErrSwapchain if any swapchain is out
// of date, in which case the presentation is still
// enqueued, so its semaphores are consumed.
func (g *GPU) Present(wait []driver.Semaphore, sc []driver.Swapchain, index []int) error {
	if len(sc) != len(index) {
		return errors.New("drivertest: mismatched swapchain and index counts")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return driver.ErrFatal
	}
	var err error
	scs := make([]*swapchain, len(sc))
	for i, x := range sc {
		s := x.(*swapchain)
		if index[i] < 0 || index[i] >= len(s.imgs) || !s.held.IsSet(index[i]) {
			g.violate("swapchain %d image %d presented without being acquired", s.id, index[i])
			return errors.New("drivertest: invalid image index")
		}
		if s.usable() != nil {
			err = driver.ErrSwapchain
		}
		scs[i] = s
	}
	g.ops++
	op := &queueOp{kind: opPresent, id: g.ops, sc: scs, index: append([]int(nil), index...)}
	for _, x := range wait {
		w := x.(*sema)
		if w.awaited {
			g.violate("semaphore %d has more than one pending wait", w.id)
		}
		w.awaited = true
		op.wait = append(op.wait, w)
	}
	for i, s := range scs {
		g.record(OpPresentQueue, s.id, index[i])
	}
	g.enqueue(op)
	return err
}

// Images returns the swapchain images.
func (sc *swapchain) Images() []driver.Image { return sc.imgs }

// Format returns the images' format.
func (sc *swapchain) Format() driver.PixelFmt { return driver.BGRA8un }

// Size returns the images' size.
func (sc *swapchain) Size() driver.Dim2D { return sc.size }

// Mode returns the presentation mode.
func (sc *swapchain) Mode() driver.PresentMode { return sc.mode }

// Destroy destroys the swapchain and its images.
func (sc *swapchain) Destroy() {
	if sc == nil {
		return
	}
	g := sc.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if sc.destroyed {
		return
	}
	for _, x := range sc.imgs {
		img := x.(*image)
		if img.views > 0 {
			g.violate("swapchain %d destroyed with %d live views of image %d", sc.id, img.views, img.id)
		}
		img.destroyed = true
		g.live--
	}
	sc.destroyed = true
	g.live--
}

// Held returns how many images of sc are currently
// acquired and not yet released by a presentation.
func (g *GPU) Held(sc driver.Swapchain) (n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := sc.(*swapchain)
	for i := range s.imgs {
		if s.held.IsSet(i) {
			n++
		}
	}
	return
}
