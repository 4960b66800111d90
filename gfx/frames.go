// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// frame holds the objects used by one frame in flight.
type frame struct {
	ctx     *Context
	fence   *Fence
	acquire *Semaphore
}

// Frames renders to a Swapchain with a fixed number of
// frames in flight.
// Each frame slot has its own Context, Fence and acquire
// Semaphore. Render-done semaphores are kept per
// swapchain image instead, since an image is only
// acquired again after its previous presentation has
// consumed the semaphore.
type Frames struct {
	dev     *Device
	sc      *Swapchain
	frames  []frame
	render  []*Semaphore
	layouts []driver.Layout
	cur     int
	count   uint64
}

// NewFrames creates n frame slots for sc.
// n is clamped to [1, sc.Len()].
func NewFrames(dev *Device, sc *Swapchain, n int) (*Frames, error) {
	n = max(1, min(n, sc.Len()))
	f := &Frames{dev: dev, sc: sc, frames: make([]frame, n)}
	var err error
	for i := range f.frames {
		fr := &f.frames[i]
		if fr.ctx, err = NewContext(dev); err != nil {
			goto fail
		}
		if fr.fence, err = NewFence(dev); err != nil {
			goto fail
		}
		if fr.acquire, err = NewSemaphore(dev); err != nil {
			goto fail
		}
	}
	if err = f.reset(); err != nil {
		goto fail
	}
	return f, nil

fail:
	f.Destroy()
	return nil, err
}

// reset recreates the per-image state to match the
// swapchain. The device must be idle.
// On failure, no per-image state is left and Draw
// reports an out of date swapchain.
func (f *Frames) reset() error {
	for _, s := range f.render {
		s.Destroy()
	}
	f.render = nil
	f.layouts = nil
	render := make([]*Semaphore, f.sc.Len())
	for i := range render {
		var err error
		if render[i], err = NewSemaphore(f.dev); err != nil {
			for _, s := range render[:i] {
				s.Destroy()
			}
			return err
		}
	}
	f.render = render
	f.layouts = make([]driver.Layout, len(render))
	return nil
}

// Draw renders one frame.
// It acquires the next image, transitions it to
// driver.LColorTarget, calls body with the frame's
// Context and the image index, transitions the image to
// driver.LPresent, submits and presents.
// body must not call Begin, End or Record on the Context.
// If body fails or panics, nothing it recorded is
// submitted, but the image is still transitioned to
// driver.LPresent and presented, so that it returns to
// the presentation engine.
// If the swapchain is out of date, the error satisfies
// IsOutOfDate and the caller should call Resize.
func (f *Frames) Draw(body func(ctx *Context, index int) error) (err error) {
	if f.sc.sc == nil || len(f.render) != f.sc.Len() {
		return errNoSwapchain
	}
	fr := &f.frames[f.cur]
	// The previous submission from this slot must be done
	// with the acquire semaphore before it is signaled again.
	if err := fr.fence.Wait(); err != nil {
		return err
	}
	idx, err := f.sc.AcquireNextImage(fr.acquire)
	if err != nil {
		return err
	}
	recorded := false
	defer func() {
		if recorded {
			return
		}
		if e := f.discard(fr, idx); e != nil {
			Logger().Warn("gfx: acquired image not returned", "index", idx, "err", e)
		}
	}()
	img := f.sc.images[idx]
	err = fr.ctx.Record(fr.fence, func(ctx *Context) error {
		f.dev.PipelineBarrier(ctx, driver.SColorOutput, driver.SColorOutput,
			BuildImageBarrier(img, AccessColorTarget, f.layouts[idx], driver.LColorTarget))
		if err := body(ctx, idx); err != nil {
			return err
		}
		f.dev.PipelineBarrier(ctx, driver.SColorOutput, driver.SNone,
			BuildImageBarrier(img, driver.ANone, driver.LColorTarget, driver.LPresent))
		return nil
	})
	if err != nil {
		return errors.WithMessagef(err, "gfx: frame %d", f.count)
	}
	// A failed submission is fatal, so from here on the
	// image is not returned.
	recorded = true
	render := f.render[idx]
	if err := f.dev.Submit(fr.ctx, []*Semaphore{fr.acquire}, []*Semaphore{render}, fr.fence, []driver.Sync{driver.SColorOutput}); err != nil {
		return err
	}
	f.layouts[idx] = driver.LPresent
	f.cur = (f.cur + 1) % len(f.frames)
	f.count++
	return f.sc.Present([]*Semaphore{render}, idx)
}

// discard presents the image at index without drawing
// to it. The submission that transitions the image waits
// on the acquire semaphore of fr and signals the
// image's render semaphore, so both are consumed.
func (f *Frames) discard(fr *frame, index int) error {
	img := f.sc.images[index]
	err := fr.ctx.Record(fr.fence, func(ctx *Context) error {
		f.dev.PipelineBarrier(ctx, driver.SColorOutput, driver.SNone,
			BuildImageBarrier(img, driver.ANone, f.layouts[index], driver.LPresent))
		return nil
	})
	if err != nil {
		return err
	}
	render := f.render[index]
	if err := f.dev.Submit(fr.ctx, []*Semaphore{fr.acquire}, []*Semaphore{render}, fr.fence, []driver.Sync{driver.SColorOutput}); err != nil {
		return err
	}
	f.layouts[index] = driver.LPresent
	return f.sc.Present([]*Semaphore{render}, index)
}

// Resize resizes the swapchain to size and resets the
// per-image state.
func (f *Frames) Resize(size driver.Dim2D) error {
	fr := &f.frames[f.cur]
	if err := f.sc.Resize(size, fr.ctx, fr.fence); err != nil {
		return err
	}
	return f.reset()
}

// Swapchain returns the swapchain rendered to.
func (f *Frames) Swapchain() *Swapchain { return f.sc }

// InFlight returns the number of frame slots.
func (f *Frames) InFlight() int { return len(f.frames) }

// Count returns the number of frames whose body
// completed and was submitted.
func (f *Frames) Count() uint64 { return f.count }

// Layout returns the layout that the image at index is
// tracked to be in.
func (f *Frames) Layout(index int) driver.Layout { return f.layouts[index] }

// Destroy waits for the device to become idle and
// destroys the frame slots. The swapchain is not
// destroyed.
func (f *Frames) Destroy() {
	if f == nil || f.frames == nil {
		return
	}
	if err := f.dev.WaitIdle(); err != nil {
		Logger().Warn("gfx: frames destroyed while not idle", "err", err)
	}
	for i := range f.frames {
		f.frames[i].ctx.Destroy()
		f.frames[i].fence.Destroy()
		f.frames[i].acquire.Destroy()
	}
	for _, s := range f.render {
		s.Destroy()
	}
	f.frames = nil
	f.render = nil
}
