// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// Swapchain owns the presentable images of a surface,
// their views, the depth image and, when a render pass
// is given, one framebuffer per image.
// Each presentable image cycles through its own layouts
// (undefined, color target, present); the depth image is
// transitioned once when created and is left to render
// pass load/store operations afterwards.
type Swapchain struct {
	dev    *Device
	sf     driver.Surface
	opts   swapchainOptions
	sc     driver.Swapchain
	images []*Image
	depth  *Image
	fbs    []driver.Framebuf
}

// NewSwapchain creates a new swapchain for sf.
// size is used only if the surface does not dictate its
// own extent.
// ctx and fence are used to transition the depth image;
// the transition is submitted before NewSwapchain returns.
func NewSwapchain(dev *Device, sf driver.Surface, size driver.Dim2D, ctx *Context, fence *Fence, opts ...SwapchainOption) (*Swapchain, error) {
	s := &Swapchain{dev: dev, sf: sf, opts: defaultSwapchainOptions()}
	for _, o := range opts {
		o(&s.opts)
	}
	if err := s.create(size, nil); err != nil {
		return nil, err
	}
	if err := s.transitionDepth(ctx, fence); err != nil {
		s.Destroy()
		return nil, err
	}
	Logger().Info("gfx: swapchain created", "images", len(s.images), "extent", s.Extent(), "mode", s.sc.Mode())
	return s, nil
}

// mode returns the presentation mode to request.
func (s *Swapchain) mode() driver.PresentMode {
	if s.opts.vsync {
		return driver.PFIFO
	}
	return driver.PMailbox
}

// create creates the native swapchain and everything
// derived from its images.
// Nothing is left behind if it fails.
func (s *Swapchain) create(size driver.Dim2D, old driver.Swapchain) (err error) {
	conf := driver.SwapchainConf{
		Size:       size,
		ImageCount: s.opts.imageCount,
		Mode:       s.mode(),
	}
	if s.sc, err = s.dev.gpu.NewSwapchain(s.sf, &conf, old); err != nil {
		s.sc = nil
		return errors.Wrap(err, "gfx: new swapchain")
	}
	imgs := s.sc.Images()
	s.images = make([]*Image, 0, len(imgs))
	for _, x := range imgs {
		var img *Image
		if img, err = wrapImage(x); err != nil {
			goto fail
		}
		s.images = append(s.images, img)
	}
	if s.opts.depth != driver.FInvalid {
		if s.depth, err = newImage(s.dev, Depth, s.opts.depth, s.sc.Size()); err != nil {
			goto fail
		}
	}
	if s.opts.pass != nil {
		s.fbs = make([]driver.Framebuf, 0, len(s.images))
		for _, img := range s.images {
			iv := []driver.ImageView{img.view}
			if s.depth != nil {
				iv = append(iv, s.depth.view)
			}
			var fb driver.Framebuf
			if fb, err = s.dev.gpu.NewFramebuf(s.opts.pass, iv, s.sc.Size()); err != nil {
				err = errors.Wrap(err, "gfx: new framebuffer")
				goto fail
			}
			s.fbs = append(s.fbs, fb)
		}
	}
	return nil

fail:
	s.teardown()
	s.sc.Destroy()
	s.sc = nil
	return err
}

// teardown destroys everything derived from the images
// of the native swapchain, but not the swapchain itself.
func (s *Swapchain) teardown() {
	for _, fb := range s.fbs {
		fb.Destroy()
	}
	s.fbs = nil
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	s.depth.Destroy()
	s.depth = nil
}

// transitionDepth transitions the depth image from
// driver.LUndefined to driver.LDSTarget and submits it.
func (s *Swapchain) transitionDepth(ctx *Context, fence *Fence) error {
	if s.depth == nil {
		return nil
	}
	err := ctx.Record(fence, func(ctx *Context) error {
		b := BuildImageBarrier(s.depth, AccessDepthStencil, driver.LUndefined, driver.LDSTarget)
		s.dev.PipelineBarrier(ctx, driver.SNone, driver.SDSOutput, b)
		return nil
	})
	if err != nil {
		return err
	}
	return s.dev.Submit(ctx, nil, nil, fence, nil)
}

// AcquireNextImage returns the index of the next image
// to render to. sem is signaled when the image is safe
// to write to, which may happen after this method returns.
// It blocks while every image is in use.
// If the swapchain is out of date, it returns an error
// for which IsOutOfDate returns true, and sem is not
// signaled.
func (s *Swapchain) AcquireNextImage(sem *Semaphore) (int, error) {
	if s.sc == nil {
		return -1, errNoSwapchain
	}
	idx, err := s.sc.Next(sem.s, driver.Infinite)
	switch {
	case err == nil:
		Logger().Debug("gfx: acquire", "index", idx)
		return idx, nil
	case errors.Is(err, driver.ErrSwapchain):
		Logger().Warn("gfx: acquire: swapchain out of date")
	}
	return -1, errors.Wrap(err, "gfx: acquire")
}

// Present queues the presentation of the image at index
// after every semaphore in wait is signaled.
func (s *Swapchain) Present(wait []*Semaphore, index int) error {
	if s.sc == nil {
		return errNoSwapchain
	}
	return s.dev.Present(wait, []PresentTarget{{s, index}})
}

// Resize recreates the swapchain and everything derived
// from its images to match size.
// It waits for the device to become idle first. The new
// depth image is transitioned using ctx and fence.
// If Resize fails, nothing is left of the previous
// swapchain. Acquiring and presenting then report an
// out of date swapchain until a Resize succeeds.
func (s *Swapchain) Resize(size driver.Dim2D, ctx *Context, fence *Fence) error {
	if err := s.dev.WaitIdle(); err != nil {
		return err
	}
	old := s.sc
	s.teardown()
	err := s.create(size, old)
	if old != nil {
		old.Destroy()
	}
	if err != nil {
		return err
	}
	if err := s.transitionDepth(ctx, fence); err != nil {
		return err
	}
	Logger().Info("gfx: swapchain resized", "images", len(s.images), "extent", s.Extent())
	return nil
}

// Images returns the presentable images.
func (s *Swapchain) Images() []*Image { return s.images }

// Views returns the views of the presentable images.
func (s *Swapchain) Views() []driver.ImageView {
	iv := make([]driver.ImageView, len(s.images))
	for i, img := range s.images {
		iv[i] = img.view
	}
	return iv
}

// Framebufs returns the framebuffers, one per image.
// It is empty unless WithRenderPass was given.
func (s *Swapchain) Framebufs() []driver.Framebuf { return s.fbs }

// Depth returns the depth image, or nil if WithoutDepth
// was given.
func (s *Swapchain) Depth() *Image { return s.depth }

// Extent returns the size of the images.
func (s *Swapchain) Extent() driver.Dim2D { return s.sc.Size() }

// Format returns the format of the presentable images.
func (s *Swapchain) Format() driver.PixelFmt { return s.sc.Format() }

// Mode returns the negotiated presentation mode.
func (s *Swapchain) Mode() driver.PresentMode { return s.sc.Mode() }

// Len returns the number of presentable images.
func (s *Swapchain) Len() int { return len(s.images) }

// Viewport returns a viewport that covers the whole
// extent, with the Y axis pointing up.
func (s *Swapchain) Viewport() driver.Viewport {
	sz := s.sc.Size()
	return driver.Viewport{
		X:      0,
		Y:      float32(sz.Height),
		Width:  float32(sz.Width),
		Height: -float32(sz.Height),
		Znear:  0,
		Zfar:   1,
	}
}

// Scissor returns a scissor rectangle that covers the
// whole extent.
func (s *Swapchain) Scissor() driver.Scissor {
	sz := s.sc.Size()
	return driver.Scissor{Width: sz.Width, Height: sz.Height}
}

// Destroy destroys the swapchain.
// The device should be idle.
func (s *Swapchain) Destroy() {
	if s == nil || s.sc == nil {
		return
	}
	s.teardown()
	s.sc.Destroy()
	s.sc = nil
}
