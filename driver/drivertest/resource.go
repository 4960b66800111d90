// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"

	"github.com/gviegas/gfxsync/driver"
)

var errForeign = errors.New("drivertest: object not created by this GPU")

// RenderPass is a driver.RenderPass for the fake GPU.
// Final lists the layout in which each attachment is left
// when the pass ends (LUndefined leaves it unchanged).
type RenderPass struct {
	Name  string
	Final []driver.Layout
}

// Pipeline is a driver.Pipeline for the fake GPU.
type Pipeline struct {
	Name string
}

// DescSet is a driver.DescSet for the fake GPU.
type DescSet struct {
	Name string
}

// image implements driver.Image.
type image struct {
	g         *GPU
	id        int
	pf        driver.PixelFmt
	size      driver.Dim2D
	usg       driver.Usage
	layout    driver.Layout
	views     int
	owner     *swapchain
	destroyed bool
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim2D, usg driver.Usage) (driver.Image, error) {
	if pf == driver.FInvalid || size.Width <= 0 || size.Height <= 0 {
		return nil, errors.New("drivertest: invalid image parameters")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultImage); err != nil {
		return nil, err
	}
	return &image{g: g, id: g.newID(), pf: pf, size: size, usg: usg}, nil
}

func (img *image) Format() driver.PixelFmt { return img.pf }
func (img *image) Size() driver.Dim2D      { return img.size }

// NewView creates a view of the whole image.
func (img *image) NewView() (driver.ImageView, error) {
	g := img.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if img.destroyed {
		return nil, errors.New("drivertest: view of destroyed image")
	}
	if err := g.fault(FaultView); err != nil {
		return nil, err
	}
	img.views++
	return &imageView{g: g, id: g.newID(), img: img}, nil
}

// Destroy destroys the image.
func (img *image) Destroy() {
	if img == nil {
		return
	}
	g := img.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if img.owner != nil {
		g.violate("image %d is owned by swapchain %d", img.id, img.owner.id)
		return
	}
	if img.destroyed {
		return
	}
	if img.views > 0 {
		g.violate("image %d destroyed with %d live views", img.id, img.views)
	}
	img.destroyed = true
	g.live--
}

// imageView implements driver.ImageView.
type imageView struct {
	g         *GPU
	id        int
	img       *image
	destroyed bool
}

func (v *imageView) Image() driver.Image { return v.img }

// Destroy destroys the view.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	g := v.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.destroyed {
		return
	}
	v.destroyed = true
	v.img.views--
	g.live--
}

// Layout returns the layout that img is in, as of the last
// operation executed by the GPU.
func (g *GPU) Layout(img driver.Image) driver.Layout {
	g.mu.Lock()
	defer g.mu.Unlock()
	return img.(*image).layout
}

// buffer implements driver.Buffer.
type buffer struct {
	g         *GPU
	id        int
	data      []byte
	visible   bool
	destroyed bool
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.New("drivertest: invalid buffer size")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultBuffer); err != nil {
		return nil, err
	}
	return &buffer{g: g, id: g.newID(), data: make([]byte, size), visible: visible}, nil
}

func (b *buffer) Visible() bool { return b.visible }
func (b *buffer) Cap() int64    { return int64(len(b.data)) }

// Bytes returns the buffer's memory if it is visible.
func (b *buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	g := b.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	g.live--
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	g         *GPU
	id        int
	pass      *RenderPass
	views     []*imageView
	size      driver.Dim2D
	destroyed bool
}

// NewFramebuf creates a new framebuffer.
func (g *GPU) NewFramebuf(pass driver.RenderPass, iv []driver.ImageView, size driver.Dim2D) (driver.Framebuf, error) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		return nil, errForeign
	}
	views := make([]*imageView, len(iv))
	for i := range iv {
		if views[i], ok = iv[i].(*imageView); !ok || views[i].g != g {
			return nil, errForeign
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultFramebuf); err != nil {
		return nil, err
	}
	return &framebuf{g: g, id: g.newID(), pass: rp, views: views, size: size}, nil
}

// Destroy destroys the framebuffer.
func (fb *framebuf) Destroy() {
	if fb == nil {
		return
	}
	g := fb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if fb.destroyed {
		return
	}
	fb.destroyed = true
	g.live--
}
