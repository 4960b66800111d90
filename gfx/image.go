// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// ImageKind determines the default format and usage
// of an Image.
type ImageKind int

// Image kinds.
const (
	Color ImageKind = iota
	Depth
)

func (k ImageKind) format() driver.PixelFmt {
	if k == Depth {
		return driver.D16un
	}
	return driver.RGBA8un
}

func (k ImageKind) usage() driver.Usage {
	if k == Depth {
		return driver.URenderTarget
	}
	return driver.URenderTarget | driver.UShaderSample | driver.UCopySrc | driver.UCopyDst
}

// Image is a 2D image with a single level and layer,
// along with a view of the whole image.
// The layout that the image is in is not stored: callers
// track it and pass it to BuildImageBarrier.
type Image struct {
	img   driver.Image
	view  driver.ImageView
	kind  ImageKind
	owned bool
}

// NewImage creates a new image of the given kind.
// It starts in the driver.LUndefined layout.
func NewImage(dev *Device, kind ImageKind, size driver.Dim2D) (*Image, error) {
	return newImage(dev, kind, kind.format(), size)
}

func newImage(dev *Device, kind ImageKind, pf driver.PixelFmt, size driver.Dim2D) (*Image, error) {
	img, err := dev.gpu.NewImage(pf, size, kind.usage())
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new image")
	}
	view, err := img.NewView()
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "gfx: new image view")
	}
	return &Image{img: img, view: view, kind: kind, owned: true}, nil
}

// wrapImage creates an Image from an image that the
// caller does not own (i.e., a swapchain image).
func wrapImage(img driver.Image) (*Image, error) {
	view, err := img.NewView()
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new image view")
	}
	return &Image{img: img, view: view, kind: Color}, nil
}

// Native returns the underlying driver.Image.
func (img *Image) Native() driver.Image { return img.img }

// View returns the view of the whole image.
func (img *Image) View() driver.ImageView { return img.view }

// Kind returns the image's kind.
func (img *Image) Kind() ImageKind { return img.kind }

// Format returns the image's pixel format.
func (img *Image) Format() driver.PixelFmt { return img.img.Format() }

// Size returns the image's size.
func (img *Image) Size() driver.Dim2D { return img.img.Size() }

// Destroy destroys the image and its view.
// For swapchain images, only the view is destroyed.
func (img *Image) Destroy() {
	if img == nil || img.img == nil {
		return
	}
	img.view.Destroy()
	if img.owned {
		img.img.Destroy()
	}
	*img = Image{}
}

// Buffer is a GPU buffer.
type Buffer struct {
	buf driver.Buffer
}

// NewBuffer creates a new buffer.
// If visible is set, its memory can be accessed through
// Bytes.
func NewBuffer(dev *Device, size int64, visible bool, usg driver.Usage) (*Buffer, error) {
	buf, err := dev.gpu.NewBuffer(size, visible, usg)
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new buffer")
	}
	return &Buffer{buf}, nil
}

// Native returns the underlying driver.Buffer.
func (b *Buffer) Native() driver.Buffer { return b.buf }

// Bytes returns the buffer's memory, or nil if the buffer
// is not host visible.
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

// Cap returns the buffer's size in bytes.
func (b *Buffer) Cap() int64 { return b.buf.Cap() }

// Destroy destroys the buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.buf == nil {
		return
	}
	b.buf.Destroy()
	b.buf = nil
}
