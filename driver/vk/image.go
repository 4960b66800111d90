// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"github.com/pkg/errors"
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

// image implements driver.Image.
type image struct {
	d    *Driver
	m    *memory
	img  vulkan.Image
	pf   driver.PixelFmt
	size driver.Dim2D
	// Swapchain images are owned by the swapchain and
	// have no memory of their own.
	sc bool
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim2D, usg driver.Usage) (driver.Image, error) {
	vf := convPixelFmt(pf)
	if vf == vulkan.FormatUndefined {
		return nil, errors.Errorf("vk: unsupported pixel format %d", pf)
	}
	info := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Format:    vf,
		Extent: vulkan.Extent3D{
			Width:  uint32(size.Width),
			Height: uint32(size.Height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vulkan.SampleCount1Bit,
		Tiling:        vulkan.ImageTilingOptimal,
		Usage:         convImageUsage(usg, pf),
		SharingMode:   vulkan.SharingModeExclusive,
		InitialLayout: vulkan.ImageLayoutUndefined,
	}
	img := &image{d: d, pf: pf, size: size}
	var req vulkan.MemoryRequirements
	var err error
	if err = checkResult(vulkan.CreateImage(d.h.Device, &info, nil, &img.img)); err != nil {
		return nil, err
	}
	vulkan.GetImageMemoryRequirements(d.h.Device, img.img, &req)
	if img.m, err = d.newMemory(req, false); err != nil {
		goto fail
	}
	if err = checkResult(vulkan.BindImageMemory(d.h.Device, img.img, img.m.mem, 0)); err != nil {
		goto fail
	}
	return img, nil
fail:
	img.Destroy()
	return nil, err
}

// Format returns the image's pixel format.
func (i *image) Format() driver.PixelFmt { return i.pf }

// Size returns the image's size.
func (i *image) Size() driver.Dim2D { return i.size }

// NewView creates a new image view.
func (i *image) NewView() (driver.ImageView, error) {
	info := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    i.img,
		ViewType: vulkan.ImageViewType2d,
		Format:   convPixelFmt(i.pf),
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: aspectOf(i.pf),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	v := &imageView{i: i}
	if err := checkResult(vulkan.CreateImageView(i.d.h.Device, &info, nil, &v.view)); err != nil {
		return nil, err
	}
	return v, nil
}

// Destroy destroys the image.
// Swapchain images are only destroyed with their
// swapchain.
func (i *image) Destroy() {
	if i == nil || i.d == nil || i.sc {
		return
	}
	if i.img != nil {
		vulkan.DestroyImage(i.d.h.Device, i.img, nil)
	}
	i.m.free()
	*i = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	i    *image
	view vulkan.ImageView
}

// Image returns the image from which the view was created.
func (v *imageView) Image() driver.Image { return v.i }

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil || v.i == nil {
		return
	}
	vulkan.DestroyImageView(v.i.d.h.Device, v.view, nil)
	*v = imageView{}
}

// buffer implements driver.Buffer.
type buffer struct {
	m   *memory
	buf vulkan.Buffer
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	info := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        vulkan.DeviceSize(size),
		Usage:       convBufferUsage(usg),
		SharingMode: vulkan.SharingModeExclusive,
	}
	b := &buffer{}
	var req vulkan.MemoryRequirements
	var err error
	if err = checkResult(vulkan.CreateBuffer(d.h.Device, &info, nil, &b.buf)); err != nil {
		return nil, err
	}
	vulkan.GetBufferMemoryRequirements(d.h.Device, b.buf, &req)
	if b.m, err = d.newMemory(req, visible); err != nil {
		goto fail
	}
	if err = checkResult(vulkan.BindBufferMemory(d.h.Device, b.buf, b.m.mem, 0)); err != nil {
		goto fail
	}
	if err = b.m.mmap(); err != nil {
		goto fail
	}
	// The allocation may be larger than requested.
	b.m.size = size
	if len(b.m.p) != 0 {
		b.m.p = b.m.p[:size]
	}
	return b, nil
fail:
	vulkan.DestroyBuffer(d.h.Device, b.buf, nil)
	b.m.free()
	return nil, err
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Bytes returns a slice of length b.Cap() referring to
// the underlying data.
func (b *buffer) Bytes() []byte { return b.m.p }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.m.size }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil || b.m == nil {
		return
	}
	vulkan.DestroyBuffer(b.m.d.h.Device, b.buf, nil)
	b.m.free()
	*b = buffer{}
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	d  *Driver
	fb vulkan.Framebuffer
}

// NewFramebuf creates a new framebuffer.
func (d *Driver) NewFramebuf(pass driver.RenderPass, iv []driver.ImageView, size driver.Dim2D) (driver.Framebuf, error) {
	rp, ok := pass.(*renderPass)
	if !ok {
		return nil, errors.New("vk: render pass not created by WrapRenderPass")
	}
	views := make([]vulkan.ImageView, len(iv))
	for i := range iv {
		views[i] = iv[i].(*imageView).view
	}
	info := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(size.Width),
		Height:          uint32(size.Height),
		Layers:          1,
	}
	f := &framebuf{d: d}
	if err := checkResult(vulkan.CreateFramebuffer(d.h.Device, &info, nil, &f.fb)); err != nil {
		return nil, err
	}
	return f, nil
}

// Destroy destroys the framebuffer.
func (f *framebuf) Destroy() {
	if f == nil || f.d == nil {
		return
	}
	vulkan.DestroyFramebuffer(f.d.h.Device, f.fb, nil)
	*f = framebuf{}
}

// renderPass implements driver.RenderPass.
type renderPass struct {
	pass vulkan.RenderPass
}

// WrapRenderPass wraps a render pass created by the caller.
// The driver never destroys it.
func WrapRenderPass(pass vulkan.RenderPass) driver.RenderPass { return &renderPass{pass} }

// pipeline implements driver.Pipeline.
type pipeline struct {
	pl     vulkan.Pipeline
	layout vulkan.PipelineLayout
	bp     vulkan.PipelineBindPoint
}

// WrapPipeline wraps a graphics pipeline created by the
// caller, along with its layout.
// The driver never destroys them.
func WrapPipeline(pl vulkan.Pipeline, layout vulkan.PipelineLayout) driver.Pipeline {
	return &pipeline{pl, layout, vulkan.PipelineBindPointGraphics}
}

// WrapComputePipeline is like WrapPipeline but for
// compute pipelines.
func WrapComputePipeline(pl vulkan.Pipeline, layout vulkan.PipelineLayout) driver.Pipeline {
	return &pipeline{pl, layout, vulkan.PipelineBindPointCompute}
}

// descSet implements driver.DescSet.
type descSet struct {
	set vulkan.DescriptorSet
}

// WrapDescSet wraps a descriptor set allocated by the
// caller.
// The driver never frees it.
func WrapDescSet(set vulkan.DescriptorSet) driver.DescSet { return &descSet{set} }
