// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	"github.com/pkg/errors"
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

// surface implements driver.Surface.
type surface struct {
	sf vulkan.Surface
}

// WrapSurface wraps a surface created by the window
// system layer.
// The driver never destroys it.
func WrapSurface(sf vulkan.Surface) driver.Surface { return &surface{sf} }

// swapchain implements driver.Swapchain.
type swapchain struct {
	d    *Driver
	sf   *surface
	sc   vulkan.Swapchain
	imgs []driver.Image
	pf   driver.PixelFmt
	size driver.Dim2D
	mode driver.PresentMode
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(sf driver.Surface, conf *driver.SwapchainConf, old driver.Swapchain) (driver.Swapchain, error) {
	s, ok := sf.(*surface)
	if !ok {
		return nil, errors.New("vk: surface not created by WrapSurface")
	}
	var caps vulkan.SurfaceCapabilities
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceCapabilities(d.h.PhysicalDevice, s.sf, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	ext := caps.CurrentExtent
	if ext.Width == ^uint32(0) {
		// The surface size is determined by the swapchain.
		ext = vulkan.Extent2D{
			Width:  clamp(uint32(conf.Size.Width), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(uint32(conf.Size.Height), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}
	if ext.Width == 0 || ext.Height == 0 {
		// Minimized window.
		return nil, driver.ErrSwapchain
	}
	maxImgs := caps.MaxImageCount
	if maxImgs == 0 {
		maxImgs = ^uint32(0)
	}
	n := clamp(uint32(conf.ImageCount), caps.MinImageCount, maxImgs)

	mode, err := d.presentMode(s, conf.Mode)
	if err != nil {
		return nil, err
	}
	sfmt, err := d.surfaceFormat(s)
	if err != nil {
		return nil, err
	}
	pf := pixelFmtOf(sfmt.Format)

	info := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          s.sf,
		MinImageCount:    n,
		ImageFormat:      sfmt.Format,
		ImageColorSpace:  sfmt.ColorSpace,
		ImageExtent:      ext,
		ImageArrayLayers: 1,
		ImageUsage:       convImageUsage(driver.URenderTarget|driver.UCopyDst, pf),
		ImageSharingMode: vulkan.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      convPresentMode(mode),
		Clipped:          vulkan.True,
		OldSwapchain:     vulkan.NullSwapchain,
	}
	if old != nil {
		info.OldSwapchain = old.(*swapchain).sc
	}
	sc := &swapchain{
		d:    d,
		sf:   s,
		pf:   pf,
		size: driver.Dim2D{Width: int(ext.Width), Height: int(ext.Height)},
		mode: mode,
	}
	if err := checkResult(vulkan.CreateSwapchain(d.h.Device, &info, nil, &sc.sc)); err != nil {
		return nil, err
	}
	if err := sc.initImages(); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

// initImages wraps the images that sc owns.
func (s *swapchain) initImages() error {
	var n uint32
	if err := checkResult(vulkan.GetSwapchainImages(s.d.h.Device, s.sc, &n, nil)); err != nil {
		return err
	}
	imgs := make([]vulkan.Image, n)
	if err := checkResult(vulkan.GetSwapchainImages(s.d.h.Device, s.sc, &n, imgs)); err != nil {
		return err
	}
	s.imgs = make([]driver.Image, n)
	for i := range s.imgs {
		s.imgs[i] = &image{
			d:    s.d,
			img:  imgs[i],
			pf:   s.pf,
			size: s.size,
			sc:   true,
		}
	}
	return nil
}

// presentMode returns m if sf supports it, or
// driver.PFIFO otherwise.
func (d *Driver) presentMode(sf *surface, m driver.PresentMode) (driver.PresentMode, error) {
	if m == driver.PFIFO {
		return m, nil
	}
	var n uint32
	if err := checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(d.h.PhysicalDevice, sf.sf, &n, nil)); err != nil {
		return 0, err
	}
	modes := make([]vulkan.PresentMode, n)
	if err := checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(d.h.PhysicalDevice, sf.sf, &n, modes)); err != nil {
		return 0, err
	}
	want := convPresentMode(m)
	for _, x := range modes[:n] {
		if x == want {
			return m, nil
		}
	}
	// FIFO support is mandatory.
	return driver.PFIFO, nil
}

// surfaceFormat selects a format that sf supports,
// preferring 8-bit BGRA.
func (d *Driver) surfaceFormat(sf *surface) (vulkan.SurfaceFormat, error) {
	var n uint32
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(d.h.PhysicalDevice, sf.sf, &n, nil)); err != nil {
		return vulkan.SurfaceFormat{}, err
	}
	fmts := make([]vulkan.SurfaceFormat, n)
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(d.h.PhysicalDevice, sf.sf, &n, fmts)); err != nil {
		return vulkan.SurfaceFormat{}, err
	}
	fmts = fmts[:n]
	for i := range fmts {
		fmts[i].Deref()
	}
	for _, pf := range [...]driver.PixelFmt{driver.BGRA8un, driver.RGBA8un, driver.BGRA8sRGB, driver.RGBA8sRGB} {
		want := convPixelFmt(pf)
		for _, f := range fmts {
			if f.Format == want {
				return f, nil
			}
		}
	}
	return vulkan.SurfaceFormat{}, errors.WithMessage(driver.ErrCannotPresent, "vk: no supported surface format")
}

// Next acquires the next writable image.
// An acquire that reports a suboptimal swapchain still
// signals sem, so it succeeds here.
func (s *swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	var idx uint32
	res := vulkan.AcquireNextImage(s.d.h.Device, s.sc, timeoutNanos(timeout), sem.(*semaphore).sem, vulkan.Fence(vulkan.NullHandle), &idx)
	if err := checkResult(res); err != nil {
		return -1, err
	}
	return int(idx), nil
}

// Present queues the presentation of one image of each
// swapchain.
// Presenting to a swapchain that is out of date or
// suboptimal consumes the wait semaphores and reports
// driver.ErrSwapchain.
func (d *Driver) Present(wait []driver.Semaphore, sc []driver.Swapchain, index []int) error {
	if len(sc) != len(index) {
		return errors.New("vk: len(sc) != len(index)")
	}
	sems := make([]vulkan.Semaphore, len(wait))
	for i := range wait {
		sems[i] = wait[i].(*semaphore).sem
	}
	scs := make([]vulkan.Swapchain, len(sc))
	idx := make([]uint32, len(sc))
	for i := range sc {
		scs[i] = sc[i].(*swapchain).sc
		idx[i] = uint32(index[i])
	}
	info := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     uint32(len(scs)),
		PSwapchains:        scs,
		PImageIndices:      idx,
	}
	d.qmu.Lock()
	res := vulkan.QueuePresent(d.h.Queue, &info)
	d.qmu.Unlock()
	if res == vulkan.Suboptimal {
		return driver.ErrSwapchain
	}
	return checkResult(res)
}

// Images returns the swapchain images.
func (s *swapchain) Images() []driver.Image { return s.imgs }

// Format returns the images' pixel format.
func (s *swapchain) Format() driver.PixelFmt { return s.pf }

// Size returns the images' size.
func (s *swapchain) Size() driver.Dim2D { return s.size }

// Mode returns the presentation mode.
func (s *swapchain) Mode() driver.PresentMode { return s.mode }

// Destroy destroys the swapchain and its images.
func (s *swapchain) Destroy() {
	if s == nil || s.d == nil {
		return
	}
	vulkan.DestroySwapchain(s.d.h.Device, s.sc, nil)
	*s = swapchain{}
}

// clamp clamps x to [lo, hi].
func clamp(x, lo, hi uint32) uint32 { return max(lo, min(x, hi)) }
