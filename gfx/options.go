// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"time"

	"github.com/gviegas/gfxsync/driver"
)

// DeviceOption configures a Device.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	fenceTimeout time.Duration
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{fenceTimeout: driver.Infinite}
}

// WithFenceTimeout bounds how long Fence.Wait blocks.
// A wait that exceeds d is reported as a fatal error.
// The default is driver.Infinite.
func WithFenceTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// SwapchainOption configures a Swapchain.
type SwapchainOption func(*swapchainOptions)

type swapchainOptions struct {
	imageCount int
	vsync      bool
	depth      driver.PixelFmt
	pass       driver.RenderPass
}

func defaultSwapchainOptions() swapchainOptions {
	return swapchainOptions{
		imageCount: 3,
		vsync:      true,
		depth:      driver.D16un,
	}
}

// WithImageCount sets the number of swapchain images to
// request. The driver may clamp it.
func WithImageCount(n int) SwapchainOption {
	return func(o *swapchainOptions) { o.imageCount = n }
}

// WithVSync selects whether presentation is synchronized
// to the display refresh (the default).
// Without vsync, the mailbox mode is requested, which
// falls back to FIFO when not supported.
func WithVSync(vsync bool) SwapchainOption {
	return func(o *swapchainOptions) { o.vsync = vsync }
}

// WithDepth sets the format of the swapchain's depth
// image. The default is driver.D16un.
func WithDepth(pf driver.PixelFmt) SwapchainOption {
	return func(o *swapchainOptions) {
		if pf.IsDS() {
			o.depth = pf
		}
	}
}

// WithoutDepth disables creation of the depth image.
func WithoutDepth() SwapchainOption {
	return func(o *swapchainOptions) { o.depth = driver.FInvalid }
}

// WithRenderPass makes the swapchain create one
// framebuffer per image for the given render pass.
// Attachments are the color image followed by the depth
// image, if any.
func WithRenderPass(pass driver.RenderPass) SwapchainOption {
	return func(o *swapchainOptions) { o.pass = pass }
}
