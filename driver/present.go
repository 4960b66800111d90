// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"time"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the window or
// compositor made the swapchain unusable (out of date).
// It is transient: recreating the swapchain recovers from it.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// Surface is the interface that defines a presentable
// surface.
// Surfaces are created by the window-system layer and
// handed over as opaque values.
type Surface interface{}

// PresentMode is the type of presentation modes.
type PresentMode int

// Presentation modes.
const (
	// Synchronized to the display refresh; never tears.
	PFIFO PresentMode = iota
	// Latest image replaces the queued one; never tears.
	PMailbox
	// Earliest available; may tear.
	PImmediate
)

// String implements fmt.Stringer.
func (m PresentMode) String() string {
	switch m {
	case PFIFO:
		return "FIFO"
	case PMailbox:
		return "Mailbox"
	case PImmediate:
		return "Immediate"
	}
	return "PresentMode(?)"
}

// SwapchainConf describes the configuration of a swapchain.
// Size is used only when the surface does not dictate its
// own extent. The driver may clamp ImageCount and fall back
// to PFIFO if Mode is not supported.
type SwapchainConf struct {
	Size       Dim2D
	ImageCount int
	Mode       PresentMode
}

// Presenter is the interface that a GPU implements to
// enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain.
	// If old is not nil, it must be the swapchain
	// currently associated with sf; it is retired
	// (but not destroyed) by this call.
	NewSwapchain(sf Surface, conf *SwapchainConf, old Swapchain) (Swapchain, error)

	// Present queues the presentation of one image of
	// each swapchain in sc, identified by the index
	// of same position.
	// Presentation happens only after every semaphore
	// in wait is signaled.
	Present(wait []Semaphore, sc []Swapchain, index []int) error
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image to target, waits on the semaphore given to Next
// before writing to the image, transitions the image to
// a valid layout (e.g., from LUndefined to LColorTarget),
// records commands as needed, transitions the image to
// the LPresent layout, submits these commands and then
// calls Present.
type Swapchain interface {
	Destroyer

	// Images returns the list of images that comprises
	// the swapchain.
	// Swapchain images are in the LUndefined layout
	// when created.
	Images() []Image

	// Next returns the index of the next writable image.
	// sem is signaled when the image is actually safe to
	// write to; the returned index may be available
	// before that.
	// Next blocks while every image is in use, up to the
	// given timeout.
	Next(sem Semaphore, timeout time.Duration) (int, error)

	// Format returns the images' PixelFmt.
	Format() PixelFmt

	// Size returns the images' size.
	Size() Dim2D

	// Mode returns the negotiated PresentMode.
	Mode() PresentMode
}
