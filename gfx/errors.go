// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

var errNilGPU = errors.New("gfx: nil driver.GPU")

// errNoSwapchain is returned when a previous resize
// failed. It satisfies IsOutOfDate, so that the caller
// resizes again.
var errNoSwapchain = errors.WithMessage(driver.ErrSwapchain, "gfx: swapchain not recreated")

// IsFatal reports whether err leaves the device in an
// unrecoverable state (device loss, memory exhaustion or
// a fence that was never signaled).
// The session must be torn down.
func IsFatal(err error) bool {
	return errors.Is(err, driver.ErrFatal) ||
		errors.Is(err, driver.ErrNoDeviceMemory) ||
		errors.Is(err, driver.ErrNoHostMemory)
}

// IsOutOfDate reports whether err means that the
// swapchain no longer matches its surface.
// It is recovered from by calling Swapchain.Resize.
func IsOutOfDate(err error) bool {
	return errors.Is(err, driver.ErrSwapchain)
}
