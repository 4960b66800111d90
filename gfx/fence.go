// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// Fence is a CPU-observable completion signal.
// It is created signaled, so that the first wait on it
// does not block.
type Fence struct {
	dev *Device
	f   driver.Fence
}

// NewFence creates a new fence in the signaled state.
func NewFence(dev *Device) (*Fence, error) {
	f, err := dev.gpu.NewFence(true)
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new fence")
	}
	return &Fence{dev: dev, f: f}, nil
}

// Wait blocks until the fence is signaled.
// A fence that is not signaled within the device's fence
// timeout means that the GPU is hung, so the error is
// fatal (see IsFatal).
func (f *Fence) Wait() error {
	timeout := f.dev.opts.fenceTimeout
	err := f.f.Wait(timeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrTimeout):
		return errors.Wrapf(driver.ErrFatal, "gfx: fence not signaled after %v", timeout)
	}
	return errors.Wrap(err, "gfx: fence wait")
}

// Reset puts the fence in the unsignaled state.
// The fence must not be in use by a pending submission.
func (f *Fence) Reset() error {
	if err := f.f.Reset(); err != nil {
		return errors.Wrap(err, "gfx: fence reset")
	}
	return nil
}

// Signaled returns whether the fence is signaled.
// It does not block.
func (f *Fence) Signaled() (bool, error) {
	ok, err := f.f.Signaled()
	if err != nil {
		return false, errors.Wrap(err, "gfx: fence status")
	}
	return ok, nil
}

// Destroy destroys the fence.
// It is safe to call on a nil or destroyed Fence.
func (f *Fence) Destroy() {
	if f == nil || f.f == nil {
		return
	}
	f.f.Destroy()
	f.f = nil
}
