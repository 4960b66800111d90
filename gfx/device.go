// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

var errNoDriver = errors.New("gfx: driver not found")

// Device owns a driver.GPU and its execution queue.
// Every submission, presentation and barrier goes through
// a Device. It must be created before, and destroyed after,
// everything that uses it.
type Device struct {
	gpu  driver.GPU
	drv  driver.Driver
	opts deviceOptions
}

// NewDevice creates a Device that uses gpu.
// The caller retains ownership of gpu's driver.
func NewDevice(gpu driver.GPU, opts ...DeviceOption) (*Device, error) {
	if gpu == nil {
		return nil, errNilGPU
	}
	d := &Device{gpu: gpu, opts: defaultDeviceOptions()}
	for _, o := range opts {
		o(&d.opts)
	}
	Logger().Info("gfx: device created", "driver", gpu.Driver().Name())
	return d, nil
}

// OpenDevice opens the first registered driver whose name
// contains name (case insensitive) and creates a Device
// from it. The empty name matches any driver.
// The driver is closed when the Device is destroyed.
func OpenDevice(name string, opts ...DeviceOption) (*Device, error) {
	name = strings.ToLower(name)
	err := errNoDriver
	for _, drv := range driver.Drivers() {
		if !strings.Contains(strings.ToLower(drv.Name()), name) {
			continue
		}
		var gpu driver.GPU
		if gpu, err = drv.Open(); err != nil {
			Logger().Warn("gfx: driver failed to open", "driver", drv.Name(), "err", err)
			continue
		}
		var d *Device
		if d, err = NewDevice(gpu, opts...); err != nil {
			Logger().Warn("gfx: driver failed to open", "driver", drv.Name(), "err", err)
			drv.Close()
			continue
		}
		d.drv = drv
		return d, nil
	}
	return nil, errors.Wrapf(err, "gfx: open %q", name)
}

// GPU returns the underlying driver.GPU.
func (d *Device) GPU() driver.GPU { return d.gpu }

// Submit enqueues the commands recorded in ctx.
// Execution waits on each semaphore in wait at the stage
// given by the waitStages entry of same index, so
// len(waitStages) must equal len(wait).
// Semaphores in signal and fence (which may be nil) are
// signaled when execution completes.
// ctx becomes Pending. A failed submission cannot be
// retried; the error should be treated as fatal.
func (d *Device) Submit(ctx *Context, wait, signal []*Semaphore, fence *Fence, waitStages []driver.Sync) error {
	if len(waitStages) != len(wait) {
		panic("gfx: Submit: len(waitStages) != len(wait)")
	}
	s := &driver.Submission{
		Wait:     natSems(wait),
		WaitSync: waitStages,
		Signal:   natSems(signal),
	}
	if ctx != nil {
		s.Cmd = []driver.CmdBuffer{ctx.cb}
	}
	if fence != nil {
		s.Fence = fence.f
	}
	if err := d.gpu.Submit(s); err != nil {
		return errors.Wrap(err, "gfx: submit")
	}
	if ctx != nil {
		ctx.state = Pending
	}
	Logger().Debug("gfx: submit", "wait", len(wait), "signal", len(signal), "fence", fence != nil)
	return nil
}

// restore submits an empty batch that signals fence.
// It is used to keep a fence that was reset for a
// recording that is never submitted from blocking the
// next wait on it.
func (d *Device) restore(fence *Fence) error {
	return d.gpu.Submit(&driver.Submission{Fence: fence.f})
}

// PresentTarget identifies a swapchain image to present.
type PresentTarget struct {
	Swapchain *Swapchain
	Index     int
}

// Present queues the presentation of one or more
// swapchain images. Presentation waits on every semaphore
// in wait.
// An out of date swapchain is reported with an error for
// which IsOutOfDate returns true; the semaphores are
// consumed regardless.
func (d *Device) Present(wait []*Semaphore, targets []PresentTarget) error {
	sc := make([]driver.Swapchain, len(targets))
	idx := make([]int, len(targets))
	for i, t := range targets {
		sc[i] = t.Swapchain.sc
		idx[i] = t.Index
	}
	err := d.gpu.Present(natSems(wait), sc, idx)
	switch {
	case err == nil:
		Logger().Debug("gfx: present", "targets", len(targets))
		return nil
	case errors.Is(err, driver.ErrSwapchain):
		Logger().Warn("gfx: present: swapchain out of date")
	}
	return errors.Wrap(err, "gfx: present")
}

// PipelineBarrier records a pipeline barrier into ctx
// comprised of every barrier in b.
// src must include every stage that may still access the
// images in their old layouts and dst every stage that
// will access them in their new layouts.
// It is a no-op if b is empty.
func (d *Device) PipelineBarrier(ctx *Context, src, dst driver.Sync, b ...ImageBarrier) {
	if len(b) == 0 {
		return
	}
	t := make([]driver.Transition, len(b))
	for i := range b {
		t[i] = b[i].t
	}
	ctx.cb.Barrier(src, dst, nil, t)
}

// MemoryBarrier records a global memory barrier into ctx.
// It is meant for buffer hazards, which involve no layout.
func (d *Device) MemoryBarrier(ctx *Context, src, dst driver.Sync, srcAcc, dstAcc driver.Access) {
	ctx.cb.Barrier(src, dst, []driver.Barrier{{AccessBefore: srcAcc, AccessAfter: dstAcc}}, nil)
}

// WaitIdle blocks until the device executes all
// queued work.
func (d *Device) WaitIdle() error {
	if err := d.gpu.WaitIdle(); err != nil {
		return errors.Wrap(err, "gfx: wait idle")
	}
	return nil
}

// Destroy waits for the device to become idle and
// releases it. If the Device was created by OpenDevice,
// the driver is closed.
func (d *Device) Destroy() {
	if d == nil || d.gpu == nil {
		return
	}
	if err := d.gpu.WaitIdle(); err != nil {
		Logger().Warn("gfx: device destroyed while not idle", "err", err)
	}
	if d.drv != nil {
		d.drv.Close()
	}
	Logger().Info("gfx: device destroyed")
	*d = Device{}
}

func natSems(s []*Semaphore) []driver.Semaphore {
	if len(s) == 0 {
		return nil
	}
	n := make([]driver.Semaphore, len(s))
	for i := range s {
		n[i] = s[i].s
	}
	return n
}
