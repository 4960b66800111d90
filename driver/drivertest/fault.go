// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"fmt"

	"github.com/gviegas/gfxsync/driver"
)

// Fault identifies a GPU call that can be made to fail.
type Fault int

// Calls that can be made to fail.
const (
	FaultImage     Fault = iota // GPU.NewImage
	FaultView                   // Image.NewView
	FaultBuffer                 // GPU.NewBuffer
	FaultFence                  // GPU.NewFence
	FaultSemaphore              // GPU.NewSemaphore
	FaultCmdBuffer              // GPU.NewCmdBuffer
	FaultFramebuf               // GPU.NewFramebuf
	FaultSwapchain              // GPU.NewSwapchain
	FaultBegin                  // CmdBuffer.Begin
	numFaults
)

// String implements fmt.Stringer.
func (f Fault) String() string {
	switch f {
	case FaultImage:
		return "Image"
	case FaultView:
		return "View"
	case FaultBuffer:
		return "Buffer"
	case FaultFence:
		return "Fence"
	case FaultSemaphore:
		return "Semaphore"
	case FaultCmdBuffer:
		return "CmdBuffer"
	case FaultFramebuf:
		return "Framebuf"
	case FaultSwapchain:
		return "Swapchain"
	case FaultBegin:
		return "Begin"
	}
	return fmt.Sprintf("Fault(%d)", int(f))
}

// WithFault makes the n-th call (from one) identified by
// f fail with driver.ErrNoDeviceMemory.
func WithFault(f Fault, n int) Option {
	return func(c *config) {
		if c.faults == nil {
			c.faults = make(map[Fault]int)
		}
		c.faults[f] = n
	}
}

// Fail makes the n-th call (from one) identified by f,
// counting from now, fail with driver.ErrNoDeviceMemory.
// It replaces any failure already set for f.
// n <= 0 disables the failure.
func (g *GPU) Fail(f Fault, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 {
		g.failAt[f] = 0
		return
	}
	g.failAt[f] = g.faultN[f] + n
}

// fault counts a call identified by f and reports
// whether it must fail.
// g.mu must be held.
func (g *GPU) fault(f Fault) error {
	g.faultN[f]++
	if g.failAt[f] == 0 || g.faultN[f] != g.failAt[f] {
		return nil
	}
	g.failAt[f] = 0
	g.conf.log.Debug("drivertest: injected failure", "call", f)
	return driver.ErrNoDeviceMemory
}
