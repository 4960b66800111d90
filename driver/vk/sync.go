// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

// fence implements driver.Fence.
type fence struct {
	d     *Driver
	fence vulkan.Fence
}

// NewFence creates a new fence.
func (d *Driver) NewFence(signaled bool) (driver.Fence, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	f := &fence{d: d}
	if err := checkResult(vulkan.CreateFence(d.h.Device, &info, nil, &f.fence)); err != nil {
		return nil, err
	}
	return f, nil
}

// Wait waits for the fence to be signaled.
func (f *fence) Wait(timeout time.Duration) error {
	res := vulkan.WaitForFences(f.d.h.Device, 1, []vulkan.Fence{f.fence}, vulkan.True, timeoutNanos(timeout))
	return checkResult(res)
}

// Reset unsignals the fence.
func (f *fence) Reset() error {
	return checkResult(vulkan.ResetFences(f.d.h.Device, 1, []vulkan.Fence{f.fence}))
}

// Signaled queries the fence status.
func (f *fence) Signaled() (bool, error) {
	switch res := vulkan.GetFenceStatus(f.d.h.Device, f.fence); res {
	case vulkan.Success:
		return true, nil
	case vulkan.NotReady:
		return false, nil
	default:
		return false, checkResult(res)
	}
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil || f.d == nil {
		return
	}
	vulkan.DestroyFence(f.d.h.Device, f.fence, nil)
	*f = fence{}
}

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *Driver
	sem vulkan.Semaphore
}

// NewSemaphore creates a new binary semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	s := &semaphore{d: d}
	if err := checkResult(vulkan.CreateSemaphore(d.h.Device, &info, nil, &s.sem)); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil || s.d == nil {
		return
	}
	vulkan.DestroySemaphore(s.d.h.Device, s.sem, nil)
	*s = semaphore{}
}
