// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces on top of the
// github.com/vulkan-go/vulkan bindings.
//
// The driver does not create the Vulkan instance nor the
// logical device. The window-system layer that owns them
// calls New with the resulting Handles, after having
// loaded the instance procedures through vulkan.Init and
// vulkan.InitInstance.
// Until then, the driver registered on init fails to open
// with driver.ErrNoDevice.
package vk

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

const driverName = "vulkan"

// Handles are the Vulkan objects that the driver
// operates on.
// Queue must support graphics and presentation, and
// belong to QueueFamily.
type Handles struct {
	Instance       vulkan.Instance
	PhysicalDevice vulkan.PhysicalDevice
	Device         vulkan.Device
	Queue          vulkan.Queue
	QueueFamily    uint32
}

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	h    Handles
	open bool
	pool vulkan.CommandPool

	// Queue submission and presentation require that
	// the queue handle be externally synchronized.
	qmu sync.Mutex
	// Same for command buffer allocation from pool.
	pmu sync.Mutex

	mprop vulkan.PhysicalDeviceMemoryProperties
	mtyps []vulkan.MemoryType
}

func init() {
	driver.Register(&Driver{})
}

var (
	_ driver.GPU       = &Driver{}
	_ driver.CmdBuffer = &cmdBuffer{}
	_ driver.Image     = &image{}
	_ driver.Buffer    = &buffer{}
	_ driver.Swapchain = &swapchain{}
)

// New creates a Driver that uses the given handles and
// registers it, replacing the one registered on init.
func New(h Handles) *Driver {
	d := &Driver{h: h}
	driver.Register(d)
	return d
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.open {
		return d, nil
	}
	if d.h.Device == nil || d.h.PhysicalDevice == nil || d.h.Queue == nil {
		return nil, errors.WithMessage(driver.ErrNoDevice, "vk: handles not set")
	}
	vulkan.GetPhysicalDeviceMemoryProperties(d.h.PhysicalDevice, &d.mprop)
	d.mprop.Deref()
	d.mtyps = make([]vulkan.MemoryType, d.mprop.MemoryTypeCount)
	for i := range d.mtyps {
		d.mtyps[i] = d.mprop.MemoryTypes[i]
		d.mtyps[i].Deref()
	}
	info := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.h.QueueFamily,
	}
	if err = checkResult(vulkan.CreateCommandPool(d.h.Device, &info, nil, &d.pool)); err != nil {
		goto fail
	}
	d.open = true
	return d, nil
fail:
	d.Close()
	return nil, err
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
// The handles are not destroyed.
func (d *Driver) Close() {
	if d == nil || d.h.Device == nil {
		return
	}
	if d.pool != nil {
		vulkan.DeviceWaitIdle(d.h.Device)
		vulkan.DestroyCommandPool(d.h.Device, d.pool, nil)
	}
	*d = Driver{h: d.h}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Submit submits a batch of command buffers to the queue.
func (d *Driver) Submit(s *driver.Submission) error {
	if len(s.WaitSync) != len(s.Wait) {
		return errors.New("vk: len(WaitSync) != len(Wait)")
	}
	info := vulkan.SubmitInfo{SType: vulkan.StructureTypeSubmitInfo}
	if n := len(s.Wait); n > 0 {
		sems := make([]vulkan.Semaphore, n)
		stgs := make([]vulkan.PipelineStageFlags, n)
		for i := range sems {
			sems[i] = s.Wait[i].(*semaphore).sem
			stgs[i] = convSync(s.WaitSync[i], true)
		}
		info.WaitSemaphoreCount = uint32(n)
		info.PWaitSemaphores = sems
		info.PWaitDstStageMask = stgs
	}
	if n := len(s.Cmd); n > 0 {
		cbs := make([]vulkan.CommandBuffer, n)
		for i := range cbs {
			cbs[i] = s.Cmd[i].(*cmdBuffer).cb
		}
		info.CommandBufferCount = uint32(n)
		info.PCommandBuffers = cbs
	}
	if n := len(s.Signal); n > 0 {
		sems := make([]vulkan.Semaphore, n)
		for i := range sems {
			sems[i] = s.Signal[i].(*semaphore).sem
		}
		info.SignalSemaphoreCount = uint32(n)
		info.PSignalSemaphores = sems
	}
	f := vulkan.Fence(vulkan.NullHandle)
	if s.Fence != nil {
		f = s.Fence.(*fence).fence
	}
	d.qmu.Lock()
	res := vulkan.QueueSubmit(d.h.Queue, 1, []vulkan.SubmitInfo{info}, f)
	d.qmu.Unlock()
	return errors.WithMessage(checkResult(res), "vk: submit")
}

// WaitIdle blocks until the queue is idle.
func (d *Driver) WaitIdle() error {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return checkResult(vulkan.QueueWaitIdle(d.h.Queue))
}

// memory represents a device memory allocation.
type memory struct {
	d    *Driver
	size int64
	vis  bool
	p    []byte
	mem  vulkan.DeviceMemory
}

// selectMemory selects a suitable memory type from the device.
// It returns the index of the selected memory, or -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint32, prop vulkan.MemoryPropertyFlags) int {
	for i, t := range d.mtyps {
		if 1<<i&typeBits != 0 && t.PropertyFlags&prop == prop {
			return i
		}
	}
	return -1
}

// newMemory allocates memory that satisfies req.
// Visible memory is also host coherent, and is mapped
// for its whole lifetime.
func (d *Driver) newMemory(req vulkan.MemoryRequirements, visible bool) (*memory, error) {
	req.Deref()
	prop := vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
	if visible {
		prop |= vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit)
	}
	typ := d.selectMemory(req.MemoryTypeBits, prop)
	if typ == -1 {
		// Device-local memory is desired but not required.
		prop &^= vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
		if typ = d.selectMemory(req.MemoryTypeBits, prop); typ == -1 {
			return nil, errors.New("vk: no suitable memory type found")
		}
	}
	info := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	m := &memory{d: d, size: int64(req.Size), vis: visible}
	if err := checkResult(vulkan.AllocateMemory(d.h.Device, &info, nil, &m.mem)); err != nil {
		return nil, err
	}
	return m, nil
}

// mmap maps the memory for host access.
// It must be called after the memory is bound.
func (m *memory) mmap() error {
	if !m.vis || len(m.p) != 0 {
		return nil
	}
	var p unsafe.Pointer
	if err := checkResult(vulkan.MapMemory(m.d.h.Device, m.mem, 0, vulkan.DeviceSize(vulkan.WholeSize), 0, &p)); err != nil {
		return err
	}
	m.p = unsafe.Slice((*byte)(p), m.size)
	return nil
}

// free unmaps and deallocates the memory.
func (m *memory) free() {
	if m == nil || m.d == nil {
		return
	}
	if len(m.p) != 0 {
		vulkan.UnmapMemory(m.d.h.Device, m.mem)
	}
	vulkan.FreeMemory(m.d.h.Device, m.mem, nil)
	*m = memory{}
}

// timeoutNanos converts a timeout to the value that
// Vulkan wait commands expect.
func timeoutNanos(timeout time.Duration) uint64 {
	switch {
	case timeout == driver.Infinite:
		return vulkan.MaxUint64
	case timeout <= 0:
		return 0
	}
	return uint64(timeout)
}

// checkResult returns an error derived from a vulkan.Result
// value. If such value does not indicate an error, it returns
// nil instead.
// Suboptimal is a success code; callers that care about it
// must check it themselves.
func checkResult(res vulkan.Result) error {
	switch res {
	case vulkan.Success, vulkan.Suboptimal, vulkan.Incomplete:
		return nil
	case vulkan.Timeout, vulkan.NotReady:
		return driver.ErrTimeout
	case vulkan.ErrorOutOfDate:
		return driver.ErrSwapchain
	case vulkan.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vulkan.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vulkan.ErrorDeviceLost:
		return errors.WithMessage(driver.ErrFatal, "vk: device lost")
	case vulkan.ErrorSurfaceLost:
		return errors.WithMessage(driver.ErrFatal, "vk: surface lost")
	}
	if res > 0 {
		return nil
	}
	return errors.WithMessagef(driver.ErrFatal, "vk: %v", vulkan.Error(res))
}
