// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gviegas/gfxsync/driver"
)

func TestRegistered(t *testing.T) {
	drv := driver.Lookup(driverName)
	if drv == nil {
		t.Fatalf("driver.Lookup(%q)\nhave nil\nwant non-nil", driverName)
	}
	if s := drv.Name(); s != driverName {
		t.Fatalf("drv.Name()\nhave %q\nwant %q", s, driverName)
	}
}

// recordEmpty begins and ends cb with no commands.
func recordEmpty(t *testing.T, cb driver.CmdBuffer) {
	t.Helper()
	if err := cb.Begin(); err != nil {
		t.Fatalf("cb.Begin(): %v", err)
	}
	if err := cb.End(); err != nil {
		t.Fatalf("cb.End(): %v", err)
	}
}

func TestFence(t *testing.T) {
	g := New(WithManualCompletion())
	defer g.Close()

	f, _ := g.NewFence(true)
	if err := f.Wait(driver.Infinite); err != nil {
		t.Fatalf("f.Wait(Infinite) on signaled fence\nhave %v\nwant nil", err)
	}
	f.Reset()
	if err := f.Wait(time.Millisecond); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("f.Wait(1ms) on unsignaled fence\nhave %v\nwant %v", err, driver.ErrTimeout)
	}

	cb, _ := g.NewCmdBuffer()
	recordEmpty(t, cb)
	if err := g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("g.Submit: %v", err)
	}
	if ok, _ := f.Signaled(); ok {
		t.Fatal("f.Signaled() before completion\nhave true\nwant false")
	}

	done := make(chan error)
	go func() { done <- f.Wait(driver.Infinite) }()
	select {
	case err := <-done:
		t.Fatalf("f.Wait returned before completion: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	if !g.Complete() {
		t.Fatal("g.Complete()\nhave false\nwant true")
	}
	if err := <-done; err != nil {
		t.Fatalf("f.Wait after completion\nhave %v\nwant nil", err)
	}
	if n := len(g.Violations()); n != 0 {
		t.Fatalf("g.Violations()\nhave %v\nwant none", g.Violations())
	}

	f.Destroy()
	cb.Destroy()
	if n := g.Live(); n != 0 {
		t.Fatalf("g.Live()\nhave %d\nwant 0", n)
	}
}

func TestSemaphore(t *testing.T) {
	g := New(WithManualCompletion())
	defer g.Close()

	s, _ := g.NewSemaphore()
	cb1, _ := g.NewCmdBuffer()
	cb2, _ := g.NewCmdBuffer()
	recordEmpty(t, cb1)
	recordEmpty(t, cb2)

	// The consumer is queued first, so it must not run
	// until the producer signals s.
	g.Submit(&driver.Submission{
		Wait:     []driver.Semaphore{s},
		WaitSync: []driver.Sync{driver.SAll},
		Cmd:      []driver.CmdBuffer{cb2},
	})
	if g.Complete() {
		t.Fatal("g.Complete() with unsignaled wait\nhave true\nwant false")
	}
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb1}, Signal: []driver.Semaphore{s}})
	if n := g.Pending(); n != 2 {
		t.Fatalf("g.Pending()\nhave %d\nwant 2", n)
	}
}

func TestSemaphoreOrder(t *testing.T) {
	g := New()
	defer g.Close()

	s, _ := g.NewSemaphore()
	f, _ := g.NewFence(false)
	cb1, _ := g.NewCmdBuffer()
	cb2, _ := g.NewCmdBuffer()
	recordEmpty(t, cb1)
	recordEmpty(t, cb2)
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb1}, Signal: []driver.Semaphore{s}})
	g.Submit(&driver.Submission{
		Wait:     []driver.Semaphore{s},
		WaitSync: []driver.Sync{driver.SAll},
		Cmd:      []driver.CmdBuffer{cb2},
		Fence:    f,
	})
	if err := f.Wait(time.Second); err != nil {
		t.Fatalf("f.Wait: %v", err)
	}
	if sig, wait := g.SemaphoreStats(s); sig != 1 || wait != 1 {
		t.Fatalf("g.SemaphoreStats(s)\nhave %d, %d\nwant 1, 1", sig, wait)
	}
	if g.SemaphoreSignaled(s) {
		t.Fatal("g.SemaphoreSignaled(s)\nhave true\nwant false")
	}
	if n := g.Count(OpExecute); n != 2 {
		t.Fatalf("g.Count(OpExecute)\nhave %d\nwant 2", n)
	}
}

func TestViolations(t *testing.T) {
	g := New(WithManualCompletion())
	defer g.Close()

	cb, _ := g.NewCmdBuffer()
	cb.Draw(3, 1, 0, 0)
	if v := g.Violations(); len(v) != 1 || !strings.Contains(v[0], "recorded while initial") {
		t.Fatalf("g.Violations() after Draw outside Begin\nhave %v\nwant [... recorded while initial]", v)
	}

	s, _ := g.NewSemaphore()
	recordEmpty(t, cb)
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Signal: []driver.Semaphore{s}})
	cb.Begin()
	if v := g.Violations(); len(v) != 2 || !strings.Contains(v[1], "begun while pending") {
		t.Fatalf("g.Violations() after Begin while pending\nhave %v\nwant [... begun while pending]", v)
	}
	cb.End()
	g.Complete()
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Signal: []driver.Semaphore{s}})
	g.Complete()
	if v := g.Violations(); len(v) != 3 || !strings.Contains(v[2], "signaled twice") {
		t.Fatalf("g.Violations() after double signal\nhave %v\nwant [... signaled twice ...]", v)
	}
}

func TestLayout(t *testing.T) {
	g := New(WithManualCompletion())
	defer g.Close()

	img, err := g.NewImage(driver.RGBA8un, driver.Dim2D{Width: 64, Height: 64}, driver.UGeneric)
	if err != nil {
		t.Fatalf("g.NewImage: %v", err)
	}
	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.Barrier(driver.SNone, driver.SCopy, nil, []driver.Transition{{
		AccessAfter:  driver.ACopyWrite,
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCopyDst,
		Img:          img,
	}})
	cb.Barrier(driver.SCopy, driver.SFragmentShading, nil, []driver.Transition{{
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.AShaderRead,
		LayoutBefore: driver.LCopyDst,
		LayoutAfter:  driver.LShaderRead,
		Img:          img,
	}})
	cb.End()
	if l := g.Layout(img); l != driver.LUndefined {
		t.Fatalf("g.Layout(img) before execution\nhave %s\nwant %s", l, driver.LUndefined)
	}
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}})
	g.Complete()
	if l := g.Layout(img); l != driver.LShaderRead {
		t.Fatalf("g.Layout(img)\nhave %s\nwant %s", l, driver.LShaderRead)
	}
	if v := g.Violations(); len(v) != 0 {
		t.Fatalf("g.Violations()\nhave %v\nwant none", v)
	}

	cb.Begin()
	cb.Barrier(driver.SCopy, driver.SFragmentShading, nil, []driver.Transition{{
		LayoutBefore: driver.LCopyDst,
		LayoutAfter:  driver.LShaderRead,
		Img:          img,
	}})
	cb.End()
	g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}})
	g.Complete()
	if v := g.Violations(); len(v) != 1 || !strings.Contains(v[0], "while in ShaderRead") {
		t.Fatalf("g.Violations() after stale transition\nhave %v\nwant [... while in ShaderRead]", v)
	}
}

// presentable transitions img to LPresent using cb.
func presentable(t *testing.T, g *GPU, cb driver.CmdBuffer, img driver.Image, wait driver.Semaphore, signal driver.Semaphore) {
	t.Helper()
	cb.Begin()
	cb.Barrier(driver.SColorOutput, driver.SColorOutput, nil, []driver.Transition{{
		AccessAfter:  driver.AColorWrite,
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LPresent,
		Img:          img,
	}})
	cb.End()
	if err := g.Submit(&driver.Submission{
		Wait:     []driver.Semaphore{wait},
		WaitSync: []driver.Sync{driver.SColorOutput},
		Cmd:      []driver.CmdBuffer{cb},
		Signal:   []driver.Semaphore{signal},
	}); err != nil {
		t.Fatalf("g.Submit: %v", err)
	}
}

func TestSwapchain(t *testing.T) {
	g := New()
	defer g.Close()

	sf := g.NewSurface(driver.Dim2D{Width: 320, Height: 240})
	sc, err := g.NewSwapchain(sf, &driver.SwapchainConf{ImageCount: 2, Mode: driver.PImmediate}, nil)
	if err != nil {
		t.Fatalf("g.NewSwapchain: %v", err)
	}
	defer sc.Destroy()
	if n := len(sc.Images()); n != 2 {
		t.Fatalf("len(sc.Images())\nhave %d\nwant 2", n)
	}
	if m := sc.Mode(); m != driver.PFIFO {
		t.Fatalf("sc.Mode() for unsupported mode\nhave %s\nwant %s", m, driver.PFIFO)
	}

	acq := make([]driver.Semaphore, 3)
	rel := make([]driver.Semaphore, 3)
	for i := range acq {
		acq[i], _ = g.NewSemaphore()
		rel[i], _ = g.NewSemaphore()
	}
	i0, err := sc.Next(acq[0], driver.Infinite)
	if err != nil {
		t.Fatalf("sc.Next: %v", err)
	}
	i1, err := sc.Next(acq[1], driver.Infinite)
	if err != nil {
		t.Fatalf("sc.Next: %v", err)
	}
	if i0 == i1 {
		t.Fatalf("sc.Next twice\nhave %d, %d\nwant distinct indices", i0, i1)
	}
	if _, err := sc.Next(acq[2], 10*time.Millisecond); !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("sc.Next with every image held\nhave %v\nwant %v", err, driver.ErrTimeout)
	}

	cb, _ := g.NewCmdBuffer()
	presentable(t, g, cb, sc.Images()[i0], acq[0], rel[0])
	if err := g.Present([]driver.Semaphore{rel[0]}, []driver.Swapchain{sc}, []int{i0}); err != nil {
		t.Fatalf("g.Present: %v", err)
	}
	i2, err := sc.Next(acq[2], time.Second)
	if err != nil {
		t.Fatalf("sc.Next after Present\nhave %v\nwant nil", err)
	}
	if i2 != i0 {
		t.Fatalf("sc.Next after Present\nhave %d\nwant %d", i2, i0)
	}
	if v := g.Violations(); len(v) != 0 {
		t.Fatalf("g.Violations()\nhave %v\nwant none", v)
	}

	sf.SetSize(driver.Dim2D{Width: 640, Height: 480})
	if _, err := sc.Next(acq[0], 0); !errors.Is(err, driver.ErrSwapchain) {
		t.Fatalf("sc.Next after surface resize\nhave %v\nwant %v", err, driver.ErrSwapchain)
	}
	g.WaitIdle()
}

func TestLose(t *testing.T) {
	g := New(WithManualCompletion())
	defer g.Close()

	f, _ := g.NewFence(false)
	done := make(chan error)
	go func() { done <- f.Wait(driver.Infinite) }()
	time.Sleep(10 * time.Millisecond)
	g.Lose()
	if err := <-done; !errors.Is(err, driver.ErrFatal) {
		t.Fatalf("f.Wait after g.Lose()\nhave %v\nwant %v", err, driver.ErrFatal)
	}
	if err := g.Submit(&driver.Submission{}); !errors.Is(err, driver.ErrFatal) {
		t.Fatalf("g.Submit after g.Lose()\nhave %v\nwant %v", err, driver.ErrFatal)
	}
}

func TestFault(t *testing.T) {
	g := New(WithManualCompletion(), WithFault(FaultSemaphore, 2))
	defer g.Close()

	s1, err := g.NewSemaphore()
	if err != nil {
		t.Fatalf("g.NewSemaphore #1\nhave %v\nwant nil", err)
	}
	if _, err := g.NewSemaphore(); !errors.Is(err, driver.ErrNoDeviceMemory) {
		t.Fatalf("g.NewSemaphore #2\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
	s3, err := g.NewSemaphore()
	if err != nil {
		t.Fatalf("g.NewSemaphore #3\nhave %v\nwant nil", err)
	}
	if n := g.Live(); n != 2 {
		t.Fatalf("g.Live()\nhave %d\nwant 2", n)
	}
	s1.Destroy()
	s3.Destroy()

	img, _ := g.NewImage(driver.RGBA8un, driver.Dim2D{Width: 4, Height: 4}, driver.URenderTarget)
	g.Fail(FaultView, 1)
	if _, err := img.NewView(); !errors.Is(err, driver.ErrNoDeviceMemory) {
		t.Fatalf("img.NewView\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
	v, err := img.NewView()
	if err != nil {
		t.Fatalf("img.NewView after failure\nhave %v\nwant nil", err)
	}
	v.Destroy()
	img.Destroy()

	cb, _ := g.NewCmdBuffer()
	g.Fail(FaultBegin, 1)
	if err := cb.Begin(); !errors.Is(err, driver.ErrNoDeviceMemory) {
		t.Fatalf("cb.Begin\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
	g.Fail(FaultBegin, 2)
	g.Fail(FaultBegin, 0)
	recordEmpty(t, cb)
	cb.Destroy()

	if n := g.Live(); n != 0 {
		t.Fatalf("g.Live()\nhave %d\nwant 0", n)
	}
	if v := g.Violations(); len(v) != 0 {
		t.Fatalf("g.Violations()\nhave %v\nwant none", v)
	}
}
