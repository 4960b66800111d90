// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"errors"
	"testing"
	"time"

	"github.com/gviegas/gfxsync/driver"
	"github.com/gviegas/gfxsync/driver/drivertest"
)

// drawPass records a draw into the framebuffer of the
// image at index.
func drawPass(sc *Swapchain, pass driver.RenderPass) func(*Context, int) error {
	return func(ctx *Context, index int) error {
		ctx.BeginPass(pass, sc.Framebufs()[index], sc.Scissor(),
			driver.ClearColor{0, 0, 0, 1}, driver.ClearDepth{Depth: 1})
		ctx.SetPipeline(&drivertest.Pipeline{Name: "draw"})
		ctx.SetViewportAndScissor(sc.Viewport(), sc.Scissor())
		ctx.Draw(3, 1, 0, 0)
		ctx.EndPass()
		return nil
	}
}

// Acquire with A, submit waiting on A and signaling B
// with fence F, present waiting on B. F is signaled and
// the present executes only after the device completes
// the submission, and reusing the context blocks until
// then.
func TestEndToEnd(t *testing.T) {
	g, dev := newTestDevice(t, drivertest.WithManualCompletion())
	pass := &drivertest.RenderPass{}
	sf := g.NewSurface(tSize)
	setup, setupFence := newTestSync(t, dev)
	sc, err := NewSwapchain(dev, sf, tSize, setup, setupFence, WithImageCount(2), WithRenderPass(pass))
	if err != nil {
		t.Fatalf("NewSwapchain: %v", err)
	}
	defer sc.Destroy()
	// Depth transition.
	if n := g.CompleteAll(); n != 1 {
		t.Fatalf("g.CompleteAll() after NewSwapchain\nhave %d\nwant 1", n)
	}

	ctx, fence := newTestSync(t, dev)
	sems := newTestSemaphores(t, dev, 2)
	a, b := sems[0], sems[1]

	idx, err := sc.AcquireNextImage(a)
	if err != nil {
		t.Fatalf("sc.AcquireNextImage: %v", err)
	}
	if idx != 0 {
		t.Fatalf("sc.AcquireNextImage\nhave %d\nwant 0", idx)
	}
	img := sc.Images()[idx]
	err = ctx.Record(fence, func(ctx *Context) error {
		dev.PipelineBarrier(ctx, driver.SColorOutput, driver.SColorOutput,
			BuildImageBarrier(img, AccessColorTarget, driver.LUndefined, driver.LColorTarget))
		drawPass(sc, pass)(ctx, idx)
		dev.PipelineBarrier(ctx, driver.SColorOutput, driver.SNone,
			BuildImageBarrier(img, driver.ANone, driver.LColorTarget, driver.LPresent))
		return nil
	})
	if err != nil {
		t.Fatalf("ctx.Record: %v", err)
	}
	if err := dev.Submit(ctx, []*Semaphore{a}, []*Semaphore{b}, fence, []driver.Sync{driver.SColorOutput}); err != nil {
		t.Fatalf("dev.Submit: %v", err)
	}
	if err := sc.Present([]*Semaphore{b}, idx); err != nil {
		t.Fatalf("sc.Present: %v", err)
	}

	if ok, _ := fence.Signaled(); ok {
		t.Fatal("fence signaled before the device completed the submission")
	}
	if n := g.Count(drivertest.OpPresent); n != 0 {
		t.Fatalf("g.Count(OpPresent) before completion\nhave %d\nwant 0", n)
	}
	done := make(chan error)
	go func() { done <- ctx.Begin(fence) }()
	if !blocked(done) {
		t.Fatal("ctx.Begin returned before the submission completed")
	}

	// Submission.
	if !g.Complete() {
		t.Fatal("g.Complete() (submission)\nhave false\nwant true")
	}
	if err := <-done; err != nil {
		t.Fatalf("ctx.Begin: %v", err)
	}
	ctx.End()
	if !g.SemaphoreSignaled(b.s) {
		t.Fatal("B not signaled after the submission completed")
	}
	if n := g.Count(drivertest.OpPresent); n != 0 {
		t.Fatalf("g.Count(OpPresent) before present executed\nhave %d\nwant 0", n)
	}
	// Presentation.
	if !g.Complete() {
		t.Fatal("g.Complete() (presentation)\nhave false\nwant true")
	}

	calls := g.Calls()
	// The first Execute is the depth transition.
	exec := indexOf(calls, drivertest.OpExecute, 1)
	pres := indexOf(calls, drivertest.OpPresent, 0)
	if exec < 0 || pres < 0 || pres < exec {
		t.Fatalf("call order\nhave Execute@%d Present@%d\nwant Execute < Present", exec, pres)
	}
	if c := calls[pres]; c.Index != idx {
		t.Fatalf("presented index\nhave %d\nwant %d", c.Index, idx)
	}
	for _, s := range sems {
		if sig, wait := g.SemaphoreStats(s.s); sig != 1 || wait != 1 {
			t.Fatalf("g.SemaphoreStats\nhave %d signals, %d waits\nwant 1, 1", sig, wait)
		}
	}
	if l := g.Layout(img.Native()); l != driver.LPresent {
		t.Fatalf("image layout after present\nhave %s\nwant %s", l, driver.LPresent)
	}
	checkViolations(t, g)
}

// newTestFrames creates a swapchain and n frames in
// flight on it.
func newTestFrames(t *testing.T, g *drivertest.GPU, dev *Device, n int) (*drivertest.Surface, *Frames, driver.RenderPass) {
	t.Helper()
	pass := &drivertest.RenderPass{}
	sf, sc, _, _ := newTestSwapchain(t, g, dev, WithImageCount(3), WithRenderPass(pass))
	f, err := NewFrames(dev, sc, n)
	if err != nil {
		t.Fatalf("NewFrames: %v", err)
	}
	t.Cleanup(func() {
		f.Destroy()
		sc.Destroy()
	})
	return sf, f, pass
}

// checkPairing fails the test if any semaphore used by f
// was signaled and not consumed exactly once.
func checkPairing(t *testing.T, g *drivertest.GPU, f *Frames) {
	t.Helper()
	sems := make([]*Semaphore, 0, len(f.frames)+len(f.render))
	for i := range f.frames {
		sems = append(sems, f.frames[i].acquire)
	}
	sems = append(sems, f.render...)
	for i, s := range sems {
		if sig, wait := g.SemaphoreStats(s.s); sig != wait {
			t.Fatalf("semaphore #%d\nhave %d signals, %d waits\nwant same count", i, sig, wait)
		}
	}
}

func TestFramesDraw(t *testing.T) {
	g, dev := newTestDevice(t)
	_, f, pass := newTestFrames(t, g, dev, 2)
	if n := f.InFlight(); n != 2 {
		t.Fatalf("f.InFlight()\nhave %d\nwant 2", n)
	}

	const n = 20
	for i := 0; i < n; i++ {
		if err := f.Draw(drawPass(f.Swapchain(), pass)); err != nil {
			t.Fatalf("f.Draw #%d: %v", i, err)
		}
	}
	if c := f.Count(); c != n {
		t.Fatalf("f.Count()\nhave %d\nwant %d", c, n)
	}
	dev.WaitIdle()
	if c := g.Count(drivertest.OpPresent); c != n {
		t.Fatalf("g.Count(OpPresent)\nhave %d\nwant %d", c, n)
	}
	for i, img := range f.Swapchain().Images() {
		if l := f.Layout(i); l != driver.LPresent {
			t.Fatalf("f.Layout(%d)\nhave %s\nwant %s", i, l, driver.LPresent)
		}
		if l := g.Layout(img.Native()); l != driver.LPresent {
			t.Fatalf("g.Layout(image %d)\nhave %s\nwant %s", i, l, driver.LPresent)
		}
	}
	checkPairing(t, g, f)
	checkViolations(t, g)
}

func TestFramesResize(t *testing.T) {
	g, dev := newTestDevice(t, drivertest.WithLatency(time.Millisecond))
	sf, f, pass := newTestFrames(t, g, dev, 2)

	for i := 0; i < 4; i++ {
		if err := f.Draw(drawPass(f.Swapchain(), pass)); err != nil {
			t.Fatalf("f.Draw #%d: %v", i, err)
		}
	}
	size := driver.Dim2D{Width: 1280, Height: 720}
	sf.SetSize(size)
	err := f.Draw(drawPass(f.Swapchain(), pass))
	if !IsOutOfDate(err) {
		t.Fatalf("f.Draw after surface resize\nhave %v\nwant out of date error", err)
	}
	if err := f.Resize(size); err != nil {
		t.Fatalf("f.Resize: %v", err)
	}
	for i := 0; i < f.Swapchain().Len(); i++ {
		if l := f.Layout(i); l != driver.LUndefined {
			t.Fatalf("f.Layout(%d) after Resize\nhave %s\nwant %s", i, l, driver.LUndefined)
		}
	}
	for i := 0; i < 4; i++ {
		if err := f.Draw(drawPass(f.Swapchain(), pass)); err != nil {
			t.Fatalf("f.Draw #%d after Resize: %v", i, err)
		}
	}
	if e := f.Swapchain().Extent(); e != size {
		t.Fatalf("f.Swapchain().Extent()\nhave %v\nwant %v", e, size)
	}
	dev.WaitIdle()
	checkPairing(t, g, f)
	checkViolations(t, g)
}

// drawWithin calls f.Draw and fails the test if it does
// not return within a second.
func drawWithin(t *testing.T, f *Frames, body func(*Context, int) error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.Draw(body) }()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("f.Draw blocked")
	}
	return nil
}

// A failing body must not keep the acquired image, or
// the swapchain runs out of images after Len failures.
func TestFramesBodyError(t *testing.T) {
	g, dev := newTestDevice(t)
	_, f, pass := newTestFrames(t, g, dev, 2)
	errBody := errors.New("draw failed")
	sc := f.Swapchain()

	n := 2*sc.Len() + 1
	for i := 0; i < n; i++ {
		err := drawWithin(t, f, func(ctx *Context, _ int) error {
			ctx.SetPipeline(&drivertest.Pipeline{Name: "discarded"})
			return errBody
		})
		if !errors.Is(err, errBody) {
			t.Fatalf("f.Draw #%d with failing body\nhave %v\nwant %v", i, err, errBody)
		}
	}
	if c := f.Count(); c != 0 {
		t.Fatalf("f.Count() after failed frames\nhave %d\nwant 0", c)
	}
	dev.WaitIdle()
	if h := g.Held(sc.sc); h != 0 {
		t.Fatalf("g.Held() after %d failed frames\nhave %d\nwant 0", n, h)
	}
	if c := g.Count(drivertest.OpPresent); c != n {
		t.Fatalf("g.Count(OpPresent) after failed frames\nhave %d\nwant %d", c, n)
	}
	for i := 0; i < sc.Len(); i++ {
		if err := drawWithin(t, f, drawPass(sc, pass)); err != nil {
			t.Fatalf("f.Draw #%d after failed frames: %v", i, err)
		}
	}
	dev.WaitIdle()
	for i, img := range sc.Images() {
		if l := g.Layout(img.Native()); l != driver.LPresent {
			t.Fatalf("g.Layout(image %d)\nhave %s\nwant %s", i, l, driver.LPresent)
		}
	}
	checkPairing(t, g, f)
	checkViolations(t, g)
}

func TestFramesBodyPanic(t *testing.T) {
	g, dev := newTestDevice(t)
	_, f, pass := newTestFrames(t, g, dev, 2)

	func() {
		defer func() {
			if x := recover(); x == nil {
				t.Fatal("f.Draw with panicking body did not panic")
			}
		}()
		f.Draw(func(*Context, int) error { panic("draw panicked") })
	}()
	for i := 0; i < 3; i++ {
		if err := drawWithin(t, f, drawPass(f.Swapchain(), pass)); err != nil {
			t.Fatalf("f.Draw #%d after panic: %v", i, err)
		}
	}
	dev.WaitIdle()
	if h := g.Held(f.Swapchain().sc); h != 0 {
		t.Fatalf("g.Held() after panic\nhave %d\nwant 0", h)
	}
	checkPairing(t, g, f)
	checkViolations(t, g)
}
