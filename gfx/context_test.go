// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"errors"
	"testing"
	"time"

	"github.com/gviegas/gfxsync/driver"
	"github.com/gviegas/gfxsync/driver/drivertest"
)

func TestContextState(t *testing.T) {
	_, dev := newTestDevice(t)
	ctx, fence := newTestSync(t, dev)
	if s := ctx.State(); s != Initial {
		t.Fatalf("ctx.State() after NewContext\nhave %s\nwant %s", s, Initial)
	}
	if err := ctx.Begin(fence); err != nil {
		t.Fatalf("ctx.Begin: %v", err)
	}
	if s := ctx.State(); s != Recording {
		t.Fatalf("ctx.State() after Begin\nhave %s\nwant %s", s, Recording)
	}
	if err := ctx.End(); err != nil {
		t.Fatalf("ctx.End: %v", err)
	}
	if s := ctx.State(); s != Executable {
		t.Fatalf("ctx.State() after End\nhave %s\nwant %s", s, Executable)
	}
	if err := dev.Submit(ctx, nil, nil, fence, nil); err != nil {
		t.Fatalf("dev.Submit: %v", err)
	}
	if s := ctx.State(); s != Pending {
		t.Fatalf("ctx.State() after Submit\nhave %s\nwant %s", s, Pending)
	}
	if err := ctx.Begin(fence); err != nil {
		t.Fatalf("ctx.Begin: %v", err)
	}
	if s := ctx.State(); s != Recording {
		t.Fatalf("ctx.State() after second Begin\nhave %s\nwant %s", s, Recording)
	}
	ctx.End()
	dev.restore(fence)
	ctx.Destroy()
	ctx.Destroy()
}

// Begin must not return until the device signals the
// fence of the previous submission.
func TestBeginWaitsFence(t *testing.T) {
	g, dev := newTestDevice(t, drivertest.WithManualCompletion())
	ctx, fence := newTestSync(t, dev)

	if err := ctx.Record(fence, func(ctx *Context) error {
		ctx.SetPipeline(&drivertest.Pipeline{Name: "p"})
		return nil
	}); err != nil {
		t.Fatalf("ctx.Record: %v", err)
	}
	if err := dev.Submit(ctx, nil, nil, fence, nil); err != nil {
		t.Fatalf("dev.Submit: %v", err)
	}

	done := make(chan error)
	go func() { done <- ctx.Begin(fence) }()
	if !blocked(done) {
		t.Fatal("ctx.Begin returned before the submission completed")
	}
	if !g.Complete() {
		t.Fatal("g.Complete()\nhave false\nwant true")
	}
	if err := <-done; err != nil {
		t.Fatalf("ctx.Begin: %v", err)
	}
	ctx.End()

	calls := g.Calls()
	exec := indexOf(calls, drivertest.OpExecute, 0)
	// The first FenceWait is that of the first Begin.
	wait := indexOf(calls, drivertest.OpFenceWait, 1)
	begin := indexOf(calls, drivertest.OpBegin, 1)
	if exec < 0 || !(exec < wait && wait < begin) {
		t.Fatalf("call order\nhave Execute@%d FenceWait@%d Begin@%d\nwant Execute < FenceWait < Begin", exec, wait, begin)
	}
	checkViolations(t, g)
}

func TestBeginEndCount(t *testing.T) {
	g, dev := newTestDevice(t)
	ctx, fence := newTestSync(t, dev)
	errBody := errors.New("body failed")

	const n = 12
	for i := 0; i < n; i++ {
		var err error
		switch i % 3 {
		case 0:
			err = ctx.Record(fence, func(ctx *Context) error {
				ctx.SetViewport(driver.Viewport{Width: 1, Height: 1, Zfar: 1})
				return nil
			})
			if err == nil {
				err = dev.Submit(ctx, nil, nil, fence, nil)
			}
		case 1:
			err = ctx.Record(fence, func(*Context) error { return errBody })
			if !errors.Is(err, errBody) {
				t.Fatalf("ctx.Record with failing body\nhave %v\nwant %v", err, errBody)
			}
			err = nil
		case 2:
			func() {
				defer func() {
					if recover() == nil {
						t.Fatal("ctx.Record with panicking body did not panic")
					}
				}()
				ctx.Record(fence, func(*Context) error { panic("body panicked") })
			}()
		}
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if s := ctx.State(); s == Recording {
			t.Fatalf("iteration %d: ctx.State()\nhave %s\nwant not %s", i, s, Recording)
		}
	}
	if err := fence.Wait(); err != nil {
		t.Fatalf("fence.Wait: %v", err)
	}
	begins, ends := g.CmdCounts(ctx.cb)
	if begins != n || ends != n {
		t.Fatalf("g.CmdCounts\nhave %d begins, %d ends\nwant %d, %d", begins, ends, n, n)
	}
	checkViolations(t, g)
}

func TestRecord(t *testing.T) {
	g, dev := newTestDevice(t)
	ctx, fence := newTestSync(t, dev)
	vb, _ := NewBuffer(dev, 256, true, driver.UVertexData)
	ib, _ := NewBuffer(dev, 64, true, driver.UIndexData)
	img, _ := NewImage(dev, Color, driver.Dim2D{Width: 16, Height: 16})
	pass := &drivertest.RenderPass{Name: "pass"}
	fb, err := dev.GPU().NewFramebuf(pass, []driver.ImageView{img.View()}, img.Size())
	if err != nil {
		t.Fatalf("NewFramebuf: %v", err)
	}
	pl := &drivertest.Pipeline{Name: "pl"}
	err = ctx.Record(fence, func(ctx *Context) error {
		ctx.BeginPass(pass, fb, driver.Scissor{Width: 16, Height: 16}, driver.ClearColor{0, 0, 0, 1})
		ctx.SetPipeline(pl)
		ctx.SetDescSets(pl, 0, &drivertest.DescSet{Name: "ds"})
		ctx.SetViewportAndScissor(driver.Viewport{Width: 16, Height: 16, Zfar: 1}, driver.Scissor{Width: 16, Height: 16})
		ctx.SetVertexBuf(0, []*Buffer{vb}, []int64{0})
		ctx.SetIndexBuf(driver.Index16, ib, 0)
		ctx.PushConstants(pl, driver.SVertex, 0, []byte{1, 2, 3, 4})
		ctx.DrawIndexed(6, 1, 0, 0, 0)
		ctx.EndPass()
		return nil
	})
	if err != nil {
		t.Fatalf("ctx.Record: %v", err)
	}
	want := []string{
		"BeginPass",
		"SetPipeline",
		"SetDescSets",
		"SetViewport",
		"SetScissor",
		"SetVertexBuf",
		"SetIndexBuf",
		"PushConstants",
		"DrawIndexed",
		"EndPass",
	}
	cmds := g.Commands(ctx.cb)
	if len(cmds) != len(want) {
		t.Fatalf("len(g.Commands(ctx.cb))\nhave %d\nwant %d", len(cmds), len(want))
	}
	for i := range want {
		if cmds[i].Name != want[i] {
			t.Fatalf("g.Commands(ctx.cb)[%d].Name\nhave %s\nwant %s", i, cmds[i].Name, want[i])
		}
	}
	if s := string(cmds[7].Data); s != "\x01\x02\x03\x04" {
		t.Fatalf("PushConstants data\nhave %q\nwant %q", s, "\x01\x02\x03\x04")
	}
	// Recorded commands have no effect until submitted.
	if n := g.Count(drivertest.OpSubmit); n != 0 {
		t.Fatalf("g.Count(OpSubmit)\nhave %d\nwant 0", n)
	}
	dev.Submit(ctx, nil, nil, fence, nil)
	fence.Wait()
	checkViolations(t, g)
	fb.Destroy()
	img.Destroy()
	vb.Destroy()
	ib.Destroy()
}

func TestCopyBuffer(t *testing.T) {
	g, dev := newTestDevice(t)
	ctx, fence := newTestSync(t, dev)
	src, _ := NewBuffer(dev, 64, true, driver.UCopySrc)
	dst, _ := NewBuffer(dev, 64, true, driver.UCopyDst)
	for i := range src.Bytes() {
		src.Bytes()[i] = byte(i)
	}
	err := ctx.Record(fence, func(ctx *Context) error {
		ctx.CopyBuffer(src, 16, dst, 0, 32)
		dev.MemoryBarrier(ctx, driver.SCopy, driver.SVertexInput, driver.ACopyWrite, driver.AVertexBufRead)
		return nil
	})
	if err != nil {
		t.Fatalf("ctx.Record: %v", err)
	}
	dev.Submit(ctx, nil, nil, fence, nil)
	if err := fence.Wait(); err != nil {
		t.Fatalf("fence.Wait: %v", err)
	}
	for i, b := range dst.Bytes()[:32] {
		if b != byte(i+16) {
			t.Fatalf("dst.Bytes()[%d]\nhave %d\nwant %d", i, b, i+16)
		}
	}
	cmds := g.Commands(ctx.cb)
	if len(cmds) != 2 || len(cmds[1].Barriers) != 1 || cmds[1].Barriers[0].AccessAfter != driver.AVertexBufRead {
		t.Fatalf("g.Commands(ctx.cb)\nhave %+v\nwant CopyBuffer followed by one global barrier", cmds)
	}
	checkViolations(t, g)
}

// A Begin that fails must leave the fence signaled, so
// that a later Begin does not wait forever.
func TestBeginFailure(t *testing.T) {
	g, dev := newTestDevice(t)
	ctx, fence := newTestSync(t, dev)
	defer ctx.Destroy()
	defer fence.Destroy()

	g.Fail(drivertest.FaultBegin, 1)
	if err := ctx.Begin(fence); !errors.Is(err, driver.ErrNoDeviceMemory) {
		t.Fatalf("ctx.Begin\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
	if ok, _ := fence.Signaled(); !ok {
		t.Fatal("fence.Signaled() after failed Begin\nhave false\nwant true")
	}
	if s := ctx.State(); s != Initial {
		t.Fatalf("ctx.State() after failed Begin\nhave %s\nwant %s", s, Initial)
	}

	g.Fail(drivertest.FaultBegin, 1)
	err := ctx.Record(fence, func(*Context) error {
		t.Fatal("Record called body after Begin failed")
		return nil
	})
	if err == nil {
		t.Fatal("ctx.Record with failing Begin\nhave nil\nwant error")
	}

	done := make(chan error, 1)
	go func() { done <- ctx.Record(fence, func(*Context) error { return nil }) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ctx.Record after failures: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ctx.Record after failed Begin blocked on the fence")
	}
	if err := dev.Submit(ctx, nil, nil, fence, nil); err != nil {
		t.Fatalf("dev.Submit: %v", err)
	}
	dev.WaitIdle()
	checkViolations(t, g)
}
