// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// State is the state of a Context.
type State int

// Context states.
const (
	Initial State = iota
	Recording
	Executable
	Pending
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Recording:
		return "Recording"
	case Executable:
		return "Executable"
	case Pending:
		return "Pending"
	}
	return "State(?)"
}

// Context is a reusable recording unit that wraps a
// single command buffer.
// Commands recorded into a Context only execute once it
// is submitted through Device.Submit. A Context must not
// be used by more than one goroutine at a time.
type Context struct {
	dev   *Device
	cb    driver.CmdBuffer
	state State
}

// NewContext creates a new Context.
func NewContext(dev *Device) (*Context, error) {
	cb, err := dev.gpu.NewCmdBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new context")
	}
	return &Context{dev: dev, cb: cb}, nil
}

// State returns the state of ctx as of the last call
// that changed it. A Pending context stays Pending until
// the next Begin, regardless of its fence.
func (ctx *Context) State() State { return ctx.state }

// Begin waits on fence, prepares ctx for recording and
// then resets fence.
// fence must be the one given to the last submission of
// ctx, so that waiting on it guarantees that the command
// buffer is no longer in use.
// If Begin fails, fence is left signaled.
func (ctx *Context) Begin(fence *Fence) error {
	if err := fence.Wait(); err != nil {
		return err
	}
	if err := ctx.cb.Reset(); err != nil {
		ctx.state = Initial
		return errors.Wrap(err, "gfx: context reset")
	}
	if err := ctx.cb.Begin(); err != nil {
		ctx.state = Initial
		return errors.Wrap(err, "gfx: context begin")
	}
	ctx.state = Recording
	return fence.Reset()
}

// End ends recording. ctx becomes Executable.
func (ctx *Context) End() error {
	if err := ctx.cb.End(); err != nil {
		return errors.Wrap(err, "gfx: context end")
	}
	ctx.state = Executable
	return nil
}

// Record calls Begin, body and End, in this order.
// End is called on every path, including when body fails
// or panics. In such cases, nothing is submitted, so
// fence is signaled again through an empty submission
// to keep the next Begin from blocking forever.
func (ctx *Context) Record(fence *Fence, body func(*Context) error) (err error) {
	if err = ctx.Begin(fence); err != nil {
		return
	}
	done := false
	defer func() {
		if e := ctx.End(); err == nil {
			err = e
		}
		if !done || err != nil {
			if e := ctx.dev.restore(fence); e != nil {
				Logger().Warn("gfx: fence not restored", "err", e)
			}
		}
	}()
	err = body(ctx)
	done = true
	return
}

// BeginPass begins a render pass.
// clear has one entry per attachment of fb.
func (ctx *Context) BeginPass(pass driver.RenderPass, fb driver.Framebuf, area driver.Scissor, clear ...driver.ClearValue) {
	ctx.cb.BeginPass(pass, fb, area, clear)
}

// EndPass ends the current render pass.
func (ctx *Context) EndPass() { ctx.cb.EndPass() }

// SetPipeline binds a pipeline.
func (ctx *Context) SetPipeline(pl driver.Pipeline) { ctx.cb.SetPipeline(pl) }

// SetDescSets binds descriptor sets starting at set
// index start.
func (ctx *Context) SetDescSets(pl driver.Pipeline, start int, ds ...driver.DescSet) {
	ctx.cb.SetDescSets(pl, start, ds)
}

// SetVertexBuf binds vertex buffers starting at binding
// start. off has one entry per buffer.
func (ctx *Context) SetVertexBuf(start int, buf []*Buffer, off []int64) {
	nb := make([]driver.Buffer, len(buf))
	for i := range buf {
		nb[i] = buf[i].buf
	}
	ctx.cb.SetVertexBuf(start, nb, off)
}

// SetIndexBuf binds the index buffer.
func (ctx *Context) SetIndexBuf(format driver.IndexFmt, buf *Buffer, off int64) {
	ctx.cb.SetIndexBuf(format, buf.buf, off)
}

// SetViewport sets the viewports.
func (ctx *Context) SetViewport(vp ...driver.Viewport) { ctx.cb.SetViewport(vp) }

// SetScissor sets the scissor rectangles.
func (ctx *Context) SetScissor(sciss ...driver.Scissor) { ctx.cb.SetScissor(sciss) }

// SetViewportAndScissor sets a single viewport and
// scissor rectangle. Typically, these come from
// Swapchain.Viewport and Swapchain.Scissor.
func (ctx *Context) SetViewportAndScissor(vp driver.Viewport, sciss driver.Scissor) {
	ctx.cb.SetViewport([]driver.Viewport{vp})
	ctx.cb.SetScissor([]driver.Scissor{sciss})
}

// PushConstants updates push constant data at byte
// offset off.
func (ctx *Context) PushConstants(pl driver.Pipeline, stages driver.Stage, off int, data []byte) {
	ctx.cb.PushConstants(pl, stages, off, data)
}

// Draw draws primitives.
func (ctx *Context) Draw(vertCount, instCount, baseVert, baseInst int) {
	ctx.cb.Draw(vertCount, instCount, baseVert, baseInst)
}

// DrawIndexed draws indexed primitives.
func (ctx *Context) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	ctx.cb.DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst)
}

// CopyBuffer copies size bytes between buffers.
func (ctx *Context) CopyBuffer(from *Buffer, fromOff int64, to *Buffer, toOff int64, size int64) {
	ctx.cb.CopyBuffer(&driver.BufferCopy{
		From:    from.buf,
		FromOff: fromOff,
		To:      to.buf,
		ToOff:   toOff,
		Size:    size,
	})
}

// CopyBufToImg copies buffer data, starting at off, to
// the whole of img, which must be in the
// driver.LCopyDst layout.
func (ctx *Context) CopyBufToImg(buf *Buffer, off int64, img *Image) {
	ctx.cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    buf.buf,
		BufOff: off,
		Img:    img.img,
		Size:   img.Size(),
	})
}

// Destroy destroys the context.
// It must not be Pending.
func (ctx *Context) Destroy() {
	if ctx == nil || ctx.cb == nil {
		return
	}
	ctx.cb.Destroy()
	ctx.cb = nil
}
