// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"github.com/gviegas/gfxsync/driver"
)

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

func (s cbState) String() string {
	switch s {
	case cbInitial:
		return "initial"
	case cbRecording:
		return "recording"
	case cbExecutable:
		return "executable"
	case cbPending:
		return "pending"
	}
	return "?"
}

// Command is a command recorded into a command buffer.
// Fields other than Name are set only for commands that
// use them.
type Command struct {
	Name        string
	Before      driver.Sync
	After       driver.Sync
	Barriers    []driver.Barrier
	Transitions []driver.Transition
	Pipeline    driver.Pipeline
	Data        []byte
	Count       int

	pass    *RenderPass
	fb      *framebuf
	bufCopy driver.BufferCopy
	imgCopy driver.BufImgCopy
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	g         *GPU
	id        int
	state     cbState
	inPass    bool
	cmds      []Command
	begins    int
	ends      int
	destroyed bool
}

// NewCmdBuffer creates a new command buffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultCmdBuffer); err != nil {
		return nil, err
	}
	return &cmdBuffer{g: g, id: g.newID()}, nil
}

// Begin begins recording.
func (cb *cmdBuffer) Begin() error {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultBegin); err != nil {
		return err
	}
	switch cb.state {
	case cbPending, cbRecording:
		g.violate("cmd buffer %d begun while %s", cb.id, cb.state)
	}
	cb.cmds = cb.cmds[:0]
	cb.inPass = false
	cb.state = cbRecording
	cb.begins++
	g.record(OpBegin, cb.id, -1)
	return nil
}

// End ends recording.
func (cb *cmdBuffer) End() error {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb.state != cbRecording {
		g.violate("cmd buffer %d ended while %s", cb.id, cb.state)
	}
	if cb.inPass {
		g.violate("cmd buffer %d ended inside a render pass", cb.id)
	}
	cb.state = cbExecutable
	cb.ends++
	g.record(OpEnd, cb.id, -1)
	return nil
}

// Reset discards recorded commands.
func (cb *cmdBuffer) Reset() error {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb.state == cbPending {
		g.violate("cmd buffer %d reset while pending", cb.id)
	}
	cb.cmds = nil
	cb.inPass = false
	cb.state = cbInitial
	g.record(OpReset, cb.id, -1)
	return nil
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil {
		return
	}
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb.destroyed {
		return
	}
	if cb.state == cbPending {
		g.violate("cmd buffer %d destroyed while pending", cb.id)
	}
	cb.destroyed = true
	g.live--
}

// add appends c to the command buffer.
// pass is the render pass state that c requires:
// 1 for inside, -1 for outside and 0 for either.
func (cb *cmdBuffer) add(c Command, pass int) {
	g := cb.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb.state != cbRecording {
		g.violate("cmd buffer %d: %s recorded while %s", cb.id, c.Name, cb.state)
		return
	}
	switch {
	case pass > 0 && !cb.inPass:
		g.violate("cmd buffer %d: %s outside of render pass", cb.id, c.Name)
	case pass < 0 && cb.inPass:
		g.violate("cmd buffer %d: %s inside of render pass", cb.id, c.Name)
	}
	switch c.Name {
	case "BeginPass":
		cb.inPass = true
	case "EndPass":
		cb.inPass = false
	}
	cb.cmds = append(cb.cmds, c)
}

// Barrier records a pipeline barrier.
func (cb *cmdBuffer) Barrier(before, after driver.Sync, b []driver.Barrier, t []driver.Transition) {
	cb.add(Command{
		Name:        "Barrier",
		Before:      before,
		After:       after,
		Barriers:    append([]driver.Barrier(nil), b...),
		Transitions: append([]driver.Transition(nil), t...),
	}, -1)
}

// BeginPass records the start of a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, _ driver.Scissor, clear []driver.ClearValue) {
	c := Command{Name: "BeginPass", Count: len(clear)}
	c.pass, _ = pass.(*RenderPass)
	c.fb, _ = fb.(*framebuf)
	cb.add(c, -1)
}

// EndPass records the end of a render pass.
func (cb *cmdBuffer) EndPass() { cb.add(Command{Name: "EndPass"}, 1) }

// SetPipeline records a pipeline bind.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.add(Command{Name: "SetPipeline", Pipeline: pl}, 0)
}

// SetDescSets records a descriptor set bind.
func (cb *cmdBuffer) SetDescSets(pl driver.Pipeline, start int, ds []driver.DescSet) {
	cb.add(Command{Name: "SetDescSets", Pipeline: pl, Count: len(ds)}, 0)
}

// SetViewport records a viewport update.
func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	cb.add(Command{Name: "SetViewport", Count: len(vp)}, 0)
}

// SetScissor records a scissor update.
func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	cb.add(Command{Name: "SetScissor", Count: len(sciss)}, 0)
}

// SetVertexBuf records a vertex buffer bind.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	cb.add(Command{Name: "SetVertexBuf", Count: len(buf)}, 0)
}

// SetIndexBuf records an index buffer bind.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.add(Command{Name: "SetIndexBuf", Count: int(format)}, 0)
}

// PushConstants records a push constant update.
func (cb *cmdBuffer) PushConstants(pl driver.Pipeline, stages driver.Stage, off int, data []byte) {
	cb.add(Command{
		Name:     "PushConstants",
		Pipeline: pl,
		Data:     append([]byte(nil), data...),
		Count:    off,
	}, 0)
}

// Draw records a draw.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.add(Command{Name: "Draw", Count: vertCount}, 1)
}

// DrawIndexed records an indexed draw.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.add(Command{Name: "DrawIndexed", Count: idxCount}, 1)
}

// CopyBuffer records a buffer copy.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.add(Command{Name: "CopyBuffer", bufCopy: *param}, -1)
}

// CopyBufToImg records a buffer to image copy.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	cb.add(Command{Name: "CopyBufToImg", imgCopy: *param}, -1)
}

// replay executes the commands of cb.
// Only commands with observable effects are replayed:
// layout transitions, render pass final layouts and
// buffer copies.
// g.mu must be held.
func (g *GPU) replay(cb *cmdBuffer) {
	for i := range cb.cmds {
		c := &cb.cmds[i]
		switch c.Name {
		case "Barrier":
			for _, t := range c.Transitions {
				img := t.Img.(*image)
				if t.LayoutBefore != driver.LUndefined && img.layout != t.LayoutBefore {
					g.violate("image %d transitioned from %s while in %s", img.id, t.LayoutBefore, img.layout)
				}
				img.layout = t.LayoutAfter
			}
		case "BeginPass":
			if c.pass == nil || c.fb == nil {
				continue
			}
			for j, l := range c.pass.Final {
				if j < len(c.fb.views) && l != driver.LUndefined {
					c.fb.views[j].img.layout = l
				}
			}
		case "CopyBuffer":
			p := &c.bufCopy
			from, to := p.From.(*buffer), p.To.(*buffer)
			copy(to.data[p.ToOff:p.ToOff+p.Size], from.data[p.FromOff:p.FromOff+p.Size])
		case "CopyBufToImg":
			img := c.imgCopy.Img.(*image)
			if img.layout != driver.LCopyDst {
				g.violate("image %d copied to while in %s", img.id, img.layout)
			}
		}
	}
}

// Commands returns a copy of the commands currently
// recorded into cb.
func (g *GPU) Commands(cb driver.CmdBuffer) []Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := cb.(*cmdBuffer)
	return append([]Command(nil), x.cmds...)
}

// CmdCounts returns how many times cb was begun and ended.
func (g *GPU) CmdCounts(cb driver.CmdBuffer) (begins, ends int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := cb.(*cmdBuffer)
	return x.begins, x.ends
}
