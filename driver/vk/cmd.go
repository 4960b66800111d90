// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"unsafe"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	d  *Driver
	cb vulkan.CommandBuffer

	// Barrier data reused across calls.
	mb []vulkan.MemoryBarrier
	ib []vulkan.ImageMemoryBarrier
}

// NewCmdBuffer creates a new command buffer.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cb := make([]vulkan.CommandBuffer, 1)
	d.pmu.Lock()
	err := checkResult(vulkan.AllocateCommandBuffers(d.h.Device, &info, cb))
	d.pmu.Unlock()
	if err != nil {
		return nil, err
	}
	return &cmdBuffer{d: d, cb: cb[0]}, nil
}

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	info := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	return checkResult(vulkan.BeginCommandBuffer(cb.cb, &info))
}

// End ends command recording.
func (cb *cmdBuffer) End() error { return checkResult(vulkan.EndCommandBuffer(cb.cb)) }

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error { return checkResult(vulkan.ResetCommandBuffer(cb.cb, 0)) }

// Barrier inserts a pipeline barrier.
func (cb *cmdBuffer) Barrier(before, after driver.Sync, b []driver.Barrier, t []driver.Transition) {
	cb.mb = cb.mb[:0]
	for _, x := range b {
		cb.mb = append(cb.mb, vulkan.MemoryBarrier{
			SType:         vulkan.StructureTypeMemoryBarrier,
			SrcAccessMask: convAccess(x.AccessBefore),
			DstAccessMask: convAccess(x.AccessAfter),
		})
	}
	cb.ib = cb.ib[:0]
	for _, x := range t {
		img := x.Img.(*image)
		cb.ib = append(cb.ib, vulkan.ImageMemoryBarrier{
			SType:               vulkan.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convAccess(x.AccessBefore),
			DstAccessMask:       convAccess(x.AccessAfter),
			OldLayout:           convLayout(x.LayoutBefore),
			NewLayout:           convLayout(x.LayoutAfter),
			SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
			DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
			Image:               img.img,
			SubresourceRange: vulkan.ImageSubresourceRange{
				AspectMask: aspectOf(img.pf),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}
	vulkan.CmdPipelineBarrier(cb.cb, convSync(before, false), convSync(after, true), 0,
		uint32(len(cb.mb)), cb.mb, 0, nil, uint32(len(cb.ib)), cb.ib)
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, area driver.Scissor, clear []driver.ClearValue) {
	cv := make([]vulkan.ClearValue, len(clear))
	for i, c := range clear {
		switch c := c.(type) {
		case driver.ClearColor:
			cv[i].SetColor(c[:])
		case driver.ClearDepth:
			cv[i].SetDepthStencil(c.Depth, c.Stencil)
		}
	}
	info := vulkan.RenderPassBeginInfo{
		SType:           vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:      pass.(*renderPass).pass,
		Framebuffer:     fb.(*framebuf).fb,
		RenderArea:      convScissor(area),
		ClearValueCount: uint32(len(cv)),
		PClearValues:    cv,
	}
	vulkan.CmdBeginRenderPass(cb.cb, &info, vulkan.SubpassContentsInline)
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() { vulkan.CmdEndRenderPass(cb.cb) }

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*pipeline)
	vulkan.CmdBindPipeline(cb.cb, p.bp, p.pl)
}

// SetDescSets binds descriptor sets.
func (cb *cmdBuffer) SetDescSets(pl driver.Pipeline, start int, ds []driver.DescSet) {
	p := pl.(*pipeline)
	sets := make([]vulkan.DescriptorSet, len(ds))
	for i := range ds {
		sets[i] = ds[i].(*descSet).set
	}
	vulkan.CmdBindDescriptorSets(cb.cb, p.bp, p.layout, uint32(start), uint32(len(sets)), sets, 0, nil)
}

// SetViewport sets the bounds of one or more viewports.
func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	v := make([]vulkan.Viewport, len(vp))
	for i, x := range vp {
		v[i] = vulkan.Viewport{
			X:        x.X,
			Y:        x.Y,
			Width:    x.Width,
			Height:   x.Height,
			MinDepth: x.Znear,
			MaxDepth: x.Zfar,
		}
	}
	vulkan.CmdSetViewport(cb.cb, 0, uint32(len(v)), v)
}

// SetScissor sets the rectangles of one or more scissors.
func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	r := make([]vulkan.Rect2D, len(sciss))
	for i, x := range sciss {
		r[i] = convScissor(x)
	}
	vulkan.CmdSetScissor(cb.cb, 0, uint32(len(r)), r)
}

// SetVertexBuf sets one or more vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	bufs := make([]vulkan.Buffer, len(buf))
	offs := make([]vulkan.DeviceSize, len(buf))
	for i := range buf {
		bufs[i] = buf[i].(*buffer).buf
		offs[i] = vulkan.DeviceSize(off[i])
	}
	vulkan.CmdBindVertexBuffers(cb.cb, uint32(start), uint32(len(bufs)), bufs, offs)
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	vulkan.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vulkan.DeviceSize(off), convIndexFmt(format))
}

// PushConstants updates push constants.
func (cb *cmdBuffer) PushConstants(pl driver.Pipeline, stages driver.Stage, off int, data []byte) {
	if len(data) == 0 {
		return
	}
	p := pl.(*pipeline)
	vulkan.CmdPushConstants(cb.cb, p.layout, convStage(stages), uint32(off), uint32(len(data)), unsafe.Pointer(&data[0]))
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	vulkan.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	vulkan.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	reg := []vulkan.BufferCopy{{
		SrcOffset: vulkan.DeviceSize(param.FromOff),
		DstOffset: vulkan.DeviceSize(param.ToOff),
		Size:      vulkan.DeviceSize(param.Size),
	}}
	vulkan.CmdCopyBuffer(cb.cb, param.From.(*buffer).buf, param.To.(*buffer).buf, 1, reg)
}

// CopyBufToImg copies data from a buffer to an image.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	img := param.Img.(*image)
	reg := []vulkan.BufferImageCopy{{
		BufferOffset: vulkan.DeviceSize(param.BufOff),
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask: aspectOf(img.pf),
			LayerCount: 1,
		},
		ImageOffset: vulkan.Offset3D{X: int32(param.ImgOff.X), Y: int32(param.ImgOff.Y)},
		ImageExtent: vulkan.Extent3D{
			Width:  uint32(param.Size.Width),
			Height: uint32(param.Size.Height),
			Depth:  1,
		},
	}}
	vulkan.CmdCopyBufferToImage(cb.cb, param.Buf.(*buffer).buf, img.img, vulkan.ImageLayoutTransferDstOptimal, 1, reg)
}

// Destroy frees the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil || cb.d == nil {
		return
	}
	cb.d.pmu.Lock()
	vulkan.FreeCommandBuffers(cb.d.h.Device, cb.d.pool, 1, []vulkan.CommandBuffer{cb.cb})
	cb.d.pmu.Unlock()
	*cb = cmdBuffer{}
}

// convScissor converts a driver.Scissor to a rectangle.
func convScissor(s driver.Scissor) vulkan.Rect2D {
	return vulkan.Rect2D{
		Offset: vulkan.Offset2D{X: int32(s.X), Y: int32(s.Y)},
		Extent: vulkan.Extent2D{Width: uint32(s.Width), Height: uint32(s.Height)},
	}
}
