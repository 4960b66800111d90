// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It owns the single execution queue through which all
// command buffers are submitted and all presentations
// are issued.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	Presenter

	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// NewFence creates a new fence.
	// If signaled is set, the fence starts in the
	// signaled state.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new binary semaphore.
	// It starts unsignaled.
	NewSemaphore() (Semaphore, error)

	// NewCmdBuffer creates a new command buffer.
	// Each call allocates a distinct buffer; no two
	// CmdBuffer values ever alias the same allocation.
	NewCmdBuffer() (CmdBuffer, error)

	// NewImage creates a new 2D image with a single
	// level and a single layer.
	// The image starts in the LUndefined layout.
	NewImage(pf PixelFmt, size Dim2D, usg Usage) (Image, error)

	// NewBuffer creates a new buffer.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewFramebuf creates a new framebuffer for use with
	// the given render pass.
	NewFramebuf(pass RenderPass, iv []ImageView, size Dim2D) (Framebuf, error)

	// Submit enqueues a batch of command buffers on the
	// execution queue.
	// It does not wait for execution to complete.
	Submit(s *Submission) error

	// WaitIdle blocks until all queued work completes.
	WaitIdle() error
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Fence is the interface that defines a CPU-observable
// completion signal.
// The GPU signals a fence when the submission it was
// attached to completes execution.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout expires, in which case it returns
	// ErrTimeout.
	Wait(timeout time.Duration) error

	// Reset puts the fence in the unsignaled state.
	Reset() error

	// Signaled returns whether the fence is signaled.
	// It does not block.
	Signaled() (bool, error)
}

// Semaphore is the interface that defines a GPU-side
// ordering signal between two queue operations.
// Semaphores are never observed from the CPU.
type Semaphore interface {
	Destroyer
}

// Submission describes a batch of command buffers to
// execute on the GPU's queue.
// Execution of Cmd starts only when every semaphore in
// Wait is signaled, gated at the stages in WaitSync
// (one entry per Wait element). Signal semaphores and
// Fence are signaled when execution completes.
// Fence may be nil.
type Submission struct {
	Wait     []Semaphore
	WaitSync []Sync
	Cmd      []CmdBuffer
	Signal   []Semaphore
	Fence    Fence
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// submitted to the GPU for execution. The usage is as follows:
// Reset the command buffer, then call Begin to prepare it for
// recording. Then record commands:
//
//  1. call Barrier to transition resources as needed
//  2. call BeginPass, Set* methods and Draw* commands
//  3. call EndPass
//  4. call Copy* commands outside of render passes
//
// Finally, call End and, if it succeeds, GPU.Submit.
// Recording into a command buffer that has been submitted
// but whose execution has not completed is undefined.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	Begin() error

	// End ends command recording and prepares the
	// command buffer for execution.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error

	// Barrier inserts a pipeline barrier comprised of
	// the given global barriers and image layout
	// transitions.
	// All of them share the before/after stages.
	Barrier(before, after Sync, b []Barrier, t []Transition)

	// BeginPass begins a render pass.
	// clear has one entry per attachment.
	BeginPass(pass RenderPass, fb Framebuf, area Scissor, clear []ClearValue)

	// EndPass ends the current render pass.
	EndPass()

	// SetPipeline sets the pipeline.
	SetPipeline(pl Pipeline)

	// SetDescSets binds descriptor sets to the
	// layout of pl, starting at set index start.
	SetDescSets(pl Pipeline, start int, ds []DescSet)

	// SetViewport sets the bounds of one or more
	// viewports.
	SetViewport(vp []Viewport)

	// SetScissor sets the rectangles of one or more
	// viewport scissors.
	SetScissor(sciss []Scissor)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// PushConstants updates small inline data visible
	// to the given stages of pl.
	PushConstants(pl Pipeline, stages Stage, off int, data []byte)

	// Draw draws primitives.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyBufToImg copies data from a buffer to an
	// image in the LCopyDst layout.
	CopyBufToImg(param *BufImgCopy)
}

// BufferCopy describes the parameters of a copy command
// that copies data from one buffer to another.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// BufImgCopy describes the parameters of a copy command
// that copies data from a buffer to an image.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	Img    Image
	ImgOff Off2D
	Size   Dim2D
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SVertexInput Sync = 1 << iota
	SVertexShading
	SFragmentShading
	SComputeShading
	SColorOutput
	SDSOutput
	SCopy
	SDraw
	SAll
	SNone Sync = 0
)

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AVertexBufRead Access = 1 << iota
	AIndexBufRead
	AConstantRead
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	ACopyRead
	ACopyWrite
	AShaderRead
	AShaderWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LCommon
	LColorTarget
	LDSTarget
	LDSRead
	LCopySrc
	LCopyDst
	LShaderRead
	LPresent
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case LUndefined:
		return "Undefined"
	case LCommon:
		return "Common"
	case LColorTarget:
		return "ColorTarget"
	case LDSTarget:
		return "DSTarget"
	case LDSRead:
		return "DSRead"
	case LCopySrc:
		return "CopySrc"
	case LCopyDst:
		return "CopyDst"
	case LShaderRead:
		return "ShaderRead"
	case LPresent:
		return "Present"
	}
	return "Layout(?)"
}

// Barrier represents a global memory barrier.
type Barrier struct {
	AccessBefore Access
	AccessAfter  Access
}

// Transition represents a layout transition on the whole
// of an image (its only level and layer, and every aspect
// that its format has).
type Transition struct {
	AccessBefore Access
	AccessAfter  Access
	LayoutBefore Layout
	LayoutAfter  Layout
	Img          Image
}

// ClearValue defines the clear value of one render pass
// attachment.
// It is either a ClearColor or a ClearDepth.
type ClearValue interface {
	clearValue()
}

// ClearColor is the ClearValue of a color attachment.
type ClearColor [4]float32

// ClearDepth is the ClearValue of a depth/stencil
// attachment.
type ClearDepth struct {
	Depth   float32
	Stencil uint32
}

func (ClearColor) clearValue() {}
func (ClearDepth) clearValue() {}

// RenderPass is the interface that defines a render pass.
// Render passes are created by the caller's pipeline layer
// and handed over as opaque values.
type RenderPass interface{}

// Pipeline is the interface that defines a GPU pipeline
// (along with its layout).
// Pipelines are created by the caller's pipeline layer
// and handed over as opaque values.
type Pipeline interface{}

// DescSet is the interface that defines a descriptor set.
// Descriptor sets are created by the caller's descriptor
// layer and handed over as opaque values.
type DescSet interface{}

// Framebuf is the interface that defines the render targets
// of a render pass.
type Framebuf interface {
	Destroyer
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample Usage = 1 << iota
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of a copy.
	UCopySrc
	// The resource can be the destination of a copy.
	UCopyDst
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// Buffer is the interface that defines a GPU buffer.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host visible.
	Visible() bool

	// Bytes returns a slice of length Cap referring to the
	// underlying data. If the buffer is not host visible,
	// it returns nil instead.
	Bytes() []byte

	// Cap returns the capacity of the buffer in bytes.
	Cap() int64
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	// Color, 16-bit channels.
	RGBA16f
	// Depth/Stencil.
	D16un
	D32f
	D24unS8ui
	D32fS8ui
)

// IsDS returns whether f is a depth/stencil format.
func (f PixelFmt) IsDS() bool { return f >= D16un && f <= D32fS8ui }

// HasStencil returns whether f has a stencil aspect.
func (f PixelFmt) HasStencil() bool { return f == D24unS8ui || f == D32fS8ui }

// Dim2D is a two-dimensional size.
type Dim2D struct {
	Width, Height int
}

// Off2D is a two-dimensional offset.
type Off2D struct {
	X, Y int
}

// Image is the interface that defines a GPU image.
// The driver does not track image layouts on behalf of
// the caller: every Transition must name the layout the
// image is actually in.
type Image interface {
	Destroyer

	// Format returns the image's pixel format.
	Format() PixelFmt

	// Size returns the image's size.
	Size() Dim2D

	// NewView creates a 2D view of the whole image.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView() (ImageView, error)
}

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the image from which the view was
	// created.
	Image() Image
}
