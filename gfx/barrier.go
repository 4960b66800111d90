// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/gviegas/gfxsync/driver"
)

// Access masks of common consumers.
const (
	AccessDepthStencil = driver.ADSRead | driver.ADSWrite
	AccessTransfer     = driver.ACopyWrite
	AccessShaderRead   = driver.AShaderRead
	AccessColorTarget  = driver.AColorRead | driver.AColorWrite
)

// ImageBarrier describes a layout transition of a whole
// image. It is built by BuildImageBarrier and recorded
// by Device.PipelineBarrier, batched with others that
// share the same stages.
type ImageBarrier struct {
	t driver.Transition
}

// BuildImageBarrier creates a barrier that transitions
// img between the given layouts, making it available
// for dstAccess.
// The access to wait on is derived from the source
// layout: only writes need to be made available, since
// reads are ordered by the stage masks alone.
// from must be the layout that img is actually in, or
// driver.LUndefined to discard its contents.
func BuildImageBarrier(img *Image, dstAccess driver.Access, from, to driver.Layout) ImageBarrier {
	return ImageBarrier{driver.Transition{
		AccessBefore: srcAccess(from),
		AccessAfter:  dstAccess,
		LayoutBefore: from,
		LayoutAfter:  to,
		Img:          img.img,
	}}
}

// srcAccess returns the write access implied by l.
func srcAccess(l driver.Layout) driver.Access {
	switch l {
	case driver.LColorTarget:
		return driver.AColorWrite
	case driver.LDSTarget:
		return driver.ADSWrite
	case driver.LCopyDst:
		return driver.ACopyWrite
	case driver.LCommon:
		return driver.AAnyWrite
	}
	return driver.ANone
}

// Old returns the layout transitioned from.
func (b ImageBarrier) Old() driver.Layout { return b.t.LayoutBefore }

// New returns the layout transitioned to.
func (b ImageBarrier) New() driver.Layout { return b.t.LayoutAfter }

// SrcAccess returns the access that the barrier waits on.
func (b ImageBarrier) SrcAccess() driver.Access { return b.t.AccessBefore }

// DstAccess returns the access that the barrier unblocks.
func (b ImageBarrier) DstAccess() driver.Access { return b.t.AccessAfter }
