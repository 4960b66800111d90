// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/gviegas/gfxsync/driver"
)

// convSync converts a driver.Sync to a mask of pipeline
// stages.
// driver.SNone means top of pipe in the first scope and
// bottom of pipe in the second, so dst selects which.
func convSync(s driver.Sync, dst bool) vulkan.PipelineStageFlags {
	if s == driver.SNone {
		if dst {
			return vulkan.PipelineStageFlags(vulkan.PipelineStageBottomOfPipeBit)
		}
		return vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit)
	}
	if s&driver.SAll != 0 {
		return vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	}
	var f vulkan.PipelineStageFlagBits
	if s&driver.SVertexInput != 0 {
		f |= vulkan.PipelineStageVertexInputBit
	}
	if s&driver.SVertexShading != 0 {
		f |= vulkan.PipelineStageVertexShaderBit
	}
	if s&driver.SFragmentShading != 0 {
		f |= vulkan.PipelineStageFragmentShaderBit
	}
	if s&driver.SComputeShading != 0 {
		f |= vulkan.PipelineStageComputeShaderBit
	}
	if s&driver.SColorOutput != 0 {
		f |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		f |= vulkan.PipelineStageEarlyFragmentTestsBit | vulkan.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SCopy != 0 {
		f |= vulkan.PipelineStageTransferBit
	}
	if s&driver.SDraw != 0 {
		f |= vulkan.PipelineStageAllGraphicsBit
	}
	return vulkan.PipelineStageFlags(f)
}

// convAccess converts a driver.Access to a mask of memory
// accesses.
func convAccess(a driver.Access) vulkan.AccessFlags {
	var f vulkan.AccessFlagBits
	for _, x := range [...]struct {
		a driver.Access
		f vulkan.AccessFlagBits
	}{
		{driver.AVertexBufRead, vulkan.AccessVertexAttributeReadBit},
		{driver.AIndexBufRead, vulkan.AccessIndexReadBit},
		{driver.AConstantRead, vulkan.AccessUniformReadBit},
		{driver.AColorRead, vulkan.AccessColorAttachmentReadBit},
		{driver.AColorWrite, vulkan.AccessColorAttachmentWriteBit},
		{driver.ADSRead, vulkan.AccessDepthStencilAttachmentReadBit},
		{driver.ADSWrite, vulkan.AccessDepthStencilAttachmentWriteBit},
		{driver.ACopyRead, vulkan.AccessTransferReadBit},
		{driver.ACopyWrite, vulkan.AccessTransferWriteBit},
		{driver.AShaderRead, vulkan.AccessShaderReadBit},
		{driver.AShaderWrite, vulkan.AccessShaderWriteBit},
		{driver.AAnyRead, vulkan.AccessMemoryReadBit},
		{driver.AAnyWrite, vulkan.AccessMemoryWriteBit},
	} {
		if a&x.a != 0 {
			f |= x.f
		}
	}
	return vulkan.AccessFlags(f)
}

// convLayout converts a driver.Layout to an image layout.
func convLayout(l driver.Layout) vulkan.ImageLayout {
	switch l {
	case driver.LCommon:
		return vulkan.ImageLayoutGeneral
	case driver.LColorTarget:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vulkan.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vulkan.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LCopySrc:
		return vulkan.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vulkan.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vulkan.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vulkan.ImageLayoutPresentSrc
	}
	return vulkan.ImageLayoutUndefined
}

// convPixelFmt converts a driver.PixelFmt to a format.
func convPixelFmt(pf driver.PixelFmt) vulkan.Format {
	switch pf {
	case driver.RGBA8un:
		return vulkan.FormatR8g8b8a8Unorm
	case driver.RGBA8sRGB:
		return vulkan.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vulkan.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vulkan.FormatB8g8r8a8Srgb
	case driver.RGBA16f:
		return vulkan.FormatR16g16b16a16Sfloat
	case driver.D16un:
		return vulkan.FormatD16Unorm
	case driver.D32f:
		return vulkan.FormatD32Sfloat
	case driver.D24unS8ui:
		return vulkan.FormatD24UnormS8Uint
	case driver.D32fS8ui:
		return vulkan.FormatD32SfloatS8Uint
	}
	return vulkan.FormatUndefined
}

// pixelFmtOf is the inverse of convPixelFmt.
// It returns driver.FInvalid for formats that have no
// driver.PixelFmt counterpart.
func pixelFmtOf(f vulkan.Format) driver.PixelFmt {
	for pf := driver.RGBA8un; pf <= driver.D32fS8ui; pf++ {
		if convPixelFmt(pf) == f {
			return pf
		}
	}
	return driver.FInvalid
}

// aspectOf returns the aspects that a format has.
func aspectOf(pf driver.PixelFmt) vulkan.ImageAspectFlags {
	switch {
	case pf.HasStencil():
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	case pf.IsDS():
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	}
	return vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
}

// convPresentMode converts a driver.PresentMode to a
// presentation mode.
func convPresentMode(m driver.PresentMode) vulkan.PresentMode {
	switch m {
	case driver.PMailbox:
		return vulkan.PresentModeMailbox
	case driver.PImmediate:
		return vulkan.PresentModeImmediate
	}
	return vulkan.PresentModeFifo
}

// convImageUsage converts a driver.Usage to image usage
// flags.
func convImageUsage(usg driver.Usage, pf driver.PixelFmt) vulkan.ImageUsageFlags {
	var f vulkan.ImageUsageFlagBits
	if usg&driver.UShaderSample != 0 {
		f |= vulkan.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if pf.IsDS() {
			f |= vulkan.ImageUsageDepthStencilAttachmentBit
		} else {
			f |= vulkan.ImageUsageColorAttachmentBit
		}
	}
	if usg&driver.UCopySrc != 0 {
		f |= vulkan.ImageUsageTransferSrcBit
	}
	if usg&driver.UCopyDst != 0 {
		f |= vulkan.ImageUsageTransferDstBit
	}
	return vulkan.ImageUsageFlags(f)
}

// convBufferUsage converts a driver.Usage to buffer usage
// flags.
func convBufferUsage(usg driver.Usage) vulkan.BufferUsageFlags {
	var f vulkan.BufferUsageFlagBits
	if usg&driver.UShaderConst != 0 {
		f |= vulkan.BufferUsageUniformBufferBit
	}
	if usg&driver.UVertexData != 0 {
		f |= vulkan.BufferUsageVertexBufferBit
	}
	if usg&driver.UIndexData != 0 {
		f |= vulkan.BufferUsageIndexBufferBit
	}
	if usg&driver.UCopySrc != 0 {
		f |= vulkan.BufferUsageTransferSrcBit
	}
	if usg&driver.UCopyDst != 0 {
		f |= vulkan.BufferUsageTransferDstBit
	}
	return vulkan.BufferUsageFlags(f)
}

// convStage converts a driver.Stage to shader stage flags.
func convStage(s driver.Stage) vulkan.ShaderStageFlags {
	var f vulkan.ShaderStageFlagBits
	if s&driver.SVertex != 0 {
		f |= vulkan.ShaderStageVertexBit
	}
	if s&driver.SFragment != 0 {
		f |= vulkan.ShaderStageFragmentBit
	}
	if s&driver.SCompute != 0 {
		f |= vulkan.ShaderStageComputeBit
	}
	return vulkan.ShaderStageFlags(f)
}

// convIndexFmt converts a driver.IndexFmt to an index type.
func convIndexFmt(f driver.IndexFmt) vulkan.IndexType {
	if f == driver.Index32 {
		return vulkan.IndexTypeUint32
	}
	return vulkan.IndexTypeUint16
}
