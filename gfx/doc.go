// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package gfx implements the synchronization and resource
// transition layer that sits between a renderer and a
// driver.GPU.
//
// Every frame follows the same order:
//
//	idx, _ := sc.AcquireNextImage(acquire)
//	ctx.Begin(fence) // waits on and resets fence
//	dev.PipelineBarrier(ctx, ..., BuildImageBarrier(img, ...))
//	// record commands
//	ctx.End()
//	dev.Submit(ctx, []*Semaphore{acquire}, []*Semaphore{render}, fence, stages)
//	sc.Present([]*Semaphore{render}, idx)
//
// Frames encodes this order for a fixed number of frames
// in flight.
//
// The package does not track image layouts nor detect
// contract violations, such as recording into a Context
// that is still pending or signaling a Semaphore that
// has no consumer. Such misuse is undefined behavior at
// the driver level.
package gfx
