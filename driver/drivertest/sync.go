// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"time"

	"github.com/gviegas/gfxsync/driver"
)

// fence implements driver.Fence.
type fence struct {
	g         *GPU
	id        int
	signaled  bool
	pending   bool
	destroyed bool
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultFence); err != nil {
		return nil, err
	}
	return &fence{g: g, id: g.newID(), signaled: signaled}, nil
}

// Wait waits for the fence to become signaled.
func (f *fence) Wait(timeout time.Duration) error {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	expired := false
	if !f.signaled && timeout != driver.Infinite {
		if timeout <= 0 {
			return driver.ErrTimeout
		}
		t := time.AfterFunc(timeout, func() {
			g.mu.Lock()
			expired = true
			g.cond.Broadcast()
			g.mu.Unlock()
		})
		defer t.Stop()
	}
	for !f.signaled && !expired && !g.lost {
		g.cond.Wait()
	}
	switch {
	case f.signaled:
		g.record(OpFenceWait, f.id, -1)
		return nil
	case g.lost:
		return driver.ErrFatal
	}
	return driver.ErrTimeout
}

// Reset unsignals the fence.
func (f *fence) Reset() error {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if f.pending {
		g.violate("fence %d reset while in use", f.id)
	}
	f.signaled = false
	g.record(OpFenceReset, f.id, -1)
	return nil
}

// Signaled returns whether the fence is signaled.
func (f *fence) Signaled() (bool, error) {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return false, driver.ErrFatal
	}
	return f.signaled, nil
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if f.destroyed {
		return
	}
	if f.pending {
		g.violate("fence %d destroyed while in use", f.id)
	}
	f.destroyed = true
	g.live--
}

// sema implements driver.Semaphore.
type sema struct {
	g         *GPU
	id        int
	signaled  bool
	awaited   bool
	destroyed bool
	signals   int
	waits     int
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(FaultSemaphore); err != nil {
		return nil, err
	}
	return &sema{g: g, id: g.newID()}, nil
}

// signal signals s.
// g.mu must be held.
func (g *GPU) signal(s *sema) {
	if s.signaled {
		g.violate("semaphore %d signaled twice without a wait", s.id)
	}
	s.signaled = true
	s.signals++
}

// consume unsignals s.
// g.mu must be held.
func (s *sema) consume() {
	s.signaled = false
	s.awaited = false
	s.waits++
}

// Destroy destroys the semaphore.
func (s *sema) Destroy() {
	if s == nil {
		return
	}
	g := s.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.destroyed {
		return
	}
	if s.awaited {
		g.violate("semaphore %d destroyed with a pending wait", s.id)
	}
	s.destroyed = true
	g.live--
}

// SemaphoreStats returns how many times s was signaled
// and how many times a queue operation waited on it.
func (g *GPU) SemaphoreStats(s driver.Semaphore) (signals, waits int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := s.(*sema)
	return x.signals, x.waits
}

// SemaphoreSignaled returns whether s is currently signaled.
func (g *GPU) SemaphoreSignaled(s driver.Semaphore) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.(*sema).signaled
}
