// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"github.com/pkg/errors"

	"github.com/gviegas/gfxsync/driver"
)

// Semaphore is a GPU-side ordering signal between two
// queue operations. It is never observed from the CPU.
// Each signal must be consumed by exactly one wait, and
// the first operation on a new semaphore must be a signal.
type Semaphore struct {
	s driver.Semaphore
}

// NewSemaphore creates a new unsignaled semaphore.
func NewSemaphore(dev *Device) (*Semaphore, error) {
	s, err := dev.gpu.NewSemaphore()
	if err != nil {
		return nil, errors.Wrap(err, "gfx: new semaphore")
	}
	return &Semaphore{s}, nil
}

// Destroy destroys the semaphore.
// It is safe to call on a nil or destroyed Semaphore.
func (s *Semaphore) Destroy() {
	if s == nil || s.s == nil {
		return
	}
	s.s.Destroy()
	s.s = nil
}
