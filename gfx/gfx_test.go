// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"errors"
	"testing"
	"time"

	"github.com/gviegas/gfxsync/driver"
	"github.com/gviegas/gfxsync/driver/drivertest"
)

var tSize = driver.Dim2D{Width: 480, Height: 270}

// newTestDevice creates a fake GPU and a Device that
// uses it. Both are released when the test ends.
func newTestDevice(t *testing.T, opts ...drivertest.Option) (*drivertest.GPU, *Device) {
	t.Helper()
	g := drivertest.New(opts...)
	dev, err := NewDevice(g)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(func() {
		// Closing first keeps Destroy from waiting on
		// work that the test left blocked.
		g.Close()
		dev.Destroy()
	})
	return g, dev
}

// newTestSync creates a Context and a Fence.
func newTestSync(t *testing.T, dev *Device) (*Context, *Fence) {
	t.Helper()
	ctx, err := NewContext(dev)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	fence, err := NewFence(dev)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	return ctx, fence
}

// newTestSemaphores creates n semaphores.
func newTestSemaphores(t *testing.T, dev *Device, n int) []*Semaphore {
	t.Helper()
	s := make([]*Semaphore, n)
	for i := range s {
		var err error
		if s[i], err = NewSemaphore(dev); err != nil {
			t.Fatalf("NewSemaphore: %v", err)
		}
	}
	return s
}

// checkViolations fails the test if g detected misuse.
func checkViolations(t *testing.T, g *drivertest.GPU) {
	t.Helper()
	if v := g.Violations(); len(v) != 0 {
		t.Fatalf("g.Violations()\nhave %q\nwant none", v)
	}
}

// blocked reports whether c has not received anything
// within a short period.
func blocked[T any](c <-chan T) bool {
	select {
	case <-c:
		return false
	case <-time.After(25 * time.Millisecond):
		return true
	}
}

// indexOf returns the position of the n-th (from zero)
// call with the given op in calls, or -1.
func indexOf(calls []drivertest.Call, op drivertest.Op, n int) int {
	for i, c := range calls {
		if c.Op != op {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

func TestIsFatal(t *testing.T) {
	for _, x := range [...]struct {
		err         error
		fatal, ood bool
	}{
		{nil, false, false},
		{driver.ErrFatal, true, false},
		{driver.ErrNoDeviceMemory, true, false},
		{driver.ErrNoHostMemory, true, false},
		{driver.ErrSwapchain, false, true},
		{driver.ErrTimeout, false, false},
	} {
		if fatal := IsFatal(x.err); fatal != x.fatal {
			t.Fatalf("IsFatal(%v)\nhave %t\nwant %t", x.err, fatal, x.fatal)
		}
		if ood := IsOutOfDate(x.err); ood != x.ood {
			t.Fatalf("IsOutOfDate(%v)\nhave %t\nwant %t", x.err, ood, x.ood)
		}
	}
}

func TestOpenDevice(t *testing.T) {
	dev, err := OpenDevice("FAKE")
	if err != nil {
		t.Fatalf("OpenDevice(\"FAKE\")\nhave %v\nwant nil", err)
	}
	if s := dev.GPU().Driver().Name(); s != "fake" {
		t.Fatalf("dev.GPU().Driver().Name()\nhave %q\nwant \"fake\"", s)
	}
	dev.Destroy()
	dev.Destroy()

	if _, err := OpenDevice("no such driver"); err == nil {
		t.Fatal("OpenDevice(\"no such driver\")\nhave nil\nwant error")
	}
	if _, err := NewDevice(nil); err == nil {
		t.Fatal("NewDevice(nil)\nhave nil\nwant error")
	}
}

// nilDriver opens with neither a GPU nor an error.
type nilDriver struct{ closed int }

func (d *nilDriver) Open() (driver.GPU, error) { return nil, nil }
func (d *nilDriver) Name() string              { return "gfx-nil-gpu" }
func (d *nilDriver) Close()                    { d.closed++ }

func TestOpenDeviceNilGPU(t *testing.T) {
	drv := &nilDriver{}
	driver.Register(drv)
	dev, err := OpenDevice(drv.Name())
	if !errors.Is(err, errNilGPU) {
		t.Fatalf("OpenDevice(%q)\nhave %v, %v\nwant nil, %v", drv.Name(), dev, err, errNilGPU)
	}
	if drv.closed != 1 {
		t.Fatalf("nilDriver.Close calls\nhave %d\nwant 1", drv.closed)
	}
}
