// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package driver defines the narrow set of interfaces through
// which the synchronization engine reaches a GPU.
// Device bootstrap, pipeline construction and descriptor
// management happen elsewhere; implementations of this package
// receive the resulting handles and expose only what command
// submission, presentation and resource transitions require.
package driver

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Driver is the interface that provides methods for
// loading and unloading an underlying implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver
	// have no effect and must return the same GPU instance.
	// Callers should assume that Open is not safe for
	// parallel execution.
	Open() (GPU, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	Close()
}

// Infinite is the timeout value that never expires.
const Infinite time.Duration = math.MaxInt64

// ErrNotInstalled means that a platform-specific library
// required for the driver to work is not present in the
// system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be
// found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrFatal means that the driver is in an unrecoverable
// state (e.g., the device was lost). Upon encountering
// such an error, the application must destroy everything
// that it created using the driver's GPU and then call
// the Close method.
var ErrFatal = errors.New("driver: fatal error")

// ErrTimeout means that a wait operation did not complete
// within the given timeout.
// Waits issued with Infinite never produce this error.
var ErrTimeout = errors.New("driver: wait timed out")

// Drivers returns the registered Drivers.
// Client code imports specific driver packages, and then
// call this function from init. As such, drivers that do
// not register themselves on init will not be considered
// for selection.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Lookup returns the registered Driver whose name is name,
// or nil if there is no such Driver.
func Lookup(name string) Driver {
	mu.Lock()
	defer mu.Unlock()
	for _, d := range drivers {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// If a driver with the same name has already been
// registered, it will be replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			slog.Warn("driver replaced", "name", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	slog.Debug("driver registered", "name", drv.Name())
}

// Variables used for driver registration.
var (
	mu      sync.Mutex
	drivers []Driver = make([]Driver, 0, 2)
)
