// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package drivertest provides a fake driver.GPU for testing
// code that records, submits and presents GPU work.
//
// The fake executes submissions on its own goroutine, in
// queue order, honoring semaphore waits the way hardware
// would. Alternatively, with WithManualCompletion, nothing
// executes until the test calls Complete, which makes it
// possible to observe what blocks while the GPU is busy.
//
// Every externally visible operation is appended to a call
// log (see Calls), and misuse that a real driver would leave
// undefined (recording into a pending command buffer,
// signaling a semaphore twice, transitioning an image from
// a layout it is not in) is collected by Violations.
package drivertest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gviegas/gfxsync/driver"
)

const driverName = "fake"

var (
	_ driver.Driver    = (*GPU)(nil)
	_ driver.GPU       = (*GPU)(nil)
	_ driver.Swapchain = (*swapchain)(nil)
	_ driver.CmdBuffer = (*cmdBuffer)(nil)
)

func init() {
	driver.Register(&GPU{conf: defaultConfig()})
}

// Op identifies an operation in the call log.
type Op int

// Operations recorded in the call log.
const (
	OpFenceWait Op = iota
	OpFenceReset
	OpBegin
	OpEnd
	OpReset
	OpSubmit
	OpExecute
	OpAcquire
	OpPresentQueue
	OpPresent
	OpWaitIdle
	OpSwapchain
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case OpFenceWait:
		return "FenceWait"
	case OpFenceReset:
		return "FenceReset"
	case OpBegin:
		return "Begin"
	case OpEnd:
		return "End"
	case OpReset:
		return "Reset"
	case OpSubmit:
		return "Submit"
	case OpExecute:
		return "Execute"
	case OpAcquire:
		return "Acquire"
	case OpPresentQueue:
		return "PresentQueue"
	case OpPresent:
		return "Present"
	case OpWaitIdle:
		return "WaitIdle"
	case OpSwapchain:
		return "Swapchain"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Call is an entry of the call log.
// ID identifies the object that the operation targeted
// (a fence, command buffer, submission or swapchain) and
// Index is an image index for OpAcquire/OpPresent.
type Call struct {
	Op    Op
	ID    int
	Index int
}

// config holds the options of a GPU.
type config struct {
	manual     bool
	latency    time.Duration
	imageCount int
	modes      []driver.PresentMode
	log        *slog.Logger
	faults     map[Fault]int
}

func defaultConfig() config {
	return config{
		imageCount: 3,
		modes:      []driver.PresentMode{driver.PFIFO, driver.PMailbox},
		log:        slog.New(nopHandler{}),
	}
}

// Option configures a GPU.
type Option func(*config)

// WithManualCompletion disables the execution goroutine.
// Queued work only executes when Complete is called.
func WithManualCompletion() Option {
	return func(c *config) { c.manual = true }
}

// WithLatency makes the execution goroutine take d to
// execute each submission.
func WithLatency(d time.Duration) Option {
	return func(c *config) { c.latency = d }
}

// WithImageCount sets the number of images used by
// swapchains that do not request a specific count.
func WithImageCount(n int) Option {
	return func(c *config) { c.imageCount = n }
}

// WithPresentModes sets the presentation modes that the
// fake surfaces support. PFIFO is always supported.
func WithPresentModes(m ...driver.PresentMode) Option {
	return func(c *config) { c.modes = append([]driver.PresentMode{driver.PFIFO}, m...) }
}

// WithLogger sets the logger to which violations and
// executed work are reported.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// GPU implements driver.Driver and driver.GPU.
type GPU struct {
	conf config

	mu   sync.Mutex
	cond *sync.Cond
	open bool
	quit bool
	done chan struct{}
	lost bool

	nextID  int
	ops     int
	live    int
	calls   []Call
	viol    []string
	queue   []*queueOp
	running *queueOp

	// Per-call counts and the count at which the call
	// fails (zero for never).
	faultN [numFaults]int
	failAt [numFaults]int
}

// New creates and opens a new GPU.
func New(opts ...Option) *GPU {
	g := &GPU{conf: defaultConfig()}
	for _, o := range opts {
		o(&g.conf)
	}
	for f, n := range g.conf.faults {
		g.failAt[f] = max(n, 0)
	}
	g.Open()
	return g
}

// Open initializes the driver.
// Unless manual completion was requested, it starts the
// goroutine that executes queued work.
func (g *GPU) Open() (driver.GPU, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return g, nil
	}
	g.cond = sync.NewCond(&g.mu)
	g.open = true
	g.quit = false
	if !g.conf.manual {
		g.done = make(chan struct{})
		go g.run()
	}
	return g, nil
}

// Name returns the driver name.
func (g *GPU) Name() string { return driverName }

// Close stops the execution goroutine.
// Queued work that has not executed is discarded.
func (g *GPU) Close() {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return
	}
	g.quit = true
	g.open = false
	g.cond.Broadcast()
	done := g.done
	g.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Driver returns the receiver (for driver.GPU conformance).
func (g *GPU) Driver() driver.Driver { return g }

// Lose simulates a device loss.
// Blocked waits return driver.ErrFatal, as do all
// subsequent submissions.
func (g *GPU) Lose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lost = true
	g.cond.Broadcast()
}

// Calls returns a copy of the call log.
func (g *GPU) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := make([]Call, len(g.calls))
	copy(c, g.calls)
	return c
}

// Count returns how many times op appears in the call log.
func (g *GPU) Count(op Op) (n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return
}

// Violations returns the misuses detected so far.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := make([]string, len(g.viol))
	copy(v, g.viol)
	return v
}

// Live returns the number of objects created and not
// yet destroyed.
func (g *GPU) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// Pending returns the number of queued operations that
// have not executed yet.
func (g *GPU) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.queue)
	if g.running != nil {
		n++
	}
	return n
}

// newID returns a fresh object identifier and counts
// the object as live.
// g.mu must be held.
func (g *GPU) newID() int {
	g.nextID++
	g.live++
	return g.nextID
}

// record appends to the call log.
// g.mu must be held.
func (g *GPU) record(op Op, id, index int) {
	g.calls = append(g.calls, Call{Op: op, ID: id, Index: index})
}

// violate records a misuse.
// g.mu must be held.
func (g *GPU) violate(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	g.viol = append(g.viol, s)
	g.conf.log.Warn("drivertest: violation", "what", s)
}

// WaitIdle blocks until all queued work executes.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for (len(g.queue) > 0 || g.running != nil) && !g.lost && !g.quit {
		g.cond.Wait()
	}
	if g.lost {
		return driver.ErrFatal
	}
	g.record(OpWaitIdle, 0, -1)
	return nil
}

// nopHandler is a slog.Handler that discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
