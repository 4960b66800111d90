// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"time"

	"github.com/gviegas/gfxsync/driver"
)

type opKind int

const (
	opSubmit opKind = iota
	opPresent
)

// queueOp is an operation in the execution queue.
type queueOp struct {
	kind   opKind
	id     int
	wait   []*sema
	cmd    []*cmdBuffer
	signal []*sema
	fence  *fence
	sc     []*swapchain
	index  []int
}

// ready returns whether every semaphore that op waits on
// has been signaled.
// g.mu must be held.
func (op *queueOp) ready() bool {
	for _, s := range op.wait {
		if !s.signaled {
			return false
		}
	}
	return true
}

// enqueue appends op to the execution queue.
// g.mu must be held.
func (g *GPU) enqueue(op *queueOp) {
	g.queue = append(g.queue, op)
	g.cond.Broadcast()
}

// pop removes the head of the execution queue if it can
// execute.
// g.mu must be held.
func (g *GPU) pop() *queueOp {
	if len(g.queue) == 0 || !g.queue[0].ready() {
		return nil
	}
	op := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	return op
}

// run is the execution goroutine.
func (g *GPU) run() {
	defer close(g.done)
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		var op *queueOp
		for !g.quit {
			if op = g.pop(); op != nil {
				break
			}
			g.cond.Wait()
		}
		if g.quit {
			return
		}
		g.running = op
		if g.conf.latency > 0 && op.kind == opSubmit {
			g.mu.Unlock()
			time.Sleep(g.conf.latency)
			g.mu.Lock()
		}
		g.execute(op)
		g.running = nil
		g.cond.Broadcast()
	}
}

// Complete executes the operation at the head of the queue.
// It returns false if the queue is empty or if the head is
// still waiting on a semaphore.
// It is meant to be used with WithManualCompletion.
func (g *GPU) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	op := g.pop()
	if op == nil {
		return false
	}
	g.execute(op)
	g.cond.Broadcast()
	return true
}

// CompleteAll calls Complete until it returns false and
// returns how many operations executed.
func (g *GPU) CompleteAll() (n int) {
	for g.Complete() {
		n++
	}
	return
}

// execute performs op.
// g.mu must be held.
func (g *GPU) execute(op *queueOp) {
	for _, s := range op.wait {
		s.consume()
	}
	switch op.kind {
	case opSubmit:
		for _, cb := range op.cmd {
			g.replay(cb)
			cb.state = cbExecutable
		}
		for _, s := range op.signal {
			g.signal(s)
		}
		if op.fence != nil {
			op.fence.pending = false
			op.fence.signaled = true
		}
		g.record(OpExecute, op.id, -1)
		g.conf.log.Debug("drivertest: executed", "submission", op.id, "cmds", len(op.cmd))
	case opPresent:
		for i, sc := range op.sc {
			g.release(sc, op.index[i])
		}
	}
}

// Submit enqueues s for execution.
func (g *GPU) Submit(s *driver.Submission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lost {
		return driver.ErrFatal
	}
	if len(s.WaitSync) != len(s.Wait) {
		g.violate("submission has %d wait semaphores but %d wait stages", len(s.Wait), len(s.WaitSync))
	}
	g.ops++
	op := &queueOp{kind: opSubmit, id: g.ops}
	for _, x := range s.Wait {
		w := x.(*sema)
		if w.awaited {
			g.violate("semaphore %d has more than one pending wait", w.id)
		}
		w.awaited = true
		op.wait = append(op.wait, w)
	}
	for _, x := range s.Cmd {
		cb := x.(*cmdBuffer)
		if cb.state != cbExecutable {
			g.violate("cmd buffer %d submitted while %s", cb.id, cb.state)
		}
		cb.state = cbPending
		op.cmd = append(op.cmd, cb)
	}
	for _, x := range s.Signal {
		op.signal = append(op.signal, x.(*sema))
	}
	if s.Fence != nil {
		f := s.Fence.(*fence)
		if f.signaled {
			g.violate("fence %d submitted while signaled", f.id)
		}
		f.pending = true
		op.fence = f
	}
	g.record(OpSubmit, op.id, -1)
	g.enqueue(op)
	return nil
}

// LastSubmission returns the identifier of the most recent
// submission or presentation, as recorded in the call log.
func (g *GPU) LastSubmission() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ops
}
