// Package irq models a nested-vectored interrupt controller on top of goroutines.
//
// Timer sources pend numbered lines; a single dispatcher services pending,
// unmasked lines most-urgent first. Priorities are non-preemptive: a running
// handler finishes before a more urgent line is picked. Foreground code masks
// a line to obtain exclusive access to whatever that line's handler touches.
package irq

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Line identifies an interrupt source.
type Line int

// MaxLines is the number of lines a Controller supports.
const MaxLines = 32

const noLine Line = -1

// Handler is an interrupt service routine. It runs on the dispatcher and must
// return quickly: no blocking, no logging, no allocation.
type Handler func()

var (
	ErrInvalidLine       = errors.New("irq: invalid line")
	ErrAlreadyRegistered = errors.New("irq: line already registered")
)

type vector struct {
	handler  Handler
	priority uint8
}

// Controller is safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	idle    *sync.Cond // signalled whenever the active line returns
	vectors [MaxLines]*vector
	pending uint32
	masked  [MaxLines]int
	active  Line
	wake    chan struct{}
}

// NewController returns a controller with no lines registered.
func NewController() *Controller {
	c := &Controller{
		active: noLine,
		wake:   make(chan struct{}, 1),
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

// Register installs the handler for a line. Lower priority values are more
// urgent. Each line can be registered once.
func (c *Controller) Register(l Line, priority uint8, h Handler) error {
	if !valid(l) || h == nil {
		return fmt.Errorf("%w: %d", ErrInvalidLine, l)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors[l] != nil {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, l)
	}
	c.vectors[l] = &vector{handler: h, priority: priority}
	return nil
}

// Pend marks the line as pending. Pending is level-coalesced: a line pended
// several times before it is serviced runs once. Never blocks.
func (c *Controller) Pend(l Line) {
	if !valid(l) {
		return
	}
	c.mu.Lock()
	c.pending |= 1 << uint(l)
	c.mu.Unlock()
	c.signal()
}

// Mask defers the line. If its handler is running, Mask waits for it to
// return, so on return no handler for the line is executing or will start
// until the matching Unmask. Masks nest.
func (c *Controller) Mask(l Line) {
	if !valid(l) {
		panic(fmt.Sprintf("irq: mask of invalid line %d", l))
	}
	c.mu.Lock()
	for c.active == l {
		c.idle.Wait()
	}
	c.masked[l]++
	c.mu.Unlock()
}

// Unmask re-enables the line and wakes the dispatcher if it is pending.
func (c *Controller) Unmask(l Line) {
	if !valid(l) {
		panic(fmt.Sprintf("irq: unmask of invalid line %d", l))
	}
	c.mu.Lock()
	if c.masked[l] == 0 {
		c.mu.Unlock()
		panic(fmt.Sprintf("irq: unmask of unmasked line %d", l))
	}
	c.masked[l]--
	wake := c.masked[l] == 0 && c.pending&(1<<uint(l)) != 0
	c.mu.Unlock()
	if wake {
		c.signal()
	}
}

// IsPending reports whether the line is waiting to be serviced.
func (c *Controller) IsPending(l Line) bool {
	if !valid(l) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending&(1<<uint(l)) != 0
}

// DispatchPending services every pending, unmasked line, most urgent first,
// and returns how many handlers ran. Lines pended while it runs are serviced
// in the same call.
func (c *Controller) DispatchPending() int {
	n := 0
	for {
		h := c.claim()
		if h == nil {
			return n
		}
		h()
		n++
		c.mu.Lock()
		c.active = noLine
		c.idle.Broadcast()
		c.mu.Unlock()
	}
}

// claim picks the most urgent serviceable line, clears its pending bit and
// marks it active.
func (c *Controller) claim() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	best := noLine
	for l := Line(0); l < MaxLines; l++ {
		if c.pending&(1<<uint(l)) == 0 || c.masked[l] > 0 || c.vectors[l] == nil {
			continue
		}
		if best == noLine || c.vectors[l].priority < c.vectors[best].priority {
			best = l
		}
	}
	if best == noLine {
		return nil
	}
	c.pending &^= 1 << uint(best)
	c.active = best
	return c.vectors[best].handler
}

// Run is the dispatcher loop. It returns when ctx is done. There must be a
// single dispatcher: do not call DispatchPending while Run is active.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
			c.DispatchPending()
		}
	}
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func valid(l Line) bool {
	return l >= 0 && l < MaxLines
}
