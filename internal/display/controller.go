package display

import "github.com/sweeney/fall-sensor/internal/critical"

// Controller is the display's foreground and interrupt interface. The matrix
// handle lives behind a critical.Lock owned by the refresh interrupt line.
type Controller struct {
	lock *critical.Lock[Matrix]
}

// NewController wraps an initialized lock.
func NewController(lock *critical.Lock[Matrix]) *Controller {
	return &Controller{lock: lock}
}

// Show requests that frame be rendered from the next refresh tick on.
// Foreground only. Showing the frame already shown changes nothing the
// refresh ticks do.
func (c *Controller) Show(f Frame) {
	c.lock.WithLock(func(m *Matrix) { m.show(f) })
}

// ServiceRefreshTick performs one multiplexing step. Interrupt only.
func (c *Controller) ServiceRefreshTick() {
	c.lock.FromISR(func(m *Matrix) { m.step() })
}

// Clear blanks the matrix immediately. Foreground only.
func (c *Controller) Clear() error {
	var err error
	c.lock.WithLock(func(m *Matrix) { err = m.clear() })
	return err
}

// Frame returns the frame currently being rendered.
func (c *Controller) Frame() Frame {
	var f Frame
	c.lock.WithLock(func(m *Matrix) { f = m.frame })
	return f
}

// Shows returns how many times Show has been called.
func (c *Controller) Shows() int {
	var n int
	c.lock.WithLock(func(m *Matrix) { n = m.shows })
	return n
}

// Fault returns the first line write error seen by the refresh interrupt.
func (c *Controller) Fault() error {
	var err error
	c.lock.WithLock(func(m *Matrix) { err = m.fault })
	return err
}
