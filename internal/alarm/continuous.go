package alarm

import (
	"fmt"

	"github.com/sweeney/fall-sensor/internal/critical"
)

// Continuous sounds a square wave whose frequency is set by the toggle
// interrupt period, for as long as it is armed.
type Continuous struct {
	lock *critical.Lock[Speaker]
}

// NewContinuous wraps an initialized lock owned by the toggle interrupt line.
func NewContinuous(lock *critical.Lock[Speaker]) *Continuous {
	return &Continuous{lock: lock}
}

// SetArmed enables toggling from the next interrupt tick, or disables it and
// drives the line low before returning so no half cycle is left high.
func (c *Continuous) SetArmed(on bool) error {
	var err error
	c.lock.WithLock(func(s *Speaker) {
		if on {
			s.armed = true
			return
		}
		err = s.silence()
	})
	return err
}

// ServiceToggleTick inverts the speaker line if armed. Interrupt only.
func (c *Continuous) ServiceToggleTick() {
	c.lock.FromISR(func(s *Speaker) {
		if !s.armed || s.fault != nil {
			return
		}
		if err := s.pin.Toggle(); err != nil {
			s.fault = fmt.Errorf("speaker toggle: %w", err)
			return
		}
		s.toggles++
	})
}

// Armed reports whether the tone is enabled.
func (c *Continuous) Armed() bool {
	var on bool
	c.lock.WithLock(func(s *Speaker) { on = s.armed })
	return on
}

// Toggles returns how many edges the interrupt has produced.
func (c *Continuous) Toggles() int {
	var n int
	c.lock.WithLock(func(s *Speaker) { n = s.toggles })
	return n
}

// Fault returns the first line write error seen by the toggle interrupt.
func (c *Continuous) Fault() error {
	var err error
	c.lock.WithLock(func(s *Speaker) { err = s.fault })
	return err
}
