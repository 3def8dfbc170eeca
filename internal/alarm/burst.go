package alarm

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/fall-sensor/internal/critical"
)

// Burst plays Cycles square-wave periods in the calling goroutine when armed.
// The caller is blocked for 2*Cycles*HalfPeriod; sensor polling stalls for
// that long.
type Burst struct {
	lock       *critical.Lock[Speaker]
	clock      clock.Clock
	halfPeriod time.Duration
	cycles     int
}

// NewBurst wraps an initialized lock.
func NewBurst(lock *critical.Lock[Speaker], clk clock.Clock, halfPeriod time.Duration, cycles int) *Burst {
	if clk == nil {
		clk = clock.New()
	}
	return &Burst{lock: lock, clock: clk, halfPeriod: halfPeriod, cycles: cycles}
}

// SetArmed plays the burst when arming and leaves the line low either way.
func (b *Burst) SetArmed(on bool) error {
	var err error
	b.lock.WithLock(func(s *Speaker) {
		if !on {
			err = s.silence()
			return
		}
		s.armed = true
		for i := 0; i < b.cycles; i++ {
			if err = s.pin.SetHigh(); err != nil {
				err = fmt.Errorf("speaker high: %w", err)
				s.fault = err
				return
			}
			s.toggles++
			b.clock.Sleep(b.halfPeriod)
			if err = s.pin.SetLow(); err != nil {
				err = fmt.Errorf("speaker low: %w", err)
				s.fault = err
				return
			}
			s.toggles++
			b.clock.Sleep(b.halfPeriod)
		}
	})
	return err
}

// Armed reports whether the last request was to arm.
func (b *Burst) Armed() bool {
	var on bool
	b.lock.WithLock(func(s *Speaker) { on = s.armed })
	return on
}

// Fault returns the write error that cut a burst short, if any.
func (b *Burst) Fault() error {
	var err error
	b.lock.WithLock(func(s *Speaker) { err = s.fault })
	return err
}
