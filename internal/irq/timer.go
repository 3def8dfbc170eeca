package irq

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a periodic source that pends one line, the analogue of a hardware
// timer's compare event.
type Timer struct {
	Line   Line
	Period time.Duration
	Clock  clock.Clock
}

// Run pends the line every Period until ctx is done. Ticks that arrive while
// the line is still pending coalesce.
func (t Timer) Run(ctx context.Context, c *Controller) error {
	clk := t.Clock
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(t.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Pend(t.Line)
		}
	}
}
