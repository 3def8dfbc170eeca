// Package board is the explicitly constructed context object that owns every
// peripheral handle. It wires the display and alarm handles into their
// critical locks, registers their service routines with the interrupt
// controller and runs the timer sources that pend them.
package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/fall-sensor/internal/accel"
	"github.com/sweeney/fall-sensor/internal/alarm"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/critical"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/gpio"
	"github.com/sweeney/fall-sensor/internal/irq"
)

// Interrupt lines.
const (
	LineRefresh irq.Line = 0
	LineTone    irq.Line = 1
)

// dispatcherNice is the nice value requested for the dispatcher thread.
const dispatcherNice = -10

// Pins are the output lines the board drives.
type Pins struct {
	Rows    [display.Size]gpio.Pin
	Cols    [display.Size]gpio.Pin
	Speaker gpio.Pin
}

// Board owns the peripherals. Create it with New or Open, call Start once,
// and Close on the way out.
type Board struct {
	IRQ     *irq.Controller
	Sensor  *accel.Device
	Display *display.Controller
	Alarm   alarm.Alarm

	cfg    config.Config
	clock  clock.Clock
	logger *zap.Logger

	// tone is set only for the continuous strategy, which needs its timer.
	tone    *alarm.Continuous
	closers []func() error

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New builds a board around an already open sensor connection and pins.
func New(cfg config.Config, conn accel.Conn, pins Pins, clk clock.Clock, logger *zap.Logger) (*Board, error) {
	if clk == nil {
		clk = clock.New()
	}
	b := &Board{
		IRQ:    irq.NewController(),
		Sensor: accel.New(conn),
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}

	matrix := critical.New[display.Matrix](b.IRQ, LineRefresh)
	matrix.Init(display.NewMatrix(pins.Rows, pins.Cols, cfg.Display.BlinkTicks))
	b.Display = display.NewController(matrix)
	if err := b.IRQ.Register(LineRefresh, cfg.Display.Priority, b.Display.ServiceRefreshTick); err != nil {
		return nil, fmt.Errorf("register display refresh: %w", err)
	}

	speaker := critical.New[alarm.Speaker](b.IRQ, LineTone)
	speaker.Init(alarm.NewSpeaker(pins.Speaker))
	switch cfg.AlarmStrategy() {
	case alarm.StrategyBurst:
		b.Alarm = alarm.NewBurst(speaker, clk, cfg.Alarm.HalfPeriod, cfg.Alarm.BurstCycles)
	default:
		b.tone = alarm.NewContinuous(speaker)
		if err := b.IRQ.Register(LineTone, cfg.Alarm.Priority, b.tone.ServiceToggleTick); err != nil {
			return nil, fmt.Errorf("register alarm tone: %w", err)
		}
		b.Alarm = b.tone
	}
	return b, nil
}

// Start runs the dispatcher and the timer sources until ctx is done or Stop
// is called.
func (b *Board) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := irq.LockThreadPriority(dispatcherNice); err != nil {
			b.logger.Warn("dispatcher priority not raised", zap.Error(err))
		}
		_ = b.IRQ.Run(ctx)
	}()

	b.startTimer(ctx, irq.Timer{Line: LineRefresh, Period: b.cfg.Display.RefreshPeriod, Clock: b.clock})
	if b.tone != nil {
		b.startTimer(ctx, irq.Timer{Line: LineTone, Period: b.cfg.Alarm.HalfPeriod, Clock: b.clock})
	}
	b.logger.Debug("interrupt sources started",
		zap.Duration("refresh_period", b.cfg.Display.RefreshPeriod),
		zap.Bool("tone_timer", b.tone != nil))
}

func (b *Board) startTimer(ctx context.Context, t irq.Timer) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = t.Run(ctx, b.IRQ)
	}()
}

// Stop halts the timers and the dispatcher and waits for them.
func (b *Board) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// Fault returns any write failure latched by a service routine or a burst.
func (b *Board) Fault() error {
	return multierr.Combine(b.Display.Fault(), b.Alarm.Fault())
}

// Shutdown stops interrupt activity, silences the speaker and blanks the
// matrix. Safe to call more than once.
func (b *Board) Shutdown() error {
	b.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil
	}
	b.stopped = true
	return multierr.Combine(b.Alarm.SetArmed(false), b.Display.Clear())
}

// Close shuts down and releases the bus and lines.
func (b *Board) Close() error {
	err := b.Shutdown()
	for i := len(b.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, b.closers[i]())
	}
	b.closers = nil
	return err
}
