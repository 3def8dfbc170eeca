package board

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/fall-sensor/internal/alarm"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/gpio"
)

// nopConn answers every read with zeros.
type nopConn struct{}

func (nopConn) Tx(w, r []byte) error {
	for i := range r {
		r[i] = 0
	}
	return nil
}

type fakePins struct {
	rows    [display.Size]*gpio.FakePin
	cols    [display.Size]*gpio.FakePin
	speaker *gpio.FakePin
}

func newFakePins() (*fakePins, Pins) {
	f := &fakePins{speaker: gpio.NewFakePin()}
	p := Pins{Speaker: f.speaker}
	for i := 0; i < display.Size; i++ {
		f.rows[i] = gpio.NewFakePin()
		f.cols[i] = gpio.NewFakePin()
		p.Rows[i] = f.rows[i]
		p.Cols[i] = f.cols[i]
	}
	return f, p
}

func (f *fakePins) rowWrites() int {
	n := 0
	for _, r := range f.rows {
		n += r.Writes()
	}
	return n
}

func newBoard(t *testing.T, cfg config.Config, clk clock.Clock) (*Board, *fakePins) {
	t.Helper()
	f, pins := newFakePins()
	b, err := New(cfg, nopConn{}, pins, clk, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, f
}

func TestNewContinuousRegistersBothLines(t *testing.T) {
	b, _ := newBoard(t, config.Default(), clock.NewMock())

	if _, ok := b.Alarm.(*alarm.Continuous); !ok {
		t.Errorf("alarm = %T, want *alarm.Continuous", b.Alarm)
	}
	if b.tone == nil {
		t.Error("tone line not wired")
	}
	if b.Sensor == nil {
		t.Error("sensor not wired")
	}
}

func TestNewBurstHasNoToneLine(t *testing.T) {
	cfg := config.Default()
	cfg.Alarm.Strategy = "burst"
	b, _ := newBoard(t, cfg, clock.NewMock())

	if _, ok := b.Alarm.(*alarm.Burst); !ok {
		t.Errorf("alarm = %T, want *alarm.Burst", b.Alarm)
	}
	if b.tone != nil {
		t.Error("burst strategy wired a tone line")
	}

	b.IRQ.Pend(LineTone)
	if n := b.IRQ.DispatchPending(); n != 0 {
		t.Errorf("dispatched %d on an unregistered tone line", n)
	}
}

func TestDispatchServicesRefreshAndTone(t *testing.T) {
	b, f := newBoard(t, config.Default(), clock.NewMock())
	if err := b.Alarm.SetArmed(true); err != nil {
		t.Fatal(err)
	}
	b.Display.Show(display.StableFrame)

	b.IRQ.Pend(LineTone)
	b.IRQ.Pend(LineRefresh)
	if n := b.IRQ.DispatchPending(); n != 2 {
		t.Fatalf("dispatched %d, want 2", n)
	}

	if n := f.speaker.Writes(); n != 1 {
		t.Errorf("speaker writes = %d, want 1", n)
	}
	if !f.rows[0].IsSetHigh() {
		t.Error("row 0 not driven")
	}
}

func TestStartDrivesTimers(t *testing.T) {
	mock := clock.NewMock()
	b, f := newBoard(t, config.Default(), mock)
	b.Display.Show(display.FallingFrame)
	if err := b.Alarm.SetArmed(true); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	b.Start(ctx) // second call is ignored

	deadline := time.Now().Add(2 * time.Second)
	for f.rowWrites() < display.Size || f.speaker.Writes() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timers never serviced the display and tone lines")
		}
		mock.Add(time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if f.speaker.IsSetHigh() {
		t.Error("speaker left high")
	}
	for i := 0; i < display.Size; i++ {
		if f.rows[i].IsSetHigh() {
			t.Errorf("row %d left on", i)
		}
		if !f.cols[i].IsSetHigh() {
			t.Errorf("col %d not released", i)
		}
	}
	if b.Alarm.Armed() {
		t.Error("alarm still armed after shutdown")
	}

	writes := f.speaker.Writes()
	mock.Add(10 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if n := f.speaker.Writes(); n != writes {
		t.Errorf("speaker writes after shutdown = %d, want %d", n, writes)
	}
}

func TestShutdownTwice(t *testing.T) {
	b, _ := newBoard(t, config.Default(), clock.NewMock())
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := b.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestFaultAggregates(t *testing.T) {
	b, f := newBoard(t, config.Default(), clock.NewMock())
	if err := b.Fault(); err != nil {
		t.Fatalf("fresh board fault: %v", err)
	}

	boom := errors.New("line gone")
	if err := b.Alarm.SetArmed(true); err != nil {
		t.Fatal(err)
	}
	f.speaker.SetWriteError(boom)
	b.IRQ.Pend(LineTone)
	b.IRQ.DispatchPending()

	if err := b.Fault(); !errors.Is(err, boom) {
		t.Errorf("Fault = %v, want %v", err, boom)
	}
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	b, _ := newBoard(t, config.Default(), clock.NewMock())
	var order []string
	b.closers = append(b.closers,
		func() error { order = append(order, "bus"); return nil },
		func() error { order = append(order, "chip"); return errors.New("busy") },
	)

	if err := b.Close(); err == nil || err.Error() != "busy" {
		t.Errorf("Close = %v, want busy", err)
	}
	if want := []string{"chip", "bus"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
