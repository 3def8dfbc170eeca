package main

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/fall-sensor/internal/accel"
	"github.com/sweeney/fall-sensor/internal/config"
	"github.com/sweeney/fall-sensor/internal/display"
	"github.com/sweeney/fall-sensor/internal/logic"
	"github.com/sweeney/fall-sensor/internal/mqtt"
	"github.com/sweeney/fall-sensor/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// pollResult is one scripted answer from the sensor.
type pollResult struct {
	sample accel.Sample
	ok     bool
	err    error
}

func ready(magnitude float64) pollResult {
	return pollResult{sample: accel.Sample{Z: magnitude}, ok: true}
}

var notReady = pollResult{}

func busFail() pollResult {
	return pollResult{err: &accel.BusError{Op: "read", Reg: 0x27, Err: errors.New("nack")}}
}

// fakeSensor replays a script, then reports no new data.
type fakeSensor struct {
	mu     sync.Mutex
	script []pollResult
	polls  int
}

func (f *fakeSensor) Poll() (accel.Sample, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.script) == 0 {
		return accel.Sample{}, false, nil
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r.sample, r.ok, r.err
}

type fakeDisplay struct {
	frames []display.Frame
}

func (f *fakeDisplay) Show(fr display.Frame) { f.frames = append(f.frames, fr) }

type fakeAlarm struct {
	armed   bool
	changes []bool
	err     error
}

func (f *fakeAlarm) SetArmed(on bool) error {
	f.changes = append(f.changes, on)
	if f.err != nil {
		return f.err
	}
	f.armed = on
	return nil
}

func (f *fakeAlarm) Armed() bool  { return f.armed }
func (f *fakeAlarm) Fault() error { return nil }

type rig struct {
	cfg     config.Config
	clk     *clock.Mock
	sensor  *fakeSensor
	display *fakeDisplay
	alarm   *fakeAlarm
	fault   error
	tracker *status.Tracker
	m       *monitor
}

func newRig(t *testing.T, logger *zap.Logger, script ...pollResult) *rig {
	t.Helper()
	r := &rig{
		cfg:     config.Default(),
		clk:     clock.NewMock(),
		sensor:  &fakeSensor{script: script},
		display: &fakeDisplay{},
		alarm:   &fakeAlarm{},
	}
	r.clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r.tracker = status.NewTracker(r.clk, status.Config{})
	r.m = newMonitor(r.cfg, r.sensor, r.display, r.alarm, func() error { return r.fault },
		r.tracker, logger, r.clk.Now())
	return r
}

func (r *rig) steps(t *testing.T, n int) []time.Duration {
	t.Helper()
	var delays []time.Duration
	for i := 0; i < n; i++ {
		d, err := r.m.step(r.clk.Now())
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		delays = append(delays, d)
		r.clk.Add(d)
	}
	return delays
}

func TestOutputsFor(t *testing.T) {
	f, armed := outputsFor(logic.StateStable)
	if f != display.StableFrame || armed {
		t.Errorf("stable: got armed=%v", armed)
	}
	f, armed = outputsFor(logic.StateFalling)
	if f != display.FallingFrame || !armed {
		t.Errorf("falling: got armed=%v", armed)
	}
}

func TestStepHysteresis(t *testing.T) {
	r := newRig(t, zap.NewNop(),
		ready(1.0), // stable
		ready(0.4), // fall
		ready(0.3),
		ready(0.8), // inside the band, still falling
		ready(1.1), // recover
		ready(0.75),
	)
	r.steps(t, 6)

	want := []display.Frame{display.FallingFrame, display.StableFrame}
	if len(r.display.frames) != len(want) {
		t.Fatalf("frames shown: got %d, want %d", len(r.display.frames), len(want))
	}
	for i := range want {
		if r.display.frames[i] != want[i] {
			t.Errorf("frame %d differs", i)
		}
	}
	if len(r.alarm.changes) != 2 || !r.alarm.changes[0] || r.alarm.changes[1] {
		t.Errorf("alarm changes: got %v, want [true false]", r.alarm.changes)
	}

	snap := r.tracker.Snapshot()
	if snap.State != logic.StateStable || snap.Magnitude != 0.75 {
		t.Errorf("tracker: state=%v magnitude=%v", snap.State, snap.Magnitude)
	}
	if snap.Counts != (logic.EventCounts{Falls: 1, Recoveries: 1}) {
		t.Errorf("counts: got %+v", snap.Counts)
	}
	if snap.AlarmArmed {
		t.Error("alarm should be disarmed after recovery")
	}
}

func TestStepAlarmFollowsState(t *testing.T) {
	r := newRig(t, zap.NewNop(), ready(0.2), ready(0.1), ready(0.0))
	for i := 0; i < 3; i++ {
		if _, err := r.m.step(r.clk.Now()); err != nil {
			t.Fatal(err)
		}
		falling := r.m.detector.State() == logic.StateFalling
		if r.alarm.Armed() != falling {
			t.Errorf("step %d: alarm armed=%v, falling=%v", i, r.alarm.Armed(), falling)
		}
	}
	if len(r.alarm.changes) != 1 {
		t.Errorf("alarm must only change on the edge, got %v", r.alarm.changes)
	}
}

func TestStepNotReadyWaitsOneInterval(t *testing.T) {
	r := newRig(t, zap.NewNop(), notReady)
	delays := r.steps(t, 1)
	if delays[0] != r.cfg.Detector.PollInterval {
		t.Errorf("delay: got %v, want %v", delays[0], r.cfg.Detector.PollInterval)
	}
	if len(r.display.frames) != 0 || len(r.alarm.changes) != 0 {
		t.Error("no output should change without a sample")
	}
}

func TestStepBusErrorBacksOffAndEscalates(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRig(t, zap.New(core),
		ready(0.3), // fall first, so recovery must restore the falling frame
		busFail(), busFail(), busFail(), busFail(), busFail(), busFail(),
		ready(0.3),
	)

	delays := r.steps(t, 7)
	want := []time.Duration{
		r.cfg.Detector.PollInterval,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second,
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: got %v, want %v", i, delays[i], want[i])
		}
	}

	// fall frame, then the fault pattern exactly once
	if len(r.display.frames) != 2 || r.display.frames[1] != display.FaultFrame {
		t.Fatalf("frames: got %d, want falling then fault", len(r.display.frames))
	}
	snap := r.tracker.Snapshot()
	if !snap.Faulted || snap.BusFailures != 6 {
		t.Errorf("health: faulted=%v failures=%d", snap.Faulted, snap.BusFailures)
	}
	if n := logs.FilterMessage("sensor read failed").Len(); n != 6 {
		t.Errorf("warnings: got %d, want 6", n)
	}
	if !r.alarm.Armed() {
		t.Error("bus errors must not change the alarm")
	}

	r.steps(t, 1)
	if got := r.display.frames[len(r.display.frames)-1]; got != display.FallingFrame {
		t.Error("recovery should restore the frame for the current state")
	}
	snap = r.tracker.Snapshot()
	if snap.Faulted || snap.BusFailures != 0 {
		t.Errorf("health after recovery: faulted=%v failures=%d", snap.Faulted, snap.BusFailures)
	}
	if logs.FilterMessage("sensor recovered").Len() != 1 {
		t.Error("expected one recovery log")
	}
}

func TestStepBriefBusErrorKeepsFrame(t *testing.T) {
	r := newRig(t, zap.NewNop(), busFail(), ready(1.0))
	r.steps(t, 2)
	if len(r.display.frames) != 0 {
		t.Errorf("a single failure should not touch the display, got %d shows", len(r.display.frames))
	}
}

func TestStepPeripheralFaultIsFatal(t *testing.T) {
	r := newRig(t, zap.NewNop(), ready(1.0))
	r.fault = errors.New("row line gone")

	_, err := r.m.step(r.clk.Now())
	if err == nil || !strings.Contains(err.Error(), "row line gone") {
		t.Fatalf("expected fatal fault, got %v", err)
	}
	if r.sensor.polls != 0 {
		t.Error("sensor must not be polled once a peripheral has faulted")
	}
}

func TestStepAlarmErrorIsFatal(t *testing.T) {
	r := newRig(t, zap.NewNop(), ready(0.1))
	r.alarm.err = errors.New("speaker gone")

	if _, err := r.m.step(r.clk.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	r := newRig(t, zap.NewNop())
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	err := runLoop(r.m, pub, pub, r.tracker, zap.NewNop(), 0, r.clk, sig)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected one system event, got %v", pub.Events())
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained || !ev.Confirm {
		t.Errorf("got %+v", ev)
	}
	if !strings.Contains(string(pub.SystemPayloads[0]), `"connected":true`) {
		t.Errorf("payload should carry sink status: %s", pub.SystemPayloads[0])
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	r := newRig(t, zap.NewNop())
	pub := mqtt.NewFakePublisher()
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT

	if err := runLoop(r.m, pub, pub, r.tracker, zap.NewNop(), 0, r.clk, sig); err != nil {
		t.Fatal(err)
	}
	if pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("reason: got %q", pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopFaultStopsWithError(t *testing.T) {
	r := newRig(t, zap.NewNop())
	r.fault = errors.New("tone line gone")
	pub := mqtt.NewFakePublisher()

	err := runLoop(r.m, pub, pub, r.tracker, zap.NewNop(), 0, r.clk, make(chan os.Signal))
	if err == nil {
		t.Fatal("expected fatal error")
	}
	events := pub.Events()
	if len(events) != 1 || events[0] != "SHUTDOWN" || pub.SystemEvents[0].Reason != "FAULT" {
		t.Errorf("got %v / %+v", events, pub.SystemEvents)
	}
}

func TestRunLoopPublishErrorIsNotFatal(t *testing.T) {
	r := newRig(t, zap.NewNop())
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker gone")
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGTERM

	if err := runLoop(r.m, pub, pub, r.tracker, zap.NewNop(), 0, r.clk, sig); err != nil {
		t.Fatalf("publish errors must not stop the loop: %v", err)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := newRig(t, zap.NewNop())
	pub := mqtt.NewFakePublisher()
	sig := make(chan os.Signal, 1)

	done := make(chan error, 1)
	go func() {
		done <- runLoop(r.m, pub, pub, r.tracker, zap.New(core), time.Second, r.clk, sig)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for logs.FilterMessage("heartbeat").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no heartbeat")
		}
		r.clk.Add(r.cfg.Detector.PollInterval)
		time.Sleep(time.Millisecond)
	}

	sig <- syscall.SIGTERM
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	events := pub.Events()
	if len(events) < 2 || events[0] != "HEARTBEAT" || events[len(events)-1] != "SHUTDOWN" {
		t.Errorf("events: got %v", events)
	}
	// heartbeats are fire-and-forget so a slow broker cannot stall polling
	for _, ev := range pub.SystemEvents {
		if want := ev.Event == "SHUTDOWN"; ev.Confirm != want {
			t.Errorf("%s: Confirm=%v, want %v", ev.Event, ev.Confirm, want)
		}
	}
}

func TestPrintOneSample(t *testing.T) {
	s := &fakeSensor{script: []pollResult{notReady, notReady,
		{sample: accel.Sample{X: 0.5, Y: 0, Z: -1}, ok: true}}}
	var buf bytes.Buffer

	if err := printOneSample(s, clock.New(), time.Second, &buf); err != nil {
		t.Fatal(err)
	}
	want := "x=0.500g y=0.000g z=-1.000g |a|=1.118g\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintOneSampleTimeout(t *testing.T) {
	var buf bytes.Buffer
	err := printOneSample(&fakeSensor{}, clock.New(), 20*time.Millisecond, &buf)
	if err == nil || !strings.Contains(err.Error(), "no sample") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be printed")
	}
}

func TestPrintOneSampleBusError(t *testing.T) {
	var buf bytes.Buffer
	err := printOneSample(&fakeSensor{script: []pollResult{busFail()}}, clock.New(), time.Second, &buf)
	var be *accel.BusError
	if !errors.As(err, &be) {
		t.Fatalf("expected BusError, got %v", err)
	}
}
