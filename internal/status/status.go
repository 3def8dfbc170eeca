// Package status provides a thread-safe status tracker for the fall-sensor daemon.
// Snapshots are attached to the STARTUP, HEARTBEAT and SHUTDOWN lifecycle records.
package status

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// NetworkInfo contains host network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	LowEnter    float64
	HighExit    float64
	Alarm       string
	SensorMode  string
	ODRHz       int
	Broker      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Magnitude     float64
	Counts        logic.EventCounts
	BusFailures   int
	Faulted       bool
	AlarmArmed    bool
	StartTime     time.Time
	Now           time.Time
	SinkConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// MarshalLogObject lets a snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("state", s.State.String())
	enc.AddFloat64("magnitude_g", s.Magnitude)
	enc.AddInt("falls", s.Counts.Falls)
	enc.AddInt("recoveries", s.Counts.Recoveries)
	enc.AddInt("bus_failures", s.BusFailures)
	enc.AddBool("faulted", s.Faulted)
	enc.AddBool("alarm_armed", s.AlarmArmed)
	enc.AddDuration("uptime", s.Uptime().Truncate(time.Second))
	enc.AddBool("sink_connected", s.SinkConnected)
	return nil
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	clock clock.Clock

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker that starts now by clk.
func NewTracker(clk clock.Clock, cfg Config) *Tracker {
	return &Tracker{
		clock: clk,
		snap: Snapshot{
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// Update sets the classification, the last magnitude, and event counts.
// Called from runLoop after every sample.
func (t *Tracker) Update(state logic.State, magnitude float64, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Magnitude = magnitude
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetHealth records the consecutive bus failure count and whether the
// fault frame is showing.
func (t *Tracker) SetHealth(busFailures int, faulted bool) {
	t.mu.Lock()
	t.snap.BusFailures = busFailures
	t.snap.Faulted = faulted
	t.mu.Unlock()
}

// SetAlarmArmed records the alarm state.
func (t *Tracker) SetAlarmArmed(armed bool) {
	t.mu.Lock()
	t.snap.AlarmArmed = armed
	t.mu.Unlock()
}

// SetSinkConnected sets the debug-log transport connection status.
func (t *Tracker) SetSinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.SinkConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set from the tracker's clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
