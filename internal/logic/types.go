// Package logic contains pure business logic for free-fall classification.
// This package has NO external dependencies (no I2C, GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// State is the fall classification of the device.
type State int

const (
	StateStable State = iota
	StateFalling
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "STABLE"
	case StateFalling:
		return "FALLING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventType represents a classification edge.
type EventType string

const (
	EventFall    EventType = "FALL"    // Stable -> Falling
	EventRecover EventType = "RECOVER" // Falling -> Stable
)

// Event is emitted on every classification edge, never on a repeated state.
type Event struct {
	Timestamp time.Time
	Type      EventType
	From      State
	To        State
	Magnitude float64
}

// Thresholds are the hysteresis band, in g.
// LowEnter triggers Stable->Falling, HighExit triggers Falling->Stable.
type Thresholds struct {
	LowEnter float64
	HighExit float64
}

// DefaultThresholds are the production values.
var DefaultThresholds = Thresholds{LowEnter: 0.5, HighExit: 1.0}

// Validate reports whether the band is usable. The band must be non-empty so
// that a signal hovering near one boundary cannot oscillate.
func (t Thresholds) Validate() error {
	if t.LowEnter <= 0 {
		return fmt.Errorf("low enter threshold must be > 0, got %g", t.LowEnter)
	}
	if t.LowEnter >= t.HighExit {
		return fmt.Errorf("low enter threshold %g must be below high exit threshold %g", t.LowEnter, t.HighExit)
	}
	return nil
}

// Input represents a single acceleration magnitude observation.
type Input struct {
	Magnitude float64 // g
	Time      time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Falls      int
	Recoveries int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
