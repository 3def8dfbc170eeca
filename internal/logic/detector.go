package logic

import (
	"math"
	"time"
)

// Magnitude returns the Euclidean norm of an acceleration vector.
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// Next is the hysteresis transition function. Magnitudes inside the band
// [LowEnter, HighExit] never change the state.
func Next(s State, magnitude float64, th Thresholds) State {
	switch s {
	case StateStable:
		if magnitude < th.LowEnter {
			return StateFalling
		}
	case StateFalling:
		if magnitude > th.HighExit {
			return StateStable
		}
	}
	return s
}

// Detector owns the persistent fall classification and reports edges.
type Detector struct {
	thresholds    Thresholds
	state         State
	lastMagnitude float64
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector in StateStable.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(th Thresholds, startTime time.Time) *Detector {
	return &Detector{
		thresholds:    th,
		state:         StateStable,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process applies one magnitude observation and returns the edge it caused,
// or nil if the classification did not change.
func (d *Detector) Process(input Input) *Event {
	d.lastMagnitude = input.Magnitude

	next := Next(d.state, input.Magnitude, d.thresholds)
	if next == d.state {
		return nil
	}

	ev := &Event{
		Timestamp: input.Time,
		Type:      eventTypeForTransition(next),
		From:      d.state,
		To:        next,
		Magnitude: input.Magnitude,
	}
	d.state = next

	switch ev.Type {
	case EventFall:
		d.eventCounts.Falls++
	case EventRecover:
		d.eventCounts.Recoveries++
	}
	return ev
}

func eventTypeForTransition(to State) EventType {
	if to == StateFalling {
		return EventFall
	}
	return EventRecover
}

// State returns the current classification.
func (d *Detector) State() State {
	return d.state
}

// LastMagnitude returns the most recently processed magnitude.
func (d *Detector) LastMagnitude() float64 {
	return d.lastMagnitude
}

// Thresholds returns the configured band.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// EventCountsSnapshot returns a copy of the edge counters.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
