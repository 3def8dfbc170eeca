// Package mqtt is the debug-log transport: log records and lifecycle events
// are published to a broker on a best-effort basis. It never carries fall
// events to other devices.
package mqtt

import (
	"encoding/json"
	"time"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "sensors/fall"

// Topics names the topics under a prefix.
type Topics struct {
	Log    string // one JSON log record per message, QoS 0
	System string // lifecycle records, retained
}

// TopicsFor returns the topics under prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Log:    prefix + "/log",
		System: prefix + "/system",
	}
}

// Publisher carries log records and lifecycle records. PublishLog must not
// block; it is called from inside the logger.
type Publisher interface {
	PublishLog(line []byte) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle record: STARTUP, HEARTBEAT and SHUTDOWN carry a
// status snapshot in RawPayload; OFFLINE and RECONNECTED are bare.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name or FAULT for SHUTDOWN
	RawPayload []byte // used verbatim when set
	Retained   bool
	Confirm    bool // wait for the broker's acknowledgement
}

// SystemPayload is the bare lifecycle record.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes ev, or returns its RawPayload unchanged.
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}
	inner := SystemPayloadInner{Event: ev.Event, Reason: ev.Reason}
	if !ev.Timestamp.IsZero() {
		inner.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishLog([]byte) error          { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
