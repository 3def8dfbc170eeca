package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	MagnitudeG    float64      `json:"magnitude_g"`
	Faulted       bool         `json:"faulted"`
	BusFailures   int          `json:"bus_failures"`
	AlarmArmed    bool         `json:"alarm_armed"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sink          SinkStatus   `json:"log_sink"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SinkStatus reports debug-log transport connection state.
type SinkStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Falls      int `json:"falls"`
	Recoveries int `json:"recoveries"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64   `json:"poll_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	LowEnter    float64 `json:"low_enter_g"`
	HighExit    float64 `json:"high_exit_g"`
	Alarm       string  `json:"alarm"`
	SensorMode  string  `json:"sensor_mode"`
	ODRHz       int     `json:"odr_hz"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         snap.State.String(),
		MagnitudeG:    snap.Magnitude,
		Faulted:       snap.Faulted,
		BusFailures:   snap.BusFailures,
		AlarmArmed:    snap.AlarmArmed,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Sink:          SinkStatus{Connected: snap.SinkConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Falls:      snap.Counts.Falls,
			Recoveries: snap.Counts.Recoveries,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			LowEnter:    snap.Config.LowEnter,
			HighExit:    snap.Config.HighExit,
			Alarm:       snap.Config.Alarm,
			SensorMode:  snap.Config.SensorMode,
			ODRHz:       snap.Config.ODRHz,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatStatusEvent returns the JSON status for a lifecycle record.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
