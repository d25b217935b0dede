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
	Screen        string       `json:"screen"`
	Clock         string       `json:"clock"`
	Next          NextJSON     `json:"next"`
	Alert         *AlertJSON   `json:"alert,omitempty"`
	View          *ViewJSON    `json:"view,omitempty"`
	Device        DeviceJSON   `json:"device"`
	Online        bool         `json:"online"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config,omitempty"`
}

// NextJSON is the main-screen summary.
type NextJSON struct {
	Name    string `json:"name,omitempty"`
	Time    string `json:"time,omitempty"`
	Dose    string `json:"dose,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// AlertJSON is the alert screen.
type AlertJSON struct {
	Name string `json:"name"`
	Time string `json:"time"`
	Dose string `json:"dose"`
}

// ViewJSON is a detail view.
type ViewJSON struct {
	Title   string       `json:"title"`
	Lines   []string     `json:"lines,omitempty"`
	Records []RecordJSON `json:"records,omitempty"`
	Offline bool         `json:"offline"`
}

// RecordJSON is one dose in a detail view.
type RecordJSON struct {
	Name   string `json:"name"`
	Dose   string `json:"dose"`
	Time   string `json:"time"`
	Status string `json:"status"`
	Slot   int    `json:"slot"`
}

// DeviceJSON reports mechanical state.
type DeviceJSON struct {
	Slot       int    `json:"slot"`
	ServoDeg   int    `json:"servo_deg"`
	IRArmed    bool   `json:"ir_armed"`
	AlertState string `json:"alert_state"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Alerts    int `json:"alerts"`
	Picked    int `json:"picked"`
	Skipped   int `json:"skipped"`
	Taken     int `json:"taken"`
	Dismissed int `json:"dismissed"`
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
	DeviceID        string `json:"device_id"`
	Backend         string `json:"backend"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	FetchIntervalMs int64  `json:"fetch_interval_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Firmware        string `json:"firmware"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Screen: string(snap.Screen),
		Clock:  snap.Clock,
		Next: NextJSON{
			Name:    snap.Main.Name,
			Time:    snap.Main.Time,
			Dose:    snap.Main.Dose,
			Status:  snap.Main.Status,
			Message: snap.Main.Message,
		},
		Device: DeviceJSON{
			Slot:       snap.Device.Slot,
			ServoDeg:   snap.Device.ServoDeg,
			IRArmed:    snap.Device.IRArmed,
			AlertState: snap.Device.AlertState,
		},
		Online:        snap.Online,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Alerts:    snap.Counts.Alerts,
			Picked:    snap.Counts.Picked,
			Skipped:   snap.Counts.Skipped,
			Taken:     snap.Counts.Taken,
			Dismissed: snap.Counts.Dismissed,
		},
		Config: ConfigJSON{
			DeviceID:        snap.Config.DeviceID,
			Backend:         snap.Config.Backend,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			FetchIntervalMs: snap.Config.FetchIntervalMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Firmware:        snap.Config.Firmware,
		},
	}
	if snap.Alert != nil {
		inner.Alert = &AlertJSON{Name: snap.Alert.Name, Time: snap.Alert.Time, Dose: snap.Alert.Dose}
	}
	if snap.View != nil {
		v := &ViewJSON{Title: snap.View.Title, Lines: snap.View.Lines, Offline: snap.View.Offline}
		for _, r := range snap.View.Records {
			v.Records = append(v.Records, RecordJSON{
				Name: r.Name, Dose: r.Dose, Time: r.ScheduledTime, Status: r.Status, Slot: r.Slot,
			})
		}
		inner.View = v
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
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
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
