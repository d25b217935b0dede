// Package status provides a thread-safe model of what the dispenser is showing.
// The core drives it with fire-and-forget "show" calls; the web status page
// and MQTT system events read point-in-time snapshots of it.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/dose-dispenser/internal/schedule"
)

// Screen names the view in front of the user.
type Screen string

const (
	ScreenMain     Screen = "main"
	ScreenAlert    Screen = "alert"
	ScreenCategory Screen = "category"
	ScreenMessage  Screen = "message"
)

// Lines shown on detail views.
const (
	LineOffline    = "Offline - showing last data"
	LineNoRecords  = "No records found"
	LineLoading    = "Loading..."
	LineNoWiFi     = "WiFi not connected"
	LineNoCache    = "No cached data"
	lastUpdateLine = "Last update: %s"
)

// NetworkInfo contains network state as reported by pi-helper.
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
	DeviceID        string
	Backend         string
	Broker          string
	HTTPAddr        string
	FetchIntervalMs int64
	HeartbeatMs     int64
	Firmware        string
}

// Summary is the "next dose" panel on the main screen. When Message is set
// it replaces the dose fields (fetching, an error, or no data).
type Summary struct {
	Name    string
	Time    string
	Dose    string
	Status  string
	Message string
}

// AlertView is the dose-due screen.
type AlertView struct {
	Name string
	Time string
	Dose string
}

// CategoryView is a detail list or an informational page.
type CategoryView struct {
	Title   string
	Lines   []string
	Records []schedule.DoseRecord
	Offline bool
}

// DeviceState is the mechanical state shown on the status page.
type DeviceState struct {
	Slot       int
	ServoDeg   int
	IRArmed    bool
	AlertState string
}

// Counts tallies dispense events since start.
type Counts struct {
	Alerts    int
	Picked    int
	Skipped   int
	Taken     int
	Dismissed int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type. Views are replaced, never modified in place, so a
// snapshot stays valid after the lock is released.
type Snapshot struct {
	Screen        Screen
	Clock         string
	Main          Summary
	Alert         *AlertView
	View          *CategoryView
	Device        DeviceState
	Online        bool
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable presentation state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker on the main screen.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Screen:    ScreenMain,
			Clock:     "--:--",
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// ShowAlert switches to the dose-due screen.
func (t *Tracker) ShowAlert(name, time, dose string) {
	t.mu.Lock()
	t.snap.Screen = ScreenAlert
	t.snap.Alert = &AlertView{Name: name, Time: time, Dose: dose}
	t.snap.View = nil
	t.mu.Unlock()
}

// ShowMain returns to the main screen.
func (t *Tracker) ShowMain() {
	t.mu.Lock()
	t.snap.Screen = ScreenMain
	t.snap.Alert = nil
	t.snap.View = nil
	t.mu.Unlock()
}

// ShowCategory shows a cached category list.
func (t *Tracker) ShowCategory(title string, cc schedule.CategoryCache, offline bool) {
	var lines []string
	if offline {
		lines = append(lines, LineOffline)
	}
	if cc.UpdatedAt != "" {
		lines = append(lines, fmt.Sprintf(lastUpdateLine, cc.UpdatedAt))
	}
	if len(cc.Records) == 0 {
		lines = append(lines, LineNoRecords)
	}
	view := &CategoryView{
		Title:   title,
		Lines:   lines,
		Records: append([]schedule.DoseRecord(nil), cc.Records...),
		Offline: offline,
	}

	t.mu.Lock()
	t.snap.Screen = ScreenCategory
	t.snap.View = view
	t.mu.Unlock()
}

// ShowMessage shows an informational page under title.
func (t *Tracker) ShowMessage(title string, lines ...string) {
	view := &CategoryView{Title: title, Lines: append([]string(nil), lines...)}
	t.mu.Lock()
	t.snap.Screen = ScreenMessage
	t.snap.View = view
	t.mu.Unlock()
}

// ShowingView reports whether the detail view titled title is in front of
// the user, as a category list or its loading message.
func (t *Tracker) ShowingView(title string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap.View == nil || t.snap.View.Title != title {
		return false
	}
	return t.snap.Screen == ScreenCategory || t.snap.Screen == ScreenMessage
}

// ViewTitle returns the title of the detail view on screen, or "".
func (t *Tracker) ViewTitle() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap.View == nil {
		return ""
	}
	return t.snap.View.Title
}

// SetMainSummary shows a dose on the main screen.
func (t *Tracker) SetMainSummary(name, time, dose, status string) {
	t.mu.Lock()
	t.snap.Main = Summary{Name: name, Time: time, Dose: dose, Status: status}
	t.mu.Unlock()
}

// SetMainMessage replaces the main-screen dose with a short message.
func (t *Tracker) SetMainMessage(msg string) {
	t.mu.Lock()
	t.snap.Main = Summary{Message: msg}
	t.mu.Unlock()
}

// SetClockText sets the clock label.
func (t *Tracker) SetClockText(text string) {
	t.mu.Lock()
	t.snap.Clock = text
	t.mu.Unlock()
}

// SetDevice sets the mechanical state.
func (t *Tracker) SetDevice(d DeviceState) {
	t.mu.Lock()
	t.snap.Device = d
	t.mu.Unlock()
}

// SetOnline sets the network availability flag.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	t.snap.Online = online
	t.mu.Unlock()
}

// CountEvent increments the counter for a dispense event type.
func (t *Tracker) CountEvent(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch event {
	case "ALERT":
		t.snap.Counts.Alerts++
	case "PICKED":
		t.snap.Counts.Picked++
	case "SKIPPED":
		t.snap.Counts.Skipped++
	case "LID_CLOSED":
		t.snap.Counts.Taken++
	case "DISMISSED":
		t.snap.Counts.Dismissed++
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
