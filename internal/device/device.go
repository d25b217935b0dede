// Package device wires the dispenser together. It owns the coordination lock:
// loop tasks run under it, and every other goroutine enters through Do.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/dose-dispenser/internal/alert"
	"github.com/sweeney/dose-dispenser/internal/backend"
	"github.com/sweeney/dose-dispenser/internal/clock"
	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/journal"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/loop"
	"github.com/sweeney/dose-dispenser/internal/motion"
	"github.com/sweeney/dose-dispenser/internal/mqtt"
	"github.com/sweeney/dose-dispenser/internal/network"
	"github.com/sweeney/dose-dispenser/internal/report"
	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/status"
	"github.com/sweeney/dose-dispenser/internal/syncer"
)

// PassInterval is the period of the presentation loop. It must be shorter
// than the servo tick.
const PassInterval = 10 * time.Millisecond

// Errors returned by user actions.
var (
	ErrBusy   = errors.New("device: a dose is in progress")
	ErrNoWiFi = errors.New("device: wifi management not available")
)

// Backend is every backend call the device makes.
type Backend interface {
	syncer.Fetcher
	syncer.TimeSource
	syncer.HeartbeatSender
	report.Marker
}

// Hardware is the set of actuators and sensors.
type Hardware struct {
	Stepper  gpio.Stepper
	Servo    gpio.Servo
	Presence gpio.Presence
	Sound    gpio.Sound
}

// Vitals are the heartbeat fields the device cannot measure itself.
type Vitals struct {
	Firmware      string
	BatteryLevel  int
	StorageFreeKb int
	TemperatureC  float64

	// RSSIPath is the wireless statistics table read for the signal level.
	// Empty reports 0.
	RSSIPath string
}

// Options configures New.
type Options struct {
	Now      func() time.Time
	Store    kv.Store
	Backend  Backend
	Network  *network.Monitor
	Tracker  *status.Tracker
	Hardware Hardware
	Motion   motion.Config
	Vitals   Vitals

	// Optional.
	WiFi      network.Connector
	Journal   *journal.Journal
	Publisher mqtt.Publisher

	AlertTimeout      time.Duration
	ReportTimeout     time.Duration
	FetchInterval     time.Duration
	TimeSyncInterval  time.Duration
	HeartbeatInterval time.Duration
	ProbeInterval     time.Duration
}

// Device is the running dispenser.
type Device struct {
	mu      sync.Mutex // coordination lock
	now     func() time.Time
	started time.Time
	store   kv.Store
	vitals  Vitals
	slots   int
	wifi    network.Connector
	journal *journal.Journal
	pub     mqtt.Publisher
	probe   time.Duration

	Loop      *loop.Loop
	Clock     *clock.Clock
	Cache     *schedule.Cache
	Motion    *motion.Controller
	Alert     *alert.Coordinator
	Tracker   *status.Tracker
	Network   *network.Monitor
	Creds     *network.CredStore
	Reporter  *report.Reporter
	Worker    *syncer.Worker
	TimeSync  *syncer.TimeSync
	Heartbeat *syncer.Heartbeat

	lastDisplay string
}

// New builds a Device from opts. Nothing runs until Boot and Run.
func New(opts Options) *Device {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	d := &Device{
		now:     now,
		started: now(),
		store:   opts.Store,
		vitals:  opts.Vitals,
		slots:   opts.Motion.Slots,
		wifi:    opts.WiFi,
		journal: opts.Journal,
		pub:     opts.Publisher,
		probe:   opts.ProbeInterval,
		Tracker: opts.Tracker,
		Network: opts.Network,
	}
	if d.probe <= 0 {
		d.probe = 10 * time.Second
	}

	display, err := opts.Store.Get(clock.StoreKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		log.Printf("device: load clock label: %v", err)
	}
	d.Loop = loop.New(now, &d.mu)
	d.Clock = clock.New(now, string(display))
	d.lastDisplay = d.Clock.Display()
	d.Cache = schedule.NewCache(opts.Store, d.Clock)

	hw := opts.Hardware
	d.Motion = motion.New(opts.Motion, hw.Stepper, hw.Servo, hw.Presence, opts.Store, d.Loop)

	var rec report.Recorder
	if opts.Journal != nil {
		rec = opts.Journal
	}
	timeout := opts.ReportTimeout
	if timeout <= 0 {
		timeout = backend.DefaultTimeout
	}
	d.Reporter = report.New(opts.Backend, opts.Network, rec, timeout)

	d.Alert = alert.New(d.Clock, d.Cache, d.Motion, d.Tracker, d.Reporter, hw.Sound)
	d.Alert.Timeout = opts.AlertTimeout
	// Runs inside a loop task, so the lock is already held.
	d.Motion.OnLidClosed = func() { d.Alert.LidClosed(d.now()) }

	d.Worker = syncer.NewWorker(opts.Backend, opts.Network, d.Cache, d.Tracker, opts.Store, d, now)
	if opts.FetchInterval > 0 {
		d.Worker.FetchEvery = opts.FetchInterval
	}
	d.TimeSync = syncer.NewTimeSync(opts.Backend, opts.Network, d.Clock, d.Tracker, opts.Store, d, now)
	if opts.TimeSyncInterval > 0 {
		d.TimeSync.Every = opts.TimeSyncInterval
	}
	d.Heartbeat = syncer.NewHeartbeat(opts.Backend, opts.Network, d.heartbeat)
	if opts.HeartbeatInterval > 0 {
		d.Heartbeat.Every = opts.HeartbeatInterval
	}
	d.Heartbeat.OnBeat = func() { d.PublishStatus("HEARTBEAT", "") }

	d.Creds = network.LoadCreds(opts.Store)
	d.Network.OnChange(func(online bool) {
		d.Tracker.SetOnline(online)
		if online {
			d.RequestSync()
		}
	})
	d.Tracker.SetOnline(d.Network.Online())
	return d
}

// Do runs fn while holding the coordination lock. fn must not call Do.
func (d *Device) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Boot restores persisted state and registers the clock task. The clock
// task is registered before anything else so it runs first in every pass.
func (d *Device) Boot() {
	d.Do(func() {
		d.Motion.LoadPosition()
		d.Cache.LoadAll()
		d.Tracker.SetClockText(d.Clock.Render())
		d.Loop.Every("clock", time.Second, d.tick)
		d.syncDeviceState()
	})
}

// tick runs once per second under the lock.
func (d *Device) tick(now time.Time) {
	text := d.Clock.Render()
	d.Tracker.SetClockText(text)
	if d.Clock.DisplayValid() && text != d.lastDisplay {
		d.lastDisplay = text
		if err := d.store.Set(clock.StoreKey, []byte(text)); err != nil {
			log.Printf("device: persist clock label: %v", err)
		}
	}
	d.Alert.Tick(now)
	d.syncDeviceState()
}

func (d *Device) syncDeviceState() {
	st := d.Motion.State()
	d.Tracker.SetDevice(status.DeviceState{
		Slot:       st.Slot,
		ServoDeg:   st.ServoDeg,
		IRArmed:    st.IRArmed,
		AlertState: d.Alert.State().String(),
	})
}

// Run starts every background activity and blocks until ctx is done or one
// of them fails.
func (d *Device) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(PassInterval)
		defer ticker.Stop()
		return d.Loop.Run(ctx, ticker.C)
	})
	g.Go(func() error { return d.Network.Run(ctx, d.probe) })
	g.Go(func() error { return d.Worker.Run(ctx) })
	g.Go(func() error { return d.TimeSync.Run(ctx) })
	g.Go(func() error { return d.Heartbeat.Run(ctx) })
	g.Go(func() error { return d.ForwardEvents(ctx) })
	if d.wifi != nil {
		g.Go(func() error {
			d.AutoConnect(ctx)
			return nil
		})
	}

	err := g.Wait()
	d.Do(d.Motion.Stop)
	d.Reporter.Wait()
	return err
}

// ForwardEvents drains dispense events to the tracker, MQTT and the journal
// until ctx is done.
func (d *Device) ForwardEvents(ctx context.Context) error {
	events := d.Alert.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			d.forward(ctx, ev)
		}
	}
}

func (d *Device) forward(ctx context.Context, ev alert.Event) {
	d.Tracker.CountEvent(string(ev.Type))
	if d.pub != nil {
		if err := d.pub.Publish(ev); err != nil {
			log.Printf("device: publish %s: %v", ev.Type, err)
		}
	}
	if d.journal != nil {
		if err := d.journal.RecordEvent(ctx, ev); err != nil {
			log.Printf("device: journal %s: %v", ev.Type, err)
		}
	}
}

// PublishStatus mirrors a status snapshot to the MQTT system topic.
func (d *Device) PublishStatus(event, reason string) {
	if d.pub == nil {
		return
	}
	snap := d.Tracker.Snapshot()
	err := d.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
		Retained:   true,
	})
	if err != nil {
		log.Printf("device: publish %s: %v", event, err)
	}
}

func (d *Device) heartbeat() backend.Heartbeat {
	rssi := 0
	if d.vitals.RSSIPath != "" {
		var err error
		if rssi, err = network.ReadRSSI(d.vitals.RSSIPath); err != nil {
			rssi = 0
		}
	}
	return backend.Heartbeat{
		BatteryLevel:    d.vitals.BatteryLevel,
		WifiStrength:    rssi,
		Status:          "online",
		FirmwareVersion: d.vitals.Firmware,
		UptimeSeconds:   int64(d.now().Sub(d.started) / time.Second),
		StorageFreeKb:   d.vitals.StorageFreeKb,
		TemperatureC:    d.vitals.TemperatureC,
		LastError:       d.Worker.LastError(),
		SlotCount:       d.slots,
	}
}

// Pick answers the active alert by opening the lid.
func (d *Device) Pick() bool {
	var ok bool
	d.Do(func() {
		ok = d.Alert.Pick(d.now())
		d.syncDeviceState()
	})
	return ok
}

// Skip answers the active alert by reporting it skipped.
func (d *Device) Skip() bool {
	var ok bool
	d.Do(func() {
		ok = d.Alert.Skip(d.now())
		d.syncDeviceState()
	})
	return ok
}

// Dismiss closes the alert screen without reporting.
func (d *Device) Dismiss() bool {
	var ok bool
	d.Do(func() {
		ok = d.Alert.Dismiss(d.now())
		d.syncDeviceState()
	})
	return ok
}

// OpenCategory opens a detail view.
func (d *Device) OpenCategory(cat schedule.Category) {
	d.Worker.OpenCategory(cat)
}

// CloseCategory closes the detail view and returns to the alert, if one is
// still waiting, or the main screen.
func (d *Device) CloseCategory() {
	d.Worker.CloseCategory()
	d.Do(func() {
		if s, ok := d.Alert.Session(); ok {
			d.Tracker.ShowAlert(s.Name, clock.Format12h(s.Time), s.Dose)
			return
		}
		d.Tracker.ShowMain()
	})
}

// RequestSync asks for a schedule sync and a time sync on the next pass.
func (d *Device) RequestSync() {
	d.Worker.RequestSync()
	d.TimeSync.RequestSync()
}

// Refill turns the carousel to slot and opens the lid so the compartment can
// be loaded. The lid closes on its own once the detector has seen a hand
// come and go. Nothing is reported.
func (d *Device) Refill(slot int) error {
	if slot < 1 || slot > d.slots {
		return fmt.Errorf("slot %d out of range 1..%d", slot, d.slots)
	}
	var err error
	d.Do(func() {
		if d.Alert.State() != alert.Idle {
			err = ErrBusy
			return
		}
		log.Printf("device: refill slot %d", slot)
		d.Motion.MoveToSlot(slot)
		d.Motion.OpenLid()
		d.syncDeviceState()
	})
	return err
}

// ConnectWiFi joins a network, remembers it and requests a sync.
func (d *Device) ConnectWiFi(ctx context.Context, ssid, password string) error {
	if d.wifi == nil {
		return ErrNoWiFi
	}
	if err := d.wifi.Connect(ctx, ssid, password); err != nil {
		return err
	}
	if err := d.Creds.Add(ssid, password); err != nil {
		log.Printf("device: %v", err)
	}
	d.Network.Check(ctx)
	d.RequestSync()
	return nil
}

// AutoConnect tries the remembered networks once.
func (d *Device) AutoConnect(ctx context.Context) {
	c, err := network.AutoConnect(ctx, d.Creds, d.wifi)
	if err != nil {
		if !errors.Is(err, network.ErrNoCreds) {
			log.Printf("device: %v", err)
		}
		return
	}
	log.Printf("device: joined %q", c.SSID)
	d.Network.Check(ctx)
	d.RequestSync()
}

// Profile returns the cached patient profile.
func (d *Device) Profile() (json.RawMessage, bool) {
	return d.Worker.Profile()
}
