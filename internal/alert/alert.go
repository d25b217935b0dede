// Package alert decides when a dose is due and runs the pick/skip session
// that follows.
//
// Tick compares the clock with the next upcoming dose once per second. A
// match moves the carousel, shows the alert and starts the buzzer. Pick opens
// the lid; the dose is reported taken only when the lid has closed again,
// after the IR detector saw the pill removed. Skip reports straight away.
//
// A Coordinator is not safe for concurrent use; callers hold the
// coordination lock. Events are delivered on a buffered channel so they can
// be forwarded without the lock.
package alert

import (
	"log"
	"time"

	"github.com/sweeney/dose-dispenser/internal/clock"
	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/schedule"
)

// State is the coordinator's position in the dispense cycle.
type State int

const (
	Idle State = iota
	Alerting
	DispensingAfterPick
	ReportingSkip
)

func (s State) String() string {
	switch s {
	case Alerting:
		return "alerting"
	case DispensingAfterPick:
		return "dispensing"
	case ReportingSkip:
		return "reporting-skip"
	}
	return "idle"
}

// Session is one alert-to-resolution cycle.
type Session struct {
	DoseID           string    `json:"dose_id"`
	Minute           int       `json:"minute"`
	Name             string    `json:"name"`
	Dose             string    `json:"dose"`
	Time             string    `json:"time"`
	Slot             int       `json:"slot"`
	PendingMarkTaken bool      `json:"pending_mark_taken"`
	StartedAt        time.Time `json:"started_at"`
}

// Clock supplies the current minute of the day.
type Clock interface {
	NowMinutes() (int, bool)
}

// Schedule supplies the next upcoming dose.
type Schedule interface {
	Next() (schedule.DoseRecord, bool)
}

// Motion is the part of the motion controller a session drives.
type Motion interface {
	MoveToSlot(n int)
	OpenLid()
}

// Presenter shows the alert and main screens.
type Presenter interface {
	ShowAlert(name, time, dose string)
	ShowMain()
}

// Reporter sends pick/skip outcomes to the backend.
type Reporter interface {
	Report(doseID string, taken bool)
}

// Coordinator runs the alert state machine.
type Coordinator struct {
	clock     Clock
	sched     Schedule
	motion    Motion
	presenter Presenter
	reporter  Reporter
	sound     gpio.Sound

	// Timeout dismisses an unanswered alert without reporting. Zero disables.
	Timeout time.Duration

	state      State
	session    *Session
	pending    []*Session // picked, waiting for the lid to close
	lastMinute int
	lastName   string

	events chan Event
}

// New creates an idle Coordinator.
func New(clk Clock, sched Schedule, motion Motion, presenter Presenter, reporter Reporter, sound gpio.Sound) *Coordinator {
	return &Coordinator{
		clock:      clk,
		sched:      sched,
		motion:     motion,
		presenter:  presenter,
		reporter:   reporter,
		sound:      sound,
		lastMinute: -1,
		events:     make(chan Event, eventBuffer),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	return c.state
}

// Session returns a copy of the active session, if any.
func (c *Coordinator) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Tick fires an alert when the next dose is due this minute and has not
// already fired for the same minute and name.
func (c *Coordinator) Tick(now time.Time) {
	c.expire(now)

	minute, ok := c.clock.NowMinutes()
	if !ok {
		return
	}
	if minute != c.lastMinute {
		// The guard only spans the matching minute, so a daily dose fires
		// again tomorrow.
		c.lastMinute, c.lastName = -1, ""
	}
	next, ok := c.sched.Next()
	if !ok {
		return
	}
	due, ok := clock.ParseMinutes(next.ScheduledTime)
	if !ok || due != minute {
		return
	}
	if minute == c.lastMinute && next.Name == c.lastName {
		return
	}
	c.fire(next, minute, now)
}

func (c *Coordinator) fire(rec schedule.DoseRecord, minute int, now time.Time) {
	c.lastMinute = minute
	c.lastName = rec.Name

	if c.session != nil {
		log.Printf("alert: %q superseded by %q", c.session.Name, rec.Name)
	}
	c.session = &Session{
		DoseID:    rec.DoseID,
		Minute:    minute,
		Name:      rec.Name,
		Dose:      rec.Dose,
		Time:      rec.ScheduledTime,
		Slot:      rec.Slot,
		StartedAt: now,
	}
	c.state = Alerting

	if !rec.Reportable() {
		log.Printf("alert: %q has no dose id; outcome will not be reported", rec.Name)
	}
	log.Printf("alert: %s due at %s (slot %d)", rec.Name, rec.ScheduledTime, rec.Slot)

	c.motion.MoveToSlot(rec.Slot)
	c.presenter.ShowAlert(rec.Name, clock.Format12h(rec.ScheduledTime), rec.Dose)
	if err := c.sound.Start(); err != nil {
		log.Printf("alert: start sound: %v", err)
	}
	c.emit(EventAlert, c.session, now)
}

// Pick opens the lid for the active session. The dose is reported taken once
// the lid closes. It reports false when no alert is active.
func (c *Coordinator) Pick(now time.Time) bool {
	s := c.session
	if s == nil {
		log.Printf("alert: pick with no active alert; ignoring")
		return false
	}
	c.stopSound()

	s.PendingMarkTaken = s.DoseID != ""
	if s.PendingMarkTaken {
		c.pending = append(c.pending, s)
	} else {
		log.Printf("alert: %q picked without dose id; not reporting", s.Name)
	}
	c.session = nil
	c.state = DispensingAfterPick

	c.motion.OpenLid()
	c.presenter.ShowMain()
	c.emit(EventPicked, s, now)
	return true
}

// Skip reports the active session skipped. It reports false when no alert
// is active.
func (c *Coordinator) Skip(now time.Time) bool {
	s := c.session
	if s == nil {
		log.Printf("alert: skip with no active alert; ignoring")
		return false
	}
	c.stopSound()

	c.state = ReportingSkip
	c.reporter.Report(s.DoseID, false)
	c.session = nil
	c.settle()

	c.presenter.ShowMain()
	c.emit(EventSkipped, s, now)
	return true
}

// Dismiss leaves the alert screen without reporting. It reports false when
// no alert is active.
func (c *Coordinator) Dismiss(now time.Time) bool {
	s := c.session
	if s == nil {
		return false
	}
	log.Printf("alert: %q dismissed", s.Name)
	c.stopSound()
	c.session = nil
	c.settle()
	c.presenter.ShowMain()
	c.emit(EventDismissed, s, now)
	return true
}

// LidClosed is called by the motion controller when the lid reaches the
// closed angle. Every dose picked since the last close is reported taken.
func (c *Coordinator) LidClosed(now time.Time) {
	picked := c.pending
	c.pending = nil
	c.settle()

	for _, s := range picked {
		log.Printf("alert: lid closed after pick of %q", s.Name)
		c.reporter.Report(s.DoseID, true)
		s.PendingMarkTaken = false
		c.emit(EventLidClosed, s, now)
	}
}

func (c *Coordinator) expire(now time.Time) {
	if c.Timeout <= 0 || c.session == nil || c.state != Alerting {
		return
	}
	if now.Sub(c.session.StartedAt) < c.Timeout {
		return
	}
	log.Printf("alert: %q unanswered after %v", c.session.Name, c.Timeout)
	c.Dismiss(now)
}

// settle picks the resting state once a transition is complete.
func (c *Coordinator) settle() {
	switch {
	case c.session != nil:
		c.state = Alerting
	case len(c.pending) > 0:
		c.state = DispensingAfterPick
	default:
		c.state = Idle
	}
}

func (c *Coordinator) stopSound() {
	if err := c.sound.Stop(); err != nil {
		log.Printf("alert: stop sound: %v", err)
	}
}
