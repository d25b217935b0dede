// Package motion drives the carousel stepper, the lid servo and the IR
// presence detector that closes the lid once the user has taken the dose.
//
// A Controller is not safe for concurrent use. Its loop tasks run while the
// loop holds the coordination lock, and every other caller must hold the same
// lock. Hardware faults are logged and never returned.
package motion

import (
	"time"

	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/loop"
)

// Config holds the mechanical constants.
type Config struct {
	StepsPerRev int
	Slots       int

	OpenAngle   int
	ClosedAngle int
	ServoTick   time.Duration // one degree per tick

	IRPoll   time.Duration
	IRSettle time.Duration
}

// DefaultConfig matches a 28BYJ-48 carousel with five compartments and a
// standard hobby servo.
func DefaultConfig() Config {
	return Config{
		StepsPerRev: 2048,
		Slots:       5,
		OpenAngle:   80,
		ClosedAngle: 180,
		ServoTick:   20 * time.Millisecond,
		IRPoll:      500 * time.Millisecond,
		IRSettle:    2 * time.Second,
	}
}

// StepsPerSlot is the distance between adjacent compartments.
func (c Config) StepsPerSlot() int {
	return c.StepsPerRev / c.Slots
}

// IRLevel is the last observed presence reading.
type IRLevel int

const (
	LevelUnknown IRLevel = iota
	LevelPresent
	LevelAbsent
)

func (l IRLevel) String() string {
	switch l {
	case LevelPresent:
		return "present"
	case LevelAbsent:
		return "absent"
	}
	return "unknown"
}

// State is a snapshot of the motion model.
type State struct {
	Slot          int     `json:"slot"`
	Steps         int     `json:"steps"`
	ServoDeg      int     `json:"servo_deg"`
	ServoTarget   int     `json:"servo_target"`
	ServoMoving   bool    `json:"servo_moving"`
	IRArmed       bool    `json:"ir_armed"`
	IRLevel       IRLevel `json:"-"`
	SettlePending bool    `json:"settle_pending"`
}

// Controller owns the motion state.
type Controller struct {
	cfg      Config
	stepper  gpio.Stepper
	servo    gpio.Servo
	presence gpio.Presence
	store    kv.Store
	loop     *loop.Loop

	// OnLidClosed is called when the servo arrives at the closed angle.
	OnLidClosed func()

	slot  int
	steps int

	servoDeg     int
	servoTarget  int
	armOnArrival bool
	moveTask     *loop.Task

	irArmed    bool
	irLevel    IRLevel
	irSeen     bool
	pollTask   *loop.Task
	settleTask *loop.Task
}

// New creates a Controller at slot 1 with the lid assumed closed.
func New(cfg Config, stepper gpio.Stepper, servo gpio.Servo, presence gpio.Presence, store kv.Store, l *loop.Loop) *Controller {
	return &Controller{
		cfg:         cfg,
		stepper:     stepper,
		servo:       servo,
		presence:    presence,
		store:       store,
		loop:        l,
		slot:        1,
		servoDeg:    cfg.ClosedAngle,
		servoTarget: cfg.ClosedAngle,
	}
}

// State returns a snapshot of the motion model.
func (c *Controller) State() State {
	return State{
		Slot:          c.slot,
		Steps:         c.steps,
		ServoDeg:      c.servoDeg,
		ServoTarget:   c.servoTarget,
		ServoMoving:   c.moveTask.Active(),
		IRArmed:       c.irArmed,
		IRLevel:       c.irLevel,
		SettlePending: c.settleTask.Active(),
	}
}

// Stop cancels every motion task and disarms the detector.
func (c *Controller) Stop() {
	c.moveTask.Cancel()
	c.moveTask = nil
	c.disarm()
}
