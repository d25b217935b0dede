package motion

import (
	"log"
	"time"

	"github.com/sweeney/dose-dispenser/internal/gpio"
)

// PulseWidth maps an angle in [0,180] onto the servo pulse range.
func PulseWidth(deg int) time.Duration {
	deg = clampAngle(deg)
	span := gpio.ServoMaxPulse - gpio.ServoMinPulse
	return gpio.ServoMinPulse + span*time.Duration(deg)/180
}

func clampAngle(deg int) int {
	if deg < 0 {
		return 0
	}
	if deg > 180 {
		return 180
	}
	return deg
}

func (c *Controller) apply(deg int) {
	c.servoDeg = deg
	if err := c.servo.SetPulse(PulseWidth(deg)); err != nil {
		log.Printf("motion: servo pulse: %v", err)
	}
}

// SetAngle positions the servo immediately, cancelling any tracked move.
func (c *Controller) SetAngle(deg int) {
	c.moveTask.Cancel()
	c.moveTask = nil
	deg = clampAngle(deg)
	c.servoTarget = deg
	c.apply(deg)
}

// StartMove begins tracking the servo towards target one degree per tick.
// A move already in flight is abandoned. When armIR is set the presence
// detector is armed on arrival.
func (c *Controller) StartMove(target int, armIR bool) {
	c.moveTask.Cancel()
	c.servoTarget = clampAngle(target)
	c.armOnArrival = armIR
	c.moveTask = c.loop.Every("servo", c.cfg.ServoTick, func(time.Time) { c.servoTick() })
}

func (c *Controller) servoTick() {
	if c.servoDeg != c.servoTarget {
		if c.servoDeg < c.servoTarget {
			c.apply(c.servoDeg + 1)
		} else {
			c.apply(c.servoDeg - 1)
		}
	}
	if c.servoDeg == c.servoTarget {
		c.arrive()
	}
}

func (c *Controller) arrive() {
	c.moveTask.Cancel()
	c.moveTask = nil
	log.Printf("motion: servo reached %d deg", c.servoTarget)

	if c.armOnArrival {
		c.armOnArrival = false
		c.arm()
	}
	if c.servoTarget == c.cfg.ClosedAngle && c.OnLidClosed != nil {
		c.OnLidClosed()
	}
}

// OpenLid snaps the lid shut, then opens it slowly and arms the detector
// once it is fully open.
func (c *Controller) OpenLid() {
	c.disarm()
	c.SetAngle(c.cfg.ClosedAngle)
	c.StartMove(c.cfg.OpenAngle, true)
}

// CloseLid tracks the lid back to the closed angle.
func (c *Controller) CloseLid() {
	c.StartMove(c.cfg.ClosedAngle, false)
}
