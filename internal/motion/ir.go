package motion

import (
	"log"
	"time"
)

// The detector is polled only while armed. After it has seen an object, the
// object going away starts a settle timer; the object coming back before the
// timer fires cancels it. If the sensor still reads absent when the timer
// fires the detector disarms and the lid closes, once per removal.

func (c *Controller) arm() {
	c.disarm()
	c.irArmed = true
	c.irLevel = LevelUnknown
	c.irSeen = false
	c.pollTask = c.loop.Every("ir-poll", c.cfg.IRPoll, func(time.Time) { c.pollIR() })
	log.Printf("motion: ir armed")
}

func (c *Controller) disarm() {
	c.settleTask.Cancel()
	c.settleTask = nil
	c.pollTask.Cancel()
	c.pollTask = nil
	if c.irArmed {
		log.Printf("motion: ir disarmed")
	}
	c.irArmed = false
}

func (c *Controller) pollIR() {
	if !c.irArmed {
		return
	}
	present, err := c.presence.Read()
	if err != nil {
		log.Printf("motion: ir read: %v", err)
		return
	}
	level := LevelAbsent
	if present {
		level = LevelPresent
	}
	if level == c.irLevel {
		return
	}
	c.irLevel = level

	switch level {
	case LevelPresent:
		log.Printf("motion: ir object detected")
		c.irSeen = true
		if c.settleTask != nil {
			c.settleTask.Cancel()
			c.settleTask = nil
		}
	case LevelAbsent:
		log.Printf("motion: ir object not detected")
		if c.irSeen && c.settleTask == nil {
			c.settleTask = c.loop.After("ir-settle", c.cfg.IRSettle, func(time.Time) { c.settled() })
		}
	}
}

func (c *Controller) settled() {
	c.settleTask = nil
	if c.irLevel != LevelAbsent {
		return
	}
	log.Printf("motion: ir settled absent; closing lid")
	c.disarm()
	c.CloseLid()
}
