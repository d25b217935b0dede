package motion

import (
	"errors"
	"log"
	"strconv"

	"github.com/sweeney/dose-dispenser/internal/kv"
)

// SlotKey is where the carousel position survives restarts.
const SlotKey = "stepper_slot"

func (c *Controller) clampSlot(n int) int {
	switch {
	case n < 1:
		log.Printf("motion: slot %d too low; using slot 1", n)
		return 1
	case n > c.cfg.Slots:
		log.Printf("motion: slot %d too high; using slot %d", n, c.cfg.Slots)
		return c.cfg.Slots
	}
	return n
}

// MoveToSlot rotates the carousel so compartment n is under the lid. It
// drives the signed difference from the current position, without taking
// the shorter way round, and persists the new slot.
func (c *Controller) MoveToSlot(n int) {
	n = c.clampSlot(n)
	target := c.cfg.StepsPerSlot() * (n - 1)
	delta := target - c.steps
	if delta == 0 {
		return
	}

	log.Printf("motion: stepper to slot %d (delta=%d)", n, delta)
	if err := c.stepper.Move(delta); err != nil {
		log.Printf("motion: stepper move: %v", err)
	}
	c.steps = target
	c.slot = n
	c.saveSlot()
}

// Jog moves the stepper without touching the slot model, for aligning the
// carousel by hand.
func (c *Controller) Jog(steps int) {
	if steps == 0 {
		return
	}
	log.Printf("motion: jog %d steps", steps)
	if err := c.stepper.Move(steps); err != nil {
		log.Printf("motion: stepper jog: %v", err)
	}
}

// LoadPosition restores the persisted slot. Missing or out-of-range values
// leave the carousel at slot 1.
func (c *Controller) LoadPosition() {
	raw, err := c.store.Get(SlotKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("motion: load slot: %v", err)
		}
		return
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 1 || n > c.cfg.Slots {
		log.Printf("motion: ignoring stored slot %q", raw)
		return
	}
	c.slot = n
	c.steps = c.cfg.StepsPerSlot() * (n - 1)
	log.Printf("motion: restored slot %d", n)
}

func (c *Controller) saveSlot() {
	if err := c.store.Set(SlotKey, []byte(strconv.Itoa(c.slot))); err != nil {
		log.Printf("motion: save slot: %v", err)
	}
}
