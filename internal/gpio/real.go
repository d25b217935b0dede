//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// RealStepper drives the stepper coils through the GPIO character device.
type RealStepper struct {
	chip  *gpiocdev.Chip
	coils *gpiocdev.Lines
	phase int
	delay time.Duration
}

// NewRealStepper requests the four coil lines as outputs, all low.
func NewRealStepper(pins [4]int, delay time.Duration) (*RealStepper, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	coils, err := chip.RequestLines(pins[:], gpiocdev.AsOutput(0, 0, 0, 0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request coil pins %v: %w", pins, err)
	}

	return &RealStepper{chip: chip, coils: coils, delay: delay}, nil
}

// Move issues |delta| phase changes, pausing between each.
func (s *RealStepper) Move(delta int) error {
	dir := 1
	if delta < 0 {
		dir, delta = -1, -delta
	}
	for i := 0; i < delta; i++ {
		s.phase = nextPhase(s.phase, dir)
		p := phases[s.phase]
		if err := s.coils.SetValues(p[:]); err != nil {
			return fmt.Errorf("step %d of %d: %w", i+1, delta, err)
		}
		time.Sleep(s.delay)
	}
	return nil
}

// Close drives every coil low and releases the lines.
func (s *RealStepper) Close() error {
	var errs []error
	if s.coils != nil {
		if err := s.coils.SetValues([]int{0, 0, 0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("release coils: %w", err))
		}
		if err := s.coils.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close coils: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealPresence reads the IR sensor output.
type RealPresence struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealPresence requests the IR pin as an input with pull-up; the sensor
// pulls the line low when it sees an object.
func NewRealPresence(pin int) (*RealPresence, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request IR pin %d: %w", pin, err)
	}
	return &RealPresence{chip: chip, line: line}, nil
}

// Read inverts the raw level: raw 0 = object present.
func (p *RealPresence) Read() (bool, error) {
	raw, err := p.line.Value()
	if err != nil {
		return false, fmt.Errorf("read IR pin: %w", err)
	}
	return raw == 0, nil
}

// Close releases the IR line.
func (p *RealPresence) Close() error {
	var errs []error
	if p.line != nil {
		if err := p.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close IR pin: %w", err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealBuzzer switches an active buzzer on a GPIO output.
type RealBuzzer struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealBuzzer requests the buzzer pin as an output, initially silent.
func NewRealBuzzer(pin int) (*RealBuzzer, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pin, err)
	}
	return &RealBuzzer{chip: chip, line: line}, nil
}

// Start turns the buzzer on.
func (b *RealBuzzer) Start() error {
	return b.line.SetValue(1)
}

// Stop turns the buzzer off.
func (b *RealBuzzer) Stop() error {
	return b.line.SetValue(0)
}

// Close silences the buzzer and releases the line, leaving the pin as an
// input with pull-down to match the Pi boot default.
func (b *RealBuzzer) Close() error {
	var errs []error
	if b.line != nil {
		if err := b.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("silence buzzer: %w", err))
		}
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure buzzer pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
