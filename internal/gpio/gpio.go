// Package gpio provides the dispenser's hardware surface with hardware abstraction.
// The real implementation uses the Linux GPIO character device for the stepper
// coils, the IR input and the buzzer, and sysfs PWM for the lid servo.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Stepper drives the carousel's unipolar stepper motor.
type Stepper interface {
	// Move steps the motor by delta full steps; the sign is the direction.
	// It blocks until the last step has been issued.
	Move(delta int) error

	// Close releases the coil lines.
	Close() error
}

// Servo positions the lid servo.
type Servo interface {
	// SetPulse sets the high time of the 20 ms servo frame.
	SetPulse(width time.Duration) error

	// Close disables the PWM output.
	Close() error
}

// Presence reads the IR object sensor above the lid.
type Presence interface {
	// Read returns true when an object (a hand or the cup) is detected.
	// The raw line is active low: raw 0 = detected.
	Read() (bool, error)

	// Close releases the input line.
	Close() error
}

// Sound drives the alert buzzer.
type Sound interface {
	Start() error
	Stop() error
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinIN1    = 5
	PinIN2    = 6
	PinIN3    = 13
	PinIN4    = 19
	PinIR     = 23
	PinBuzzer = 24
)

// Servo PWM timing.
const (
	ServoPeriod   = 20 * time.Millisecond
	ServoMinPulse = 1000 * time.Microsecond
	ServoMaxPulse = 2000 * time.Microsecond
)

// StepDelay is the pause between stepper phases.
const StepDelay = 2 * time.Millisecond

// phases is the wave-drive sequence for IN1..IN4.
var phases = [4][4]int{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
	{0, 0, 0, 1},
}

// nextPhase advances a phase index by one step in direction dir.
func nextPhase(idx, dir int) int {
	return (idx + dir + 4) % 4
}
