package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeStepper records commanded moves.
type FakeStepper struct {
	mu sync.Mutex

	// Moves contains every non-rejected Move delta, in order.
	Moves []int

	// Position is the sum of all recorded moves.
	Position int

	// MoveError, if set, is returned by Move and nothing is recorded.
	MoveError error

	// Closed tracks if Close was called
	Closed bool
}

// Move records delta.
func (f *FakeStepper) Move(delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MoveError != nil {
		return f.MoveError
	}
	f.Moves = append(f.Moves, delta)
	f.Position += delta
	return nil
}

// Close marks the stepper as closed.
func (f *FakeStepper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// MoveCount returns how many moves were recorded.
func (f *FakeStepper) MoveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Moves)
}

// Steps returns the current position.
func (f *FakeStepper) Steps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Position
}

// FakeServo records pulse widths.
type FakeServo struct {
	mu sync.Mutex

	// Pulses contains every pulse width written, in order.
	Pulses []time.Duration

	// Closed tracks if Close was called
	Closed bool
}

// SetPulse records width.
func (f *FakeServo) SetPulse(width time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulses = append(f.Pulses, width)
	return nil
}

// Close marks the servo as closed.
func (f *FakeServo) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Last returns the most recent pulse width, or zero.
func (f *FakeServo) Last() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Pulses) == 0 {
		return 0
	}
	return f.Pulses[len(f.Pulses)-1]
}

// FakePresence is a test double that returns scripted IR readings.
type FakePresence struct {
	mu sync.Mutex

	// Samples contains scripted readings (true = object present).
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakePresence creates a FakePresence with the given samples.
func NewFakePresence(samples ...bool) *FakePresence {
	return &FakePresence{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakePresence) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Set replaces the script with a single repeating value.
func (f *FakePresence) Set(present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = []bool{present}
	f.index = 0
}

// ReadCount returns how many times Read was called.
func (f *FakePresence) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads
}

// Close marks the sensor as closed.
func (f *FakePresence) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FakeSound records buzzer state.
type FakeSound struct {
	mu sync.Mutex

	Playing bool
	Starts  int
	Stops   int
	Closed  bool
}

func (f *FakeSound) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Playing = true
	f.Starts++
	return nil
}

func (f *FakeSound) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Playing = false
	f.Stops++
	return nil
}

func (f *FakeSound) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsPlaying reports whether Start was called more recently than Stop.
func (f *FakeSound) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Playing
}
