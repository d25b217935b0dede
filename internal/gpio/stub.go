//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealStepper is not available on non-Linux platforms.
type RealStepper struct{}

// NewRealStepper returns an error on non-Linux platforms.
func NewRealStepper(pins [4]int, delay time.Duration) (*RealStepper, error) {
	return nil, errUnsupported
}

func (s *RealStepper) Move(delta int) error { return errUnsupported }
func (s *RealStepper) Close() error         { return nil }

// RealPresence is not available on non-Linux platforms.
type RealPresence struct{}

// NewRealPresence returns an error on non-Linux platforms.
func NewRealPresence(pin int) (*RealPresence, error) {
	return nil, errUnsupported
}

func (p *RealPresence) Read() (bool, error) { return false, errUnsupported }
func (p *RealPresence) Close() error        { return nil }

// RealBuzzer is not available on non-Linux platforms.
type RealBuzzer struct{}

// NewRealBuzzer returns an error on non-Linux platforms.
func NewRealBuzzer(pin int) (*RealBuzzer, error) {
	return nil, errUnsupported
}

func (b *RealBuzzer) Start() error { return errUnsupported }
func (b *RealBuzzer) Stop() error  { return errUnsupported }
func (b *RealBuzzer) Close() error { return nil }
