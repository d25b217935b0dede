package gpio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultPWMRoot is where the kernel exposes PWM controllers.
const DefaultPWMRoot = "/sys/class/pwm"

// PWMServo drives a hobby servo through a sysfs PWM channel.
type PWMServo struct {
	chipDir string
	chanDir string
	channel int
}

// NewPWMServo exports the channel if needed, sets a 20 ms period and enables
// the output. root is normally DefaultPWMRoot.
func NewPWMServo(root string, chip, channel int) (*PWMServo, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	s := &PWMServo{
		chipDir: chipDir,
		chanDir: filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel)),
		channel: channel,
	}

	if _, err := os.Stat(s.chanDir); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", channel, err)
		}
	}
	if err := s.write(filepath.Join(s.chanDir, "period"), nanos(ServoPeriod)); err != nil {
		return nil, fmt.Errorf("set period: %w", err)
	}
	if err := s.write(filepath.Join(s.chanDir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("enable pwm%d: %w", channel, err)
	}
	return s, nil
}

// SetPulse writes the duty cycle, clamped to the servo's pulse range.
func (s *PWMServo) SetPulse(width time.Duration) error {
	if width < ServoMinPulse {
		width = ServoMinPulse
	}
	if width > ServoMaxPulse {
		width = ServoMaxPulse
	}
	if err := s.write(filepath.Join(s.chanDir, "duty_cycle"), nanos(width)); err != nil {
		return fmt.Errorf("set duty cycle: %w", err)
	}
	return nil
}

// Close disables and unexports the channel.
func (s *PWMServo) Close() error {
	var errs []error
	if err := s.write(filepath.Join(s.chanDir, "enable"), "0"); err != nil {
		errs = append(errs, fmt.Errorf("disable pwm%d: %w", s.channel, err))
	}
	if err := s.write(filepath.Join(s.chipDir, "unexport"), strconv.Itoa(s.channel)); err != nil {
		errs = append(errs, fmt.Errorf("unexport pwm%d: %w", s.channel, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (s *PWMServo) write(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func nanos(d time.Duration) string {
	return strconv.FormatInt(d.Nanoseconds(), 10)
}
