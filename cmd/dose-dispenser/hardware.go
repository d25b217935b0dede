package main

import (
	"fmt"
	"log"

	"github.com/sweeney/dose-dispenser/internal/config"
	"github.com/sweeney/dose-dispenser/internal/device"
	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/motion"
)

type closer interface {
	Close() error
}

// openHardware opens the actuators and sensors, or fakes of them when the
// config asks for simulation. The returned func closes whatever was opened.
func openHardware(cfg config.Config) (device.Hardware, func(), error) {
	if cfg.Simulate {
		log.Printf("hardware: simulated")
		return device.Hardware{
			Stepper:  &gpio.FakeStepper{},
			Servo:    &gpio.FakeServo{},
			Presence: gpio.NewFakePresence(false),
			Sound:    &gpio.FakeSound{},
		}, func() {}, nil
	}

	var opened []closer
	closeAll := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			if err := opened[i].Close(); err != nil {
				log.Printf("hardware: close: %v", err)
			}
		}
	}
	fail := func(what string, err error) (device.Hardware, func(), error) {
		closeAll()
		return device.Hardware{}, nil, fmt.Errorf("init %s: %w", what, err)
	}

	stepper, err := gpio.NewRealStepper([4]int{gpio.PinIN1, gpio.PinIN2, gpio.PinIN3, gpio.PinIN4}, gpio.StepDelay)
	if err != nil {
		return fail("stepper", err)
	}
	opened = append(opened, stepper)

	servo, err := gpio.NewPWMServo(cfg.PWMRoot, cfg.PWMChip, cfg.PWMChannel)
	if err != nil {
		return fail("servo", err)
	}
	opened = append(opened, servo)

	presence, err := gpio.NewRealPresence(gpio.PinIR)
	if err != nil {
		return fail("ir sensor", err)
	}
	opened = append(opened, presence)

	buzzer, err := gpio.NewRealBuzzer(gpio.PinBuzzer)
	if err != nil {
		return fail("buzzer", err)
	}
	opened = append(opened, buzzer)

	return device.Hardware{
		Stepper:  stepper,
		Servo:    servo,
		Presence: presence,
		Sound:    buzzer,
	}, closeAll, nil
}

func motionConfig(cfg config.Config) motion.Config {
	m := motion.DefaultConfig()
	if cfg.StepsPerRev > 0 {
		m.StepsPerRev = cfg.StepsPerRev
	}
	if cfg.Slots > 0 {
		m.Slots = cfg.Slots
	}
	m.OpenAngle = cfg.OpenAngle
	m.ClosedAngle = cfg.ClosedAngle
	if cfg.IRSettle > 0 {
		m.IRSettle = cfg.IRSettle
	}
	return m
}
