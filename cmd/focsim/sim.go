package main

import (
	"time"

	"gofoc/foc"
)

// simBoard is the fake hardware: mid-scale current sensors, a fixed bus
// voltage and a slowly turning rotor, enough for every mode to run.
type simBoard struct {
	pwm    *simPwm
	adc    *simAdc
	sensor *simSensor
	driver *simDriver
}

func newSimBoard(busVolts float64) *simBoard {
	return &simBoard{
		pwm: &simPwm{},
		// Default scaling is 0.025 V/LSB.
		adc:    &simAdc{bus: uint16(busVolts / 0.025)},
		sensor: &simSensor{},
		driver: &simDriver{},
	}
}

type simPwm struct {
	compare [4]uint32
}

func (p *simPwm) Counts() uint32 { return 1125 }

func (p *simPwm) SetCompare(channel int, value uint32) {
	p.compare[channel] = value
}

// simAdc answers every conversion with quiet zero-current channels and
// the configured bus voltage.
type simAdc struct {
	bus         uint16
	sampleIndex int
}

func (a *simAdc) StartConversion() {}

func (a *simAdc) Read() (uint16, uint16, uint16) {
	return 2048, 2048, a.bus
}

func (a *simAdc) SetSampleTime(index int) { a.sampleIndex = index }

// simSensor turns the rotor a few counts per sample so positions and
// velocities in the telemetry actually move.
type simSensor struct {
	value uint16
}

func (s *simSensor) Sample() uint16 {
	s.value += 3
	return s.value
}

type simDriver struct {
	enabled bool
	powered bool
}

func (d *simDriver) Enable(on bool) { d.enabled = on }
func (d *simDriver) Power(on bool)  { d.powered = on }
func (d *simDriver) Fault() bool    { return false }

// runCycles paces the control core. Wall-clock timers cannot hit 40kHz,
// so each millisecond tick runs a burst of 40 cycles followed by the
// foreground poll, preserving the cycle-to-poll ratio of the real board.
func runCycles(servo *foc.Servo) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := 0; i < foc.RateHz/1000; i++ {
			foc.CycleISR()
		}
		servo.PollMillisecond()
	}
}
