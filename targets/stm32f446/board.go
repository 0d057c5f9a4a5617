//go:build tinygo && stm32f4

package main

import (
	"machine"

	"gofoc/foc"
)

// Board pin and channel assignments.
const (
	adcChannelCurrent1 = 0  // PA0
	adcChannelCurrent2 = 1  // PA1
	adcChannelVsense   = 10 // PC0
)

var (
	pinDriverEnable = machine.PB3
	pinDriverPower  = machine.PB4
	pinDriverFault  = machine.PB5
)

// gateDriver is the external gate driver's three control lines.
type gateDriver struct{}

func newGateDriver() *gateDriver {
	pinDriverEnable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinDriverPower.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinDriverFault.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	pinDriverEnable.Low()
	pinDriverPower.Low()
	return &gateDriver{}
}

func (d *gateDriver) Enable(on bool) { pinDriverEnable.Set(on) }
func (d *gateDriver) Power(on bool)  { pinDriverPower.Set(on) }
func (d *gateDriver) Fault() bool    { return d.faultLatch() }

// Fault line is active low.
func (d *gateDriver) faultLatch() bool { return !pinDriverFault.Get() }

var _ foc.MotorDriver = (*gateDriver)(nil)

// spiSensor reads a 16-bit absolute magnetic encoder over SPI. The
// sensor answers a one-word read with the current angle; the transfer
// completes well inside the sensing budget.
type spiSensor struct {
	spi machine.SPI
	cs  machine.Pin
}

func newPositionSensor() *spiSensor {
	cs := machine.PA4
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()

	spi := machine.SPI1
	spi.Configure(machine.SPIConfig{
		Frequency: 10000000,
		Mode:      1,
	})

	return &spiSensor{spi: spi, cs: cs}
}

func (s *spiSensor) Sample() uint16 {
	s.cs.Low()
	hi, _ := s.spi.Transfer(0xFF)
	lo, _ := s.spi.Transfer(0xFF)
	s.cs.High()
	return uint16(hi)<<8 | uint16(lo)
}

var _ foc.PositionSensor = (*spiSensor)(nil)
