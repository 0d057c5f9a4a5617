//go:build tinygo && stm32f4

package main

import (
	"encoding/binary"
	"machine"

	"tinygo.org/x/drivers/mcp2515"

	"gofoc/foc"
)

// CAN IDs of the command bus.
const (
	canIDCommand = 0x120
	canIDStatus  = 0x121
)

// Command payload layout (8 bytes, big endian):
//
//	0     mode
//	1..2  arg1 * 1000 (int16)
//	3..4  arg2 * 1000 (int16)
//	5..6  arg3 * 100  (int16)
//	7     flags (bit 0: stop)
//
// arg meaning follows the mode: duty triple for pwm, volts for voltage
// modes, amps for current, position/velocity/max-current for position.
type canBus struct {
	servo *foc.Servo
	can   *mcp2515.Device
}

func newCanBus(servo *foc.Servo) *canBus {
	spi := machine.SPI2
	spi.Configure(machine.SPIConfig{Frequency: 8000000})

	cs := machine.PB12
	can := mcp2515.New(spi, cs)
	can.Configure()
	if err := can.Begin(mcp2515.CAN500kBps, mcp2515.Clock8MHz); err != nil {
		// Leave the bus dead; the servo still runs from default config.
		return &canBus{servo: servo}
	}

	return &canBus{servo: servo, can: can}
}

// pollCommands drains pending command frames into the servo.
func (b *canBus) pollCommands() {
	if b.can == nil || !b.can.Received() {
		return
	}

	msg, err := b.can.Rx()
	if err != nil || msg.ID != canIDCommand || len(msg.Data) < 8 {
		return
	}

	data := decodeCommand(msg.Data)
	if data == nil {
		return
	}
	b.servo.Command(data)
}

func decodeCommand(raw []byte) *foc.CommandData {
	mode := foc.Mode(raw[0])
	arg1 := float32(int16(binary.BigEndian.Uint16(raw[1:]))) / 1000.0
	arg2 := float32(int16(binary.BigEndian.Uint16(raw[3:]))) / 1000.0
	arg3 := float32(int16(binary.BigEndian.Uint16(raw[5:]))) / 100.0

	// Flag bit 0 stops the servo whatever the mode byte says.
	if raw[7]&0x01 != 0 {
		return &foc.CommandData{Mode: foc.ModeStopped}
	}

	data := &foc.CommandData{Mode: mode}
	switch mode {
	case foc.ModeStopped:
	case foc.ModePwm:
		data.Pwm = foc.Vec3{A: arg1, B: arg2, C: arg3}
	case foc.ModeVoltage:
		data.PhaseV = foc.Vec3{A: arg1, B: arg2, C: arg3}
	case foc.ModeVoltageFoc:
		data.Theta = arg1
		data.Voltage = arg2
	case foc.ModeCurrent:
		data.IDA = arg1
		data.IQA = arg2
	case foc.ModePosition:
		data.Position = arg1
		data.Velocity = arg2
		data.MaxCurrent = arg3
	default:
		// Reserved or unknown modes never reach Command.
		return nil
	}
	return data
}

// pollStatus transmits one status frame. Called at the millisecond tick.
func (b *canBus) pollStatus() {
	if b.can == nil {
		return
	}

	st := b.servo.Status()

	var out [8]byte
	out[0] = byte(st.Mode)
	out[1] = byte(st.Fault)
	binary.BigEndian.PutUint16(out[2:], uint16(int16(st.DA*1000)))
	binary.BigEndian.PutUint16(out[4:], uint16(int16(st.QA*1000)))
	binary.BigEndian.PutUint16(out[6:], uint16(int16(st.Velocity*100)))

	b.can.Tx(canIDStatus, 8, out[:])
}
