// Package protocol defines the servo debug wire format: a fixed 12-byte
// status frame emitted once per control cycle and streamed continuously
// at 5Mbaud 8N1. There is no length or checksum; receivers resynchronize
// on the sync byte.
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	// FrameSync leads every frame.
	FrameSync = 0x5A
	// FrameSize is the fixed frame length in bytes.
	FrameSize = 12
)

// Quantization scales. Voltages ride the PID output range (+-12V full
// scale); the command current byte covers +-63.5A and the measured d-axis
// current +-65.5A at finer resolution.
const (
	thetaScale           = 255.0 / (2.0 * math.Pi)
	commandCurrentScale  = 2.0
	measuredCurrentScale = 500.0
	voltScale            = 32767.0 / 12.0
	velocityScale        = 127.0 / 10.0
)

// Frame is one status frame in engineering units. On the wire every field
// is quantized per the scales above; multi-byte fields are little-endian.
//
//	offset  size  content
//	0       1     sync 0x5A
//	1       1     electrical theta, uint8 over one electrical turn
//	2       1     commanded d-axis current, int8, 0.5A/LSB
//	3       2     measured d-axis current, int16, 2mA/LSB
//	5       2     d-axis PID proportional term, int16, 12V full scale
//	7       2     d-axis PID integral, int16, 12V full scale
//	9       2     commanded d-axis voltage, int16, 12V full scale
//	11      1     velocity, int8, 10 units/s full scale
type Frame struct {
	ElectricalTheta float32
	CommandDA       float32
	MeasuredDA      float32
	PidDP           float32
	PidDIntegral    float32
	ControlDV       float32
	Velocity        float32
}

// PutFrame packs f into buf, which must hold at least FrameSize bytes.
// It does not allocate; the control cycle calls it directly.
func PutFrame(buf []byte, f *Frame) {
	_ = buf[FrameSize-1]

	buf[0] = FrameSync
	buf[1] = uint8(f.ElectricalTheta * thetaScale)
	buf[2] = byte(int8(f.CommandDA * commandCurrentScale))
	binary.LittleEndian.PutUint16(buf[3:], uint16(int16(f.MeasuredDA*measuredCurrentScale)))
	binary.LittleEndian.PutUint16(buf[5:], uint16(int16(f.PidDP*voltScale)))
	binary.LittleEndian.PutUint16(buf[7:], uint16(int16(f.PidDIntegral*voltScale)))
	binary.LittleEndian.PutUint16(buf[9:], uint16(int16(f.ControlDV*voltScale)))
	buf[11] = byte(int8(f.Velocity * velocityScale))
}

// ErrBadSync reports a buffer that does not begin with FrameSync.
var ErrBadSync = errors.New("protocol: missing sync byte")

// ParseFrame decodes one frame back to engineering units. Values are
// quantized; expect only wire resolution.
func ParseFrame(buf []byte) (Frame, error) {
	if len(buf) < FrameSize {
		return Frame{}, io.ErrShortBuffer
	}
	if buf[0] != FrameSync {
		return Frame{}, ErrBadSync
	}

	return Frame{
		ElectricalTheta: float32(buf[1]) / thetaScale,
		CommandDA:       float32(int8(buf[2])) / commandCurrentScale,
		MeasuredDA:      float32(int16(binary.LittleEndian.Uint16(buf[3:]))) / measuredCurrentScale,
		PidDP:           float32(int16(binary.LittleEndian.Uint16(buf[5:]))) / voltScale,
		PidDIntegral:    float32(int16(binary.LittleEndian.Uint16(buf[7:]))) / voltScale,
		ControlDV:       float32(int16(binary.LittleEndian.Uint16(buf[9:]))) / voltScale,
		Velocity:        float32(int8(buf[11])) / velocityScale,
	}, nil
}
