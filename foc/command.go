package foc

import "sync/atomic"

// Mode is the controller state. Stored in a word-sized atomic cell because
// both the control cycle and the foreground poller read-modify-write it.
type Mode uint32

const (
	ModeStopped Mode = iota
	ModeEnabling
	ModeCalibrating
	ModeCalibrationComplete
	ModeFault
	ModePwm
	ModeVoltage
	ModeVoltageFoc
	ModeCurrent
	ModePosition
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeEnabling:
		return "enabling"
	case ModeCalibrating:
		return "calibrating"
	case ModeCalibrationComplete:
		return "calibration_complete"
	case ModeFault:
		return "fault"
	case ModePwm:
		return "pwm"
	case ModeVoltage:
		return "voltage"
	case ModeVoltageFoc:
		return "voltage_foc"
	case ModeCurrent:
		return "current"
	case ModePosition:
		return "position"
	}
	return "unknown"
}

// reserved reports whether a mode may never be requested through Command.
func (m Mode) reserved() bool {
	switch m {
	case ModeFault, ModeEnabling, ModeCalibrating, ModeCalibrationComplete:
		return true
	}
	return false
}

// Errc is the fault code recorded in Status.
type Errc uint8

const (
	ErrcSuccess Errc = iota
	ErrcEncoderFault
	ErrcMotorDriverFault
	ErrcOverVoltage
	ErrcCalibrationFault
)

func (e Errc) String() string {
	switch e {
	case ErrcSuccess:
		return "success"
	case ErrcEncoderFault:
		return "encoder_fault"
	case ErrcMotorDriverFault:
		return "motor_driver_fault"
	case ErrcOverVoltage:
		return "over_voltage"
	case ErrcCalibrationFault:
		return "calibration_fault"
	}
	return "unknown"
}

// CommandData is one command from the foreground. Only the payload for the
// selected mode is read by the control cycle.
type CommandData struct {
	Mode Mode

	// ModePwm: per-phase duty ratios, 0..1.
	Pwm Vec3

	// ModeVoltage: per-phase voltages.
	PhaseV Vec3

	// ModeVoltageFoc: a fixed voltage vector at electrical angle Theta.
	Theta   float32
	Voltage float32

	// ModeCurrent: d/q current targets in amps.
	IDA float32
	IQA float32

	// ModePosition: position target, velocity feedforward and current
	// bound.
	Position   float32
	Velocity   float32
	MaxCurrent float32

	// When HaveSetPosition is set, the next control cycle seeds
	// unwrapped_position_raw from SetPosition and clears the flag.
	HaveSetPosition bool
	SetPosition     float32
}

// commandExchange is the wait-free handoff between the foreground and the
// control cycle: two statically owned buffers exchanged by atomic pointer
// swap. Single producer, single consumer, no allocation on the hot path.
type commandExchange struct {
	buffers [2]CommandData
	current atomic.Pointer[CommandData]
	next    atomic.Pointer[CommandData]
}

func (e *commandExchange) init() {
	e.current.Store(&e.buffers[0])
	e.next.Store(&e.buffers[1])
}

// submit copies data into the spare buffer and swaps it live. The control
// cycle dereferences current once at the top of each cycle, so the new
// command takes effect on the next cycle boundary. Foreground only.
func (e *commandExchange) submit(data *CommandData) {
	next := e.next.Load()
	*next = *data
	e.next.Store(e.current.Swap(next))
}
