package foc

// Peripheral capability interfaces. The core drives hardware only through
// these; register layouts, clock enables and pin maps live in the target
// glue. Platform implementations must be callable from interrupt context.

// PwmTimer is the three-phase center-aligned PWM timer. All three phases
// share one timer; the update event of that timer paces the control cycle.
type PwmTimer interface {
	// Counts returns the full-scale compare count (the timer ARR value).
	Counts() uint32

	// SetCompare writes one channel's compare register. Channels are
	// numbered 1..3 as on the timer datasheet.
	SetCompare(channel int, value uint32)
}

// CurrentSampler is the triple simultaneous-sampling ADC: two phase
// current channels plus the bus voltage channel.
type CurrentSampler interface {
	// StartConversion triggers one simultaneous conversion on all three
	// channels.
	StartConversion()

	// Read busy-waits for end of conversion and returns the raw results.
	// The wait is bounded by the programmed sample time; it is the only
	// blocking the control cycle is permitted.
	Read() (cur1, cur2, vsense uint16)

	// SetSampleTime applies an index into AdcCycleLadder to all channels.
	SetSampleTime(index int)
}

// PositionSensor returns the raw rotor angle, wrapping at 65536.
// Sample must be nonblocking.
type PositionSensor interface {
	Sample() uint16
}

// MotorDriver is the external gate driver.
type MotorDriver interface {
	// Enable switches the gate driver power rail.
	Enable(on bool)
	// Power engages or disengages the bridge outputs.
	Power(on bool)
	// Fault reads the hardware fault latch.
	Fault() bool
}

// DebugStream accepts one status frame per cycle for transmission. StartTx
// must kick the transfer and return immediately; it is called again one
// cycle (25us) later and may assume the previous transfer has drained by
// then.
type DebugStream interface {
	StartTx(buf []byte)
}

// ConfigStore is the persistent-configuration collaborator: it owns the
// named block and calls onUpdate after any mutation.
type ConfigStore interface {
	Register(name string, value any, onUpdate func())
}

// TelemetrySink is the telemetry collaborator: snapshot is called from the
// foreground whenever an observer wants the current value.
type TelemetrySink interface {
	Register(name string, snapshot func() any)
}

// Options names the board resources the servo drives directly: the
// shared three-phase timer, the current/bus-voltage sampler and the
// optional debug stream. Debug may be nil; the rest is required.
type Options struct {
	Pwm      PwmTimer
	Currents CurrentSampler
	Debug    DebugStream
}
