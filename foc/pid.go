package foc

// PidConfig is the gain set for one PID loop. It lives in Config and is
// only mutated from the foreground through the persistent store.
type PidConfig struct {
	Kp float32 `cbor:"kp"`
	Ki float32 `cbor:"ki"`
	Kd float32 `cbor:"kd"`

	// IntegralLimit bounds the integral accumulator symmetrically.
	IntegralLimit float32 `cbor:"ilimit"`
	// OutputLimit bounds the command symmetrically.
	OutputLimit float32 `cbor:"limit"`
}

// PidState is the controller's telemetry-visible state: the individual
// terms of the last command. Zero value means a cleared controller.
type PidState struct {
	P        float32
	Integral float32
	D        float32
	Command  float32
}

// Pid binds a gain set to its state. The config pointer aliases Config so
// gain updates from the foreground take effect without rebinding; the
// state pointer aliases Status so telemetry sees the terms directly.
type Pid struct {
	cfg   *PidConfig
	state *PidState
}

// NewPid binds cfg and state. Neither may be nil.
func NewPid(cfg *PidConfig, state *PidState) Pid {
	return Pid{cfg: cfg, state: state}
}

// Apply advances the controller one sample and returns the new command.
//
// The derivative acts on the rate terms supplied by the caller rather
// than on the error, so a setpoint step does not kick the output.
func (p Pid) Apply(measured, desired, measuredRate, desiredRate, rateHz float32) float32 {
	cfg := p.cfg
	st := p.state

	err := desired - measured

	st.Integral += err / rateHz
	st.Integral = Limit(st.Integral, -cfg.IntegralLimit, cfg.IntegralLimit)

	st.P = cfg.Kp * err
	st.D = cfg.Kd * (desiredRate - measuredRate)

	st.Command = Limit(st.P+cfg.Ki*st.Integral+st.D,
		-cfg.OutputLimit, cfg.OutputLimit)
	return st.Command
}

// Reset zeroes the controller state.
func (p Pid) Reset() {
	*p.state = PidState{}
}
