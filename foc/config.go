package foc

// AdcCycleLadder is the ADC sample-time ladder in ADC clock cycles.
// Config.AdcCycles selects the first entry at least as long as requested;
// the target glue programs that entry into every channel's sample-time
// field.
var AdcCycleLadder = [...]uint16{3, 15, 28, 56, 84, 112, 144, 480}

// Config is the persisted "servo" block. It is immutable within a control
// cycle and only written from the foreground through the persistent
// store, which calls back into updateConfig afterwards.
type Config struct {
	// Motor characterization.
	MotorPoles      float32 `cbor:"motor_poles"`
	MotorOffset     float32 `cbor:"motor_offset"`
	MotorResistance float32 `cbor:"motor_resistance"`
	MotorVPerHz     float32 `cbor:"motor_v_per_hz"`

	// ADC scaling.
	IScaleA                float32 `cbor:"i_scale_A"`
	VScaleV                float32 `cbor:"v_scale_V"`
	UnwrappedPositionScale float32 `cbor:"unwrapped_position_scale"`

	// Bus voltage fault threshold.
	MaxVoltage float32 `cbor:"max_voltage"`

	// ADC tuning.
	AdcCycles      int    `cbor:"adc_cycles"`
	AdcSampleCount uint16 `cbor:"adc_sample_count"`

	FeedforwardScale float32 `cbor:"feedforward_scale"`

	PidDq       PidConfig `cbor:"pid_dq"`
	PidPosition PidConfig `cbor:"pid_position"`
}

// DefaultConfig returns the power-on configuration used until the
// persistent store loads the saved block.
func DefaultConfig() Config {
	return Config{
		MotorPoles:             14,
		MotorOffset:            0,
		MotorResistance:        0.03,
		MotorVPerHz:            0.15,
		IScaleA:                0.02,
		VScaleV:                0.025,
		UnwrappedPositionScale: 1.0,
		MaxVoltage:             34.0,
		AdcCycles:              15,
		AdcSampleCount:         1,
		FeedforwardScale:       1.0,
		PidDq: PidConfig{
			Kp:            0.5,
			Ki:            100.0,
			IntegralLimit: 20.0,
			OutputLimit:   12.0,
		},
		PidPosition: PidConfig{
			Kp:            500.0,
			Ki:            100.0,
			Kd:            10.0,
			IntegralLimit: 10.0,
			OutputLimit:   100.0,
		},
	}
}
