package foc

// Status is owned by the control cycle; the foreground reads it by value
// copy. Fields other than Mode may tear under concurrent snapshot, which
// is acceptable for telemetry; Mode is carried in an atomic cell and
// merged into the copy by Servo.Status.
type Status struct {
	Mode  Mode
	Fault Errc

	// Oversampled raw ADC means.
	Adc1Raw uint16
	Adc2Raw uint16
	Adc3Raw uint16

	// Calibrated zero-current offsets, Q12 around 2048.
	Adc1Offset uint16
	Adc2Offset uint16

	// Derived electrical quantities.
	Cur1A float32
	Cur2A float32
	BusV  float32
	DA    float32
	QA    float32

	// Rotor state. PositionRaw wraps at 65536; UnwrappedPositionRaw is
	// the running sum of signed deltas.
	PositionRaw          uint16
	UnwrappedPositionRaw int32
	UnwrappedPosition    float32
	ElectricalTheta      float32
	Velocity             float32

	// Loop telemetry.
	PidD        PidState
	PidQ        PidState
	PidPosition PidState
}

// Control is the per-cycle actuation output, exposed for telemetry.
type Control struct {
	Pwm     Vec3
	Voltage Vec3
	IDA     float32
	IQA     float32
	DV      float32
	QV      float32
}
