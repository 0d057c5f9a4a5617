// Package foc implements the closed-loop core of a brushless servo drive:
// a 40kHz field-oriented control cycle paced by the PWM timer's update
// event. Each cycle samples currents and rotor position, runs the cascaded
// control loops and writes the three phase compare registers. Hardware is
// reached only through the capability interfaces in hal.go.
package foc

import (
	"errors"
	"sync/atomic"
)

// RateHz is the control cycle rate. The platform timer contract (90MHz
// clock, center-aligned up/down, repetition counter 1, ARR 1125) produces
// exactly this rate; the sensing and loop math assume it.
const RateHz = 40000.0

// calibrateSamples is the number of cycles averaged for the ADC offsets.
const calibrateSamples = 256

// maxPositionDelta is the largest per-cycle change of the raw position
// tolerated while running, in sensor counts.
const maxPositionDelta = 1000

// phaseChannel maps phase (a, b, c) to timer compare channels. The b/c
// swap matches the board's phase wiring; keep it literal.
var phaseChannel = [3]int{1, 3, 2}

var (
	ErrAlreadyActive     = errors.New("foc: another servo instance is active")
	ErrMissingPeripheral = errors.New("foc: missing required peripheral")
)

// activeServo is the process-wide cell the interrupt trampoline
// dispatches through. Established exclusively at construction, cleared by
// Close.
var activeServo atomic.Pointer[Servo]

// CycleISR runs one control cycle on the active instance. The platform
// glue calls this from the PWM timer update interrupt, once per up/down
// pair, after filtering on counter direction.
func CycleISR() {
	if s := activeServo.Load(); s != nil {
		s.isrCycle()
	}
}

// Servo is one motor controller. All fields below the exchange are owned
// by the control cycle unless noted.
type Servo struct {
	pwm      PwmTimer
	sampler  CurrentSampler
	position PositionSensor
	driver   MotorDriver
	debug    DebugStream

	config Config

	// mode is shared between the cycle and the foreground poller.
	mode atomic.Uint32

	exchange commandExchange

	// telemetryCmd is a foreground-only copy of the last command,
	// registered as the servo_cmd snapshot. Never read by the cycle.
	telemetryCmd CommandData

	status  Status
	control Control

	velocityFilter WindowedAverage
	calibrateAdc1  uint32
	calibrateAdc2  uint32
	calibrateCount uint16

	pidD        Pid
	pidQ        Pid
	pidPosition Pid

	pwmCounts float32
	debugBuf  [debugFrameSize]byte
}

// New builds a servo around the given collaborators and registers its
// persisted block and telemetry snapshots. Construction is exclusive:
// a second live instance returns ErrAlreadyActive.
func New(store ConfigStore, sink TelemetrySink, sensor PositionSensor,
	driver MotorDriver, opts Options) (*Servo, error) {
	if opts.Pwm == nil || opts.Currents == nil || sensor == nil || driver == nil {
		return nil, ErrMissingPeripheral
	}

	s := &Servo{
		pwm:      opts.Pwm,
		sampler:  opts.Currents,
		position: sensor,
		driver:   driver,
		debug:    opts.Debug,
		config:   DefaultConfig(),
	}
	s.exchange.init()
	s.pidD = NewPid(&s.config.PidDq, &s.status.PidD)
	s.pidQ = NewPid(&s.config.PidDq, &s.status.PidQ)
	s.pidPosition = NewPid(&s.config.PidPosition, &s.status.PidPosition)
	s.pwmCounts = float32(opts.Pwm.Counts())

	if !activeServo.CompareAndSwap(nil, s) {
		return nil, ErrAlreadyActive
	}

	if store != nil {
		store.Register("servo", &s.config, s.updateConfig)
	}
	if sink != nil {
		sink.Register("servo_stats", func() any { return s.Status() })
		sink.Register("servo_cmd", func() any { return s.telemetryCmd })
		sink.Register("servo_control", func() any { return s.control })
	}

	s.updateConfig()
	return s, nil
}

// Close releases the process-wide cell so a new instance may be
// constructed. The platform timer must be stopped first.
func (s *Servo) Close() {
	activeServo.CompareAndSwap(s, nil)
}

// updateConfig re-applies derived quantities. Called at construction and
// by the persistent store after the servo block is mutated.
func (s *Servo) updateConfig() {
	if s.config.AdcSampleCount < 1 {
		s.config.AdcSampleCount = 1
	}
	s.sampler.SetSampleTime(MapConfig(AdcCycleLadder[:], s.config.AdcCycles))
}

// Command submits a new command. Nonblocking; the command takes effect at
// the next cycle boundary and supersedes any previous one. Requesting a
// reserved internal mode is a programmer error and panics.
func (s *Servo) Command(data *CommandData) {
	if data.Mode.reserved() {
		panic("foc: reserved mode " + data.Mode.String() + " in command")
	}

	s.telemetryCmd = *data
	s.exchange.submit(data)
}

// Status returns a snapshot by value.
func (s *Servo) Status() Status {
	st := s.status
	st.Mode = s.modeNow()
	return st
}

// PollMillisecond is the foreground tick. It performs the one transition
// the cycle may not: once a command has put the controller in Enabling,
// the poller powers the gate driver rail and advances to Calibrating. The
// mode store publishes after the driver enable so the cycle observes
// Calibrating only with the driver up.
func (s *Servo) PollMillisecond() {
	if s.modeNow() == ModeEnabling {
		s.driver.Enable(true)
		s.setMode(ModeCalibrating)
	}
}

func (s *Servo) modeNow() Mode {
	return Mode(s.mode.Load())
}

func (s *Servo) setMode(m Mode) {
	s.mode.Store(uint32(m))
}

// isrFault latches a fault and shuts actuation down at once, so every
// path that enters Fault leaves the driver unpowered and the compare
// registers at zero on the same cycle.
func (s *Servo) isrFault(code Errc) {
	s.setMode(ModeFault)
	s.status.Fault = code
	s.isrDoFault()
}

// isrCycle is one 40kHz control cycle.
func (s *Servo) isrCycle() {
	s.isrSense()

	sc := NewSinCos(s.status.ElectricalTheta)

	s.isrCurrentState(&sc)
	s.isrControl(&sc)

	s.isrEmitDebug()
}

// isrSense oversamples the ADCs and updates the rotor state.
func (s *Servo) isrSense() {
	var adc1, adc2, adc3 uint32

	n := s.config.AdcSampleCount
	if n < 1 {
		n = 1
	}
	for i := uint16(0); i < n; i++ {
		s.sampler.StartConversion()
		c1, c2, vs := s.sampler.Read()
		adc1 += uint32(c1)
		adc2 += uint32(c2)
		adc3 += uint32(vs)
	}

	s.status.Adc1Raw = uint16(adc1 / uint32(n))
	s.status.Adc2Raw = uint16(adc2 / uint32(n))
	s.status.Adc3Raw = uint16(adc3 / uint32(n))

	// Everything below is still time critical, but no longer limits the
	// maximum reachable duty cycle the way the conversion wait does.

	oldPosition := s.status.PositionRaw
	s.status.PositionRaw = s.position.Sample()

	s.status.ElectricalTheta = twoPi * frac(
		float32(s.status.PositionRaw)/65536.0*(s.config.MotorPoles/2.0)-
			s.config.MotorOffset)

	// Signed modular delta: a wraparound of the raw sensor value must
	// come out as a small step.
	delta := int16(s.status.PositionRaw - oldPosition)
	if d := int(delta); s.modeNow() != ModeStopped && (d > maxPositionDelta || d < -maxPositionDelta) {
		// The position read was almost certainly corrupt.
		s.isrFault(ErrcEncoderFault)
	}

	s.status.UnwrappedPositionRaw += int32(delta)
	s.velocityFilter.Add(float32(delta) * s.config.UnwrappedPositionScale *
		(1.0 / 65536.0) * RateHz)
	s.status.Velocity = s.velocityFilter.Average()

	s.status.UnwrappedPosition = float32(s.status.UnwrappedPositionRaw) *
		s.config.UnwrappedPositionScale * (1.0 / 65536.0)
}

// isrCurrentState converts the raw ADC means into phase currents, bus
// voltage and the rotor-frame currents. Only two current sensors exist;
// the third leg is reconstructed from the zero-sum constraint.
func (s *Servo) isrCurrentState(sc *SinCos) {
	st := &s.status
	st.Cur1A = (float32(st.Adc1Raw) - float32(st.Adc1Offset)) * s.config.IScaleA
	st.Cur2A = (float32(st.Adc2Raw) - float32(st.Adc2Offset)) * s.config.IScaleA
	st.BusV = float32(st.Adc3Raw) * s.config.VScaleV

	st.DA, st.QA = DqTransform(sc, st.Cur1A, -(st.Cur1A + st.Cur2A), st.Cur2A)
}

// isrControl reconciles the commanded mode with the current one and
// dispatches the per-mode actuation.
func (s *Servo) isrControl(sc *SinCos) {
	// The live pointer is read once; the rest of the cycle works on it.
	data := s.exchange.current.Load()

	s.control = Control{}

	if data.HaveSetPosition {
		s.status.UnwrappedPositionRaw = int32(data.SetPosition * 65536.0)
		data.HaveSetPosition = false
	}

	if data.Mode != s.modeNow() {
		s.isrMaybeChangeMode(data)

		if s.modeNow() != ModeStopped {
			if s.driver.Fault() {
				s.isrFault(ErrcMotorDriverFault)
				return
			}
			if s.status.BusV > s.config.MaxVoltage {
				s.isrFault(ErrcOverVoltage)
				return
			}
		}
	}

	s.isrClearPid()

	// The last fault stays readable through a recovery stop; it clears
	// once the controller is running again.
	if mode := s.modeNow(); mode != ModeFault && mode != ModeStopped {
		s.status.Fault = ErrcSuccess
	}

	switch s.modeNow() {
	case ModeStopped:
		s.isrDoStopped()
	case ModeFault:
		s.isrDoFault()
	case ModeEnabling, ModeCalibrationComplete:
		// No actuation until told otherwise.
	case ModeCalibrating:
		s.isrDoCalibrating()
	case ModePwm:
		s.isrDoPwm(data.Pwm)
	case ModeVoltage:
		s.isrDoVoltage(data.PhaseV)
	case ModeVoltageFoc:
		s.isrDoVoltageFoc(data.Theta, data.Voltage)
	case ModeCurrent:
		s.isrDoCurrentLoop(sc, data.IDA, data.IQA)
	case ModePosition:
		s.isrDoPosition(sc, data.Position, data.Velocity, data.MaxCurrent)
	}
}

// isrMaybeChangeMode advances toward the requested mode where legal.
func (s *Servo) isrMaybeChangeMode(data *CommandData) {
	switch data.Mode {
	case ModeStopped:
		// Always accepted.
		s.setMode(ModeStopped)

	case ModeEnabling:
		// Only the foreground poller may complete this transition.

	case ModePwm, ModeVoltage, ModeVoltageFoc, ModeCurrent, ModePosition:
		switch s.modeNow() {
		case ModeFault:
			// A fault can only be left through an explicit stop.
		case ModeStopped:
			s.isrStartCalibrating()
		case ModeEnabling, ModeCalibrating:
			// Calibration has to finish first.
		default:
			s.setMode(data.Mode)
		}
	}
}

// isrStartCalibrating begins the stop-to-active sequence: outputs off,
// driver unpowered, accumulators cleared. The foreground poller advances
// Enabling to Calibrating once the driver rail is up.
func (s *Servo) isrStartCalibrating() {
	s.setMode(ModeEnabling)

	s.pwm.SetCompare(1, 0)
	s.pwm.SetCompare(2, 0)
	s.pwm.SetCompare(3, 0)

	// Power should already be off in any state that can reach here.
	s.driver.Power(false)

	s.calibrateAdc1 = 0
	s.calibrateAdc2 = 0
	s.calibrateCount = 0
}

// isrClearPid zeroes any controller the current mode does not use.
func (s *Servo) isrClearPid() {
	mode := s.modeNow()

	if mode != ModeCurrent && mode != ModePosition {
		s.pidD.Reset()
		s.pidQ.Reset()
	}
	if mode != ModePosition {
		s.pidPosition.Reset()
	}
}

func (s *Servo) isrDoStopped() {
	s.driver.Enable(false)
	s.driver.Power(false)
	s.pwm.SetCompare(1, 0)
	s.pwm.SetCompare(2, 0)
	s.pwm.SetCompare(3, 0)
}

func (s *Servo) isrDoFault() {
	s.driver.Power(false)
	s.pwm.SetCompare(1, 0)
	s.pwm.SetCompare(2, 0)
	s.pwm.SetCompare(3, 0)
}

// isrDoCalibrating averages the zero-current ADC readings. The bridge is
// unpowered, so both current channels should sit at mid-scale.
func (s *Servo) isrDoCalibrating() {
	s.calibrateAdc1 += uint32(s.status.Adc1Raw)
	s.calibrateAdc2 += uint32(s.status.Adc2Raw)
	s.calibrateCount++

	if s.calibrateCount < calibrateSamples {
		return
	}

	offset1 := uint16(s.calibrateAdc1 / calibrateSamples)
	offset2 := uint16(s.calibrateAdc2 / calibrateSamples)

	if outsideCalBand(offset1) || outsideCalBand(offset2) {
		s.isrFault(ErrcCalibrationFault)
		return
	}

	s.status.Adc1Offset = offset1
	s.status.Adc2Offset = offset2
	s.setMode(ModeCalibrationComplete)
}

// outsideCalBand reports whether a zero-current mean is too far from
// mid-scale to be a plausible offset.
func outsideCalBand(offset uint16) bool {
	d := int(offset) - 2048
	return d > 200 || d < -200
}

func (s *Servo) isrDoPwm(pwm Vec3) {
	s.control.Pwm = Vec3{
		A: LimitPwm(pwm.A),
		B: LimitPwm(pwm.B),
		C: LimitPwm(pwm.C),
	}

	s.pwm.SetCompare(phaseChannel[0], uint32(s.control.Pwm.A*s.pwmCounts))
	s.pwm.SetCompare(phaseChannel[1], uint32(s.control.Pwm.B*s.pwmCounts))
	s.pwm.SetCompare(phaseChannel[2], uint32(s.control.Pwm.C*s.pwmCounts))

	s.driver.Power(true)
}

func (s *Servo) isrDoVoltage(voltage Vec3) {
	s.control.Voltage = voltage

	busV := s.status.BusV
	s.isrDoPwm(Vec3{
		A: 0.5 + 2.0*voltage.A/busV,
		B: 0.5 + 2.0*voltage.B/busV,
		C: 0.5 + 2.0*voltage.C/busV,
	})
}

func (s *Servo) isrDoVoltageFoc(theta, voltage float32) {
	sc := NewSinCos(theta)
	s.isrDoVoltage(InverseDqTransform(&sc, 0, voltage))
}

func (s *Servo) isrDoCurrentLoop(sc *SinCos, idA, iqA float32) {
	s.control.IDA = idA
	s.control.IQA = iqA

	cfg := &s.config
	s.control.DV = cfg.FeedforwardScale*
		(idA*cfg.MotorResistance-s.status.Velocity*cfg.MotorVPerHz) +
		s.pidD.Apply(s.status.DA, idA, 0, 0, RateHz)
	s.control.QV = cfg.FeedforwardScale*(iqA*cfg.MotorResistance) +
		s.pidQ.Apply(s.status.QA, iqA, 0, 0, RateHz)

	s.isrDoVoltage(InverseDqTransform(sc, s.control.DV, s.control.QV))
}

func (s *Servo) isrDoPosition(sc *SinCos, position, velocity, maxCurrent float32) {
	unlimited := s.pidPosition.Apply(
		s.status.UnwrappedPosition, position,
		s.status.Velocity, velocity, RateHz)

	s.isrDoCurrentLoop(sc, Limit(unlimited, -maxCurrent, maxCurrent), 0)
}
