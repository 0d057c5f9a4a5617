package foc

import (
	"testing"

	"gofoc/protocol"
)

// fakePwm records compare writes. Channel indexes follow the hardware
// numbering 1..3.
type fakePwm struct {
	compare [4]uint32
}

func (p *fakePwm) Counts() uint32 { return 1125 }

func (p *fakePwm) SetCompare(channel int, value uint32) {
	p.compare[channel] = value
}

// fakeSampler returns fixed conversion results.
type fakeSampler struct {
	adc1, adc2, adc3 uint16

	starts      int
	sampleIndex int
}

func (s *fakeSampler) StartConversion() { s.starts++ }

func (s *fakeSampler) Read() (uint16, uint16, uint16) {
	return s.adc1, s.adc2, s.adc3
}

func (s *fakeSampler) SetSampleTime(index int) { s.sampleIndex = index }

type fakeSensor struct {
	value uint16
}

func (s *fakeSensor) Sample() uint16 { return s.value }

type fakeDriver struct {
	enabled bool
	powered bool
	fault   bool
}

func (d *fakeDriver) Enable(on bool) { d.enabled = on }
func (d *fakeDriver) Power(on bool)  { d.powered = on }
func (d *fakeDriver) Fault() bool    { return d.fault }

type fakeStream struct {
	kicks int
	last  [protocol.FrameSize]byte
}

func (f *fakeStream) StartTx(buf []byte) {
	f.kicks++
	copy(f.last[:], buf)
}

type rig struct {
	servo   *Servo
	pwm     *fakePwm
	sampler *fakeSampler
	sensor  *fakeSensor
	driver  *fakeDriver
	stream  *fakeStream
}

// newRig builds a servo on fakes with mid-scale current channels and a
// 24V bus (adc3 = 960 at the default 0.025 V/LSB).
func newRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		pwm:     &fakePwm{},
		sampler: &fakeSampler{adc1: 2048, adc2: 2048, adc3: 960},
		sensor:  &fakeSensor{},
		driver:  &fakeDriver{},
		stream:  &fakeStream{},
	}

	s, err := New(nil, nil, r.sensor, r.driver, Options{
		Pwm:      r.pwm,
		Currents: r.sampler,
		Debug:    r.stream,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	r.servo = s
	return r
}

func (r *rig) tick(n int) {
	for i := 0; i < n; i++ {
		CycleISR()
	}
}

// startInto drives the full startup sequence for a command: one cycle to
// enter Enabling, a foreground poll to reach Calibrating, 256 cycles of
// offset averaging, and one more cycle to adopt the requested mode.
func (r *rig) startInto(t *testing.T, data *CommandData) {
	t.Helper()

	r.servo.Command(data)

	r.tick(1)
	if got := r.servo.Status().Mode; got != ModeEnabling {
		t.Fatalf("after command: mode = %v, want %v", got, ModeEnabling)
	}

	r.servo.PollMillisecond()
	if got := r.servo.Status().Mode; got != ModeCalibrating {
		t.Fatalf("after poll: mode = %v, want %v", got, ModeCalibrating)
	}
	if !r.driver.enabled {
		t.Fatal("driver not enabled before calibrating")
	}

	r.tick(256)
	if got := r.servo.Status().Mode; got != ModeCalibrationComplete {
		t.Fatalf("after 256 cycles: mode = %v, want %v",
			got, ModeCalibrationComplete)
	}

	r.tick(1)
	if got := r.servo.Status().Mode; got != data.Mode {
		t.Fatalf("final mode = %v, want %v", got, data.Mode)
	}
}

func TestConstructionIsExclusive(t *testing.T) {
	r := newRig(t)

	_, err := New(nil, nil, r.sensor, r.driver, Options{
		Pwm:      r.pwm,
		Currents: r.sampler,
	})
	if err != ErrAlreadyActive {
		t.Fatalf("second New: err = %v, want %v", err, ErrAlreadyActive)
	}

	r.servo.Close()
	s, err := New(nil, nil, r.sensor, r.driver, Options{
		Pwm:      r.pwm,
		Currents: r.sampler,
	})
	if err != nil {
		t.Fatalf("New after Close: %v", err)
	}
	s.Close()
}

func TestMissingPeripheral(t *testing.T) {
	_, err := New(nil, nil, nil, nil, Options{})
	if err != ErrMissingPeripheral {
		t.Fatalf("err = %v, want %v", err, ErrMissingPeripheral)
	}
}

func TestReservedModePanics(t *testing.T) {
	r := newRig(t)

	for _, mode := range []Mode{
		ModeFault, ModeEnabling, ModeCalibrating, ModeCalibrationComplete,
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Command(%v) did not panic", mode)
				}
			}()
			r.servo.Command(&CommandData{Mode: mode})
		}()
	}
}

func TestStoppedIdle(t *testing.T) {
	r := newRig(t)

	r.servo.Command(&CommandData{Mode: ModeStopped})
	r.tick(1)

	st := r.servo.Status()
	if st.Mode != ModeStopped {
		t.Fatalf("mode = %v, want %v", st.Mode, ModeStopped)
	}
	for ch := 1; ch <= 3; ch++ {
		if r.pwm.compare[ch] != 0 {
			t.Errorf("compare[%d] = %d, want 0", ch, r.pwm.compare[ch])
		}
	}
	if r.driver.powered || r.driver.enabled {
		t.Errorf("driver powered=%v enabled=%v, want false/false",
			r.driver.powered, r.driver.enabled)
	}
}

func TestCalibrationSequence(t *testing.T) {
	r := newRig(t)

	r.startInto(t, &CommandData{Mode: ModeCurrent})

	st := r.servo.Status()
	if st.Adc1Offset != 2048 || st.Adc2Offset != 2048 {
		t.Fatalf("offsets = %d, %d, want 2048, 2048",
			st.Adc1Offset, st.Adc2Offset)
	}
	if st.Fault != ErrcSuccess {
		t.Fatalf("fault = %v, want %v", st.Fault, ErrcSuccess)
	}
}

func TestCalibrationFault(t *testing.T) {
	r := newRig(t)
	r.sampler.adc1 = 1000

	r.servo.Command(&CommandData{Mode: ModeCurrent})
	r.tick(1)
	r.servo.PollMillisecond()
	r.tick(256)

	st := r.servo.Status()
	if st.Mode != ModeFault {
		t.Fatalf("mode = %v, want %v", st.Mode, ModeFault)
	}
	if st.Fault != ErrcCalibrationFault {
		t.Fatalf("fault = %v, want %v", st.Fault, ErrcCalibrationFault)
	}
}

func TestCalibrationRejectsEarlyModeChange(t *testing.T) {
	r := newRig(t)

	r.servo.Command(&CommandData{Mode: ModeCurrent})
	r.tick(1)
	r.servo.PollMillisecond()
	r.tick(10)

	// A new active-mode command must not skip the rest of calibration.
	r.servo.Command(&CommandData{Mode: ModeVoltage})
	r.tick(1)
	if got := r.servo.Status().Mode; got != ModeCalibrating {
		t.Fatalf("mode = %v, want %v", got, ModeCalibrating)
	}
}

func TestMotorDriverFaultOnStart(t *testing.T) {
	r := newRig(t)
	r.driver.fault = true

	r.servo.Command(&CommandData{Mode: ModeCurrent})
	r.tick(1)

	st := r.servo.Status()
	if st.Mode != ModeFault || st.Fault != ErrcMotorDriverFault {
		t.Fatalf("mode=%v fault=%v, want %v/%v",
			st.Mode, st.Fault, ModeFault, ErrcMotorDriverFault)
	}
}

func TestOverVoltageOnStart(t *testing.T) {
	r := newRig(t)
	r.sampler.adc3 = 2000 // 50V at 0.025 V/LSB, above the 34V limit

	r.servo.Command(&CommandData{Mode: ModeCurrent})
	r.tick(1)

	st := r.servo.Status()
	if st.Mode != ModeFault || st.Fault != ErrcOverVoltage {
		t.Fatalf("mode=%v fault=%v, want %v/%v",
			st.Mode, st.Fault, ModeFault, ErrcOverVoltage)
	}
}

func TestEncoderGlitchFaults(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModePwm, Pwm: Vec3{A: 0.5, B: 0.5, C: 0.5}})

	r.tick(1)
	if got := r.servo.Status().Mode; got != ModePwm {
		t.Fatalf("mode before glitch = %v, want %v", got, ModePwm)
	}
	if r.pwm.compare[1] == 0 {
		t.Fatal("no duty written before glitch")
	}

	r.sensor.value += 2000
	r.tick(1)

	st := r.servo.Status()
	if st.Mode != ModeFault || st.Fault != ErrcEncoderFault {
		t.Fatalf("mode=%v fault=%v, want %v/%v",
			st.Mode, st.Fault, ModeFault, ErrcEncoderFault)
	}
	for ch := 1; ch <= 3; ch++ {
		if r.pwm.compare[ch] != 0 {
			t.Errorf("compare[%d] = %d, want 0", ch, r.pwm.compare[ch])
		}
	}
	if r.driver.powered {
		t.Error("driver still powered in fault")
	}
}

func TestEncoderWraparoundIsNotAGlitch(t *testing.T) {
	r := newRig(t)
	r.sensor.value = 65500
	r.startInto(t, &CommandData{Mode: ModePwm, Pwm: Vec3{A: 0.5, B: 0.5, C: 0.5}})

	// 65500 -> 100 is a small forward step through the wrap.
	r.sensor.value = 100
	r.tick(1)

	st := r.servo.Status()
	if st.Mode != ModePwm {
		t.Fatalf("mode = %v, want %v", st.Mode, ModePwm)
	}
}

func TestFaultRecoversOnlyThroughStopped(t *testing.T) {
	r := newRig(t)
	r.sampler.adc1 = 1000
	r.servo.Command(&CommandData{Mode: ModeCurrent})
	r.tick(1)
	r.servo.PollMillisecond()
	r.tick(256)
	if got := r.servo.Status().Mode; got != ModeFault {
		t.Fatalf("setup: mode = %v, want %v", got, ModeFault)
	}

	// Active-mode requests are ignored in fault.
	r.servo.Command(&CommandData{Mode: ModeVoltage})
	r.tick(2)
	if got := r.servo.Status().Mode; got != ModeFault {
		t.Fatalf("mode = %v, want %v", got, ModeFault)
	}

	// Stop recovers, and the cause stays readable.
	r.servo.Command(&CommandData{Mode: ModeStopped})
	r.tick(1)
	st := r.servo.Status()
	if st.Mode != ModeStopped {
		t.Fatalf("mode = %v, want %v", st.Mode, ModeStopped)
	}
	if st.Fault != ErrcCalibrationFault {
		t.Fatalf("fault = %v, want %v", st.Fault, ErrcCalibrationFault)
	}
}

func TestVoltagePassthrough(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModeVoltage, PhaseV: Vec3{A: 12}})

	// 24V bus: duty_a = 0.5 + 2*12/24 = 1.5, clamped to 0.9;
	// duty_b = duty_c = 0.5. Phase a drives channel 1, b channel 3,
	// c channel 2.
	if got := r.pwm.compare[1]; got != 1012 {
		t.Errorf("compare[1] = %d, want 1012", got)
	}
	if got := r.pwm.compare[3]; got != 562 {
		t.Errorf("compare[3] = %d, want 562", got)
	}
	if got := r.pwm.compare[2]; got != 562 {
		t.Errorf("compare[2] = %d, want 562", got)
	}
	if !r.driver.powered {
		t.Error("driver not powered in voltage mode")
	}
}

func TestPwmDutyAlwaysInBounds(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModePwm, Pwm: Vec3{A: -3, B: 0.5, C: 7}})

	loF, hiF := float32(0.1), float32(0.9)
	lo := uint32(loF * 1125)
	hi := uint32(hiF * 1125)
	for ch := 1; ch <= 3; ch++ {
		got := r.pwm.compare[ch]
		if got < lo || got > hi {
			t.Errorf("compare[%d] = %d outside [%d, %d]", ch, got, lo, hi)
		}
	}
}

func TestPositionHold(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{
		Mode:            ModePosition,
		Position:        0,
		Velocity:        0,
		MaxCurrent:      10,
		HaveSetPosition: true,
		SetPosition:     1.0,
	})

	st := r.servo.Status()
	if st.UnwrappedPosition != 1.0 {
		t.Fatalf("unwrapped position = %v, want 1.0", st.UnwrappedPosition)
	}

	// Positive position error drives a negative d-axis command, bounded
	// by the commanded maximum.
	if r.servo.control.IDA >= 0 {
		t.Errorf("i_d command = %v, want < 0", r.servo.control.IDA)
	}
	if r.servo.control.IDA < -10 {
		t.Errorf("i_d command = %v exceeds 10A bound", r.servo.control.IDA)
	}
}

func TestSetPositionAppliesOnce(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{
		Mode:            ModePosition,
		MaxCurrent:      10,
		HaveSetPosition: true,
		SetPosition:     1.0,
	})

	if r.servo.exchange.current.Load().HaveSetPosition {
		t.Fatal("set_position not consumed")
	}

	before := r.servo.Status().UnwrappedPositionRaw
	r.tick(1)
	if got := r.servo.Status().UnwrappedPositionRaw; got != before {
		t.Fatalf("position re-seeded: %d -> %d", before, got)
	}
}

func TestActiveToActiveSwitchesDirectly(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModeCurrent})

	r.servo.Command(&CommandData{Mode: ModeVoltage, PhaseV: Vec3{}})
	r.tick(1)
	if got := r.servo.Status().Mode; got != ModeVoltage {
		t.Fatalf("mode = %v, want %v", got, ModeVoltage)
	}
}

func TestPidStateClearedOutsideItsModes(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModeCurrent, IDA: 5})

	// A 5A target with mid-scale ADCs leaves a persistent error, so the
	// integral moves.
	r.tick(10)
	if r.servo.status.PidD.Integral == 0 {
		t.Fatal("d-axis integral did not accumulate")
	}

	r.servo.Command(&CommandData{Mode: ModeVoltage})
	r.tick(1)

	if r.servo.status.PidD != (PidState{}) {
		t.Errorf("pid_d not cleared: %+v", r.servo.status.PidD)
	}
	if r.servo.status.PidQ != (PidState{}) {
		t.Errorf("pid_q not cleared: %+v", r.servo.status.PidQ)
	}
	if r.servo.status.PidPosition != (PidState{}) {
		t.Errorf("pid_position not cleared: %+v", r.servo.status.PidPosition)
	}
}

func TestElectricalThetaInRange(t *testing.T) {
	r := newRig(t)

	for _, raw := range []uint16{0, 1, 4680, 32768, 65535} {
		r.sensor.value = raw
		r.tick(1)
		theta := r.servo.Status().ElectricalTheta
		if theta < 0 || theta >= twoPi {
			t.Errorf("position %d: theta = %v outside [0, 2pi)", raw, theta)
		}
	}
}

func TestVelocityFromConstantSpeed(t *testing.T) {
	r := newRig(t)

	// 100 counts per cycle: 100/65536 rev * 40kHz = ~61.035 units/s at
	// unit scale.
	for i := 0; i < velocityWindow+5; i++ {
		r.sensor.value += 100
		r.tick(1)
	}

	want := float32(100.0 / 65536.0 * RateHz)
	got := r.servo.Status().Velocity
	if diff := got - want; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("velocity = %v, want ~%v", got, want)
	}
}

func TestOversampling(t *testing.T) {
	r := newRig(t)
	r.servo.config.AdcSampleCount = 4
	r.tick(1)

	if r.sampler.starts != 4 {
		t.Fatalf("conversion starts = %d, want 4", r.sampler.starts)
	}
	if got := r.servo.Status().Adc1Raw; got != 2048 {
		t.Fatalf("adc1 mean = %d, want 2048", got)
	}
}

func TestCommandSupersedes(t *testing.T) {
	r := newRig(t)
	r.startInto(t, &CommandData{Mode: ModePwm, Pwm: Vec3{A: 0.5, B: 0.5, C: 0.5}})

	// The latest submission wins on the next cycle.
	r.servo.Command(&CommandData{Mode: ModePwm, Pwm: Vec3{A: 0.2, B: 0.2, C: 0.2}})
	r.servo.Command(&CommandData{Mode: ModePwm, Pwm: Vec3{A: 0.8, B: 0.8, C: 0.8}})
	r.tick(1)

	want := uint32(0.8 * 1125)
	if got := r.pwm.compare[1]; got != want {
		t.Fatalf("compare[1] = %d, want %d", got, want)
	}
}

func TestDebugFrameEmitted(t *testing.T) {
	r := newRig(t)
	r.tick(3)

	if r.stream.kicks != 3 {
		t.Fatalf("kicks = %d, want 3", r.stream.kicks)
	}

	f, err := protocol.ParseFrame(r.stream.last[:])
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Velocity != 0 {
		t.Errorf("velocity = %v, want 0", f.Velocity)
	}
}

func TestConfigUpdateAppliesSampleTime(t *testing.T) {
	r := newRig(t)

	r.servo.config.AdcCycles = 100
	r.servo.updateConfig()

	// First ladder entry >= 100 cycles is 112, at index 5.
	if r.sampler.sampleIndex != 5 {
		t.Fatalf("sample time index = %d, want 5", r.sampler.sampleIndex)
	}
}
