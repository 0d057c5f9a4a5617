package foc

import "testing"

func newTestPid(cfg PidConfig) (Pid, *PidConfig, *PidState) {
	c := cfg
	st := &PidState{}
	return NewPid(&c, st), &c, st
}

func TestPidProportional(t *testing.T) {
	pid, _, st := newTestPid(PidConfig{
		Kp: 2, IntegralLimit: 100, OutputLimit: 100,
	})

	out := pid.Apply(1, 3, 0, 0, RateHz)
	if absf(st.P-4) > 1e-5 {
		t.Errorf("p term = %v, want 4", st.P)
	}
	if absf(out-4) > 1e-3 {
		t.Errorf("output = %v, want ~4", out)
	}
}

func TestPidIntegralAccumulatesAndClamps(t *testing.T) {
	pid, _, st := newTestPid(PidConfig{
		Ki: 1, IntegralLimit: 0.001, OutputLimit: 100,
	})

	// Constant error of 1: the integral grows by 1/rate per call until
	// the clamp.
	pid.Apply(0, 1, 0, 0, RateHz)
	if absf(st.Integral-1.0/RateHz) > 1e-9 {
		t.Fatalf("integral = %v, want %v", st.Integral, 1.0/RateHz)
	}

	for i := 0; i < 1000; i++ {
		pid.Apply(0, 1, 0, 0, RateHz)
	}
	if st.Integral != 0.001 {
		t.Fatalf("integral = %v, want clamp 0.001", st.Integral)
	}

	// Error reversal drains it symmetrically.
	for i := 0; i < 2000; i++ {
		pid.Apply(0, -1, 0, 0, RateHz)
	}
	if st.Integral != -0.001 {
		t.Fatalf("integral = %v, want clamp -0.001", st.Integral)
	}
}

func TestPidDerivativeOnRates(t *testing.T) {
	pid, _, st := newTestPid(PidConfig{
		Kd: 3, IntegralLimit: 100, OutputLimit: 100,
	})

	// A setpoint step with unchanged rates produces no derivative kick.
	pid.Apply(0, 0, 0, 0, RateHz)
	pid.Apply(0, 100, 0, 0, RateHz)
	if st.D != 0 {
		t.Fatalf("d term = %v after setpoint step, want 0", st.D)
	}

	// The derivative follows the rate difference supplied by the caller.
	pid.Apply(0, 0, 2, 5, RateHz)
	if absf(st.D-9) > 1e-5 {
		t.Fatalf("d term = %v, want 9", st.D)
	}
}

func TestPidOutputClamp(t *testing.T) {
	pid, _, st := newTestPid(PidConfig{
		Kp: 1000, IntegralLimit: 1, OutputLimit: 12,
	})

	out := pid.Apply(0, 1, 0, 0, RateHz)
	if out != 12 {
		t.Fatalf("output = %v, want 12", out)
	}
	if st.Command != 12 {
		t.Fatalf("command = %v, want 12", st.Command)
	}

	out = pid.Apply(0, -1, 0, 0, RateHz)
	if out != -12 {
		t.Fatalf("output = %v, want -12", out)
	}
}

func TestPidReset(t *testing.T) {
	pid, _, st := newTestPid(PidConfig{
		Kp: 1, Ki: 1, Kd: 1, IntegralLimit: 10, OutputLimit: 10,
	})

	pid.Apply(0, 1, 2, 3, RateHz)
	if *st == (PidState{}) {
		t.Fatal("state did not move")
	}

	pid.Reset()
	if *st != (PidState{}) {
		t.Fatalf("state after reset = %+v, want zero", *st)
	}
}

func TestPidGainUpdateTakesEffect(t *testing.T) {
	pid, cfg, st := newTestPid(PidConfig{
		Kp: 1, IntegralLimit: 10, OutputLimit: 100,
	})

	pid.Apply(0, 1, 0, 0, RateHz)
	if absf(st.P-1) > 1e-6 {
		t.Fatalf("p term = %v, want 1", st.P)
	}

	// The controller reads gains through the shared config, so a
	// foreground gain change applies on the next cycle.
	cfg.Kp = 7
	pid.Apply(0, 1, 0, 0, RateHz)
	if absf(st.P-7) > 1e-6 {
		t.Fatalf("p term = %v, want 7", st.P)
	}
}
