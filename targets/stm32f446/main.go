//go:build tinygo && stm32f4

// Board glue for the STM32F446 controller. Everything here is register
// plumbing behind the capability interfaces in the foc package; the
// timer, ADC and DMA recipes must match the values the control math is
// calibrated for (90MHz timer clock, 40kHz cycle, 12-bit ADCs).
package main

import (
	"time"

	"gofoc/foc"
	"gofoc/persist"
)

func main() {
	pwm := newPwmTimer()
	adc := newTripleADC()
	debug := newDebugStream()
	driver := newGateDriver()
	sensor := newPositionSensor()

	// The telemetry sink stays nil on the bare-metal target: there is
	// no TCP/IP stack here, and the snapshot role is covered by the CAN
	// status frames below. The websocket manager runs host-side (see
	// cmd/focsim).
	store := persist.NewRegistry()

	servo, err := foc.New(store, nil, sensor, driver, foc.Options{
		Pwm:      pwm,
		Currents: adc,
		Debug:    debug,
	})
	if err != nil {
		// Nothing sensible to do on a board without a console; halt
		// here with the driver outputs left off.
		for {
		}
	}

	// The servo block is registered; decode the saved settings over the
	// defaults before the cycle timer starts.
	loadFlashConfig(store)

	startCycleTimer(pwm)

	bus := newCanBus(servo)

	// Foreground loop: the millisecond poller plus the CAN command bus.
	ms := time.NewTicker(time.Millisecond)
	for {
		select {
		case <-ms.C:
			servo.PollMillisecond()
			bus.pollStatus()
		default:
			bus.pollCommands()
		}
	}
}
