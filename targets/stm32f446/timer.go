//go:build tinygo && stm32f4

package main

import (
	"device/stm32"
	"runtime/interrupt"

	"gofoc/foc"
)

// The timer clock runs at 90MHz. Center-aligned up/down at 80kHz gives
// one update interrupt per up/down pair, i.e. the 40kHz control cycle.
const pwmCounts = 90000000 / 80000

// pwmTimer drives TIM1 channels 1..3.
type pwmTimer struct{}

func newPwmTimer() *pwmTimer {
	// Clock the timer and preload the shape before it runs.
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_TIM1EN)

	stm32.TIM1.DIER.Set(stm32.TIM_DIER_UIE)

	// Center-aligned mode 2: the counter counts up and down
	// alternately; compare flags set while counting up. ARR buffered.
	stm32.TIM1.CR1.Set((2 << stm32.TIM_CR1_CMS_Pos) | stm32.TIM_CR1_ARPE)

	// Update once per up/down pair of the counter.
	stm32.TIM1.RCR.SetBits(0x01)

	stm32.TIM1.PSC.Set(0)
	stm32.TIM1.ARR.Set(pwmCounts)

	return &pwmTimer{}
}

func (t *pwmTimer) Counts() uint32 { return pwmCounts }

func (t *pwmTimer) SetCompare(channel int, value uint32) {
	switch channel {
	case 1:
		stm32.TIM1.CCR1.Set(value)
	case 2:
		stm32.TIM1.CCR2.Set(value)
	case 3:
		stm32.TIM1.CCR3.Set(value)
	}
}

// startCycleTimer arms the update interrupt at the highest priority and
// starts the counter.
func startCycleTimer(t *pwmTimer) {
	intr := interrupt.New(stm32.IRQ_TIM1_UP_TIM10, handleTimerUpdate)
	intr.SetPriority(0x00)
	intr.Enable()

	// Reinitialize the counter and latch all preloaded registers.
	stm32.TIM1.EGR.SetBits(stm32.TIM_EGR_UG)

	stm32.TIM1.CR1.SetBits(stm32.TIM_CR1_CEN)
}

// handleTimerUpdate runs at interrupt priority 0. With RCR=1 the update
// event comes once per up/down pair; the control cycle runs only when
// that event is taken at the top of the count (counter now counting
// down), giving at most one cycle per PWM period.
func handleTimerUpdate(interrupt.Interrupt) {
	sr := stm32.TIM1.SR.Get()
	if sr&stm32.TIM_SR_UIF != 0 &&
		stm32.TIM1.CR1.Get()&stm32.TIM_CR1_DIR != 0 {
		foc.CycleISR()
	}
	stm32.TIM1.SR.Set(0)
}
