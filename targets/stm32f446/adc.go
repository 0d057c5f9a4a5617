//go:build tinygo && stm32f4

package main

import (
	"device/stm32"

	"gofoc/foc"
)

// tripleADC runs ADC1/2/3 in regular simultaneous mode: one software
// start converts the two current channels and the bus voltage channel in
// lockstep.
type tripleADC struct{}

func newTripleADC() *tripleADC {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_ADC1EN |
		stm32.RCC_APB2ENR_ADC2EN | stm32.RCC_APB2ENR_ADC3EN)

	// Triple mode: regular simultaneous only.
	stm32.ADC_COMMON.CCR.Set(0x16 << stm32.ADC_CCR_MULT_Pos)

	stm32.ADC1.CR2.Set(stm32.ADC_CR2_ADON)
	stm32.ADC2.CR2.Set(stm32.ADC_CR2_ADON)
	stm32.ADC3.CR2.Set(stm32.ADC_CR2_ADON)

	// Single-conversion sequences: current1, current2, vsense on their
	// board channels.
	stm32.ADC1.SQR3.Set(adcChannelCurrent1)
	stm32.ADC2.SQR3.Set(adcChannelCurrent2)
	stm32.ADC3.SQR3.Set(adcChannelVsense)

	return &tripleADC{}
}

func (a *tripleADC) StartConversion() {
	stm32.ADC1.CR2.SetBits(stm32.ADC_CR2_SWSTART)
}

func (a *tripleADC) Read() (cur1, cur2, vsense uint16) {
	// Bounded by the programmed sample time; the master's EOC covers
	// all three converters in simultaneous mode.
	for stm32.ADC1.SR.Get()&stm32.ADC_SR_EOC == 0 {
	}
	return uint16(stm32.ADC1.DR.Get()),
		uint16(stm32.ADC2.DR.Get()),
		uint16(stm32.ADC3.DR.Get())
}

func (a *tripleADC) SetSampleTime(index int) {
	cycles := uint32(index)
	all := cycles<<0 | cycles<<3 | cycles<<6 | cycles<<9 | cycles<<12 |
		cycles<<15 | cycles<<18 | cycles<<21 | cycles<<24

	stm32.ADC1.SMPR1.Set(all)
	stm32.ADC1.SMPR2.Set(all)
	stm32.ADC2.SMPR1.Set(all)
	stm32.ADC2.SMPR2.Set(all)
	stm32.ADC3.SMPR1.Set(all)
	stm32.ADC3.SMPR2.Set(all)
}

var _ foc.CurrentSampler = (*tripleADC)(nil)
