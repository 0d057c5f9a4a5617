//go:build tinygo && stm32f4

package main

import (
	"device/stm32"
	"unsafe"

	"gofoc/foc"
	"gofoc/protocol"
)

// debugStream transmits the per-cycle status frame on USART1 TX through
// DMA2 stream 7, channel 4, at 5Mbaud. The kick only reprograms the
// stream; it never waits for the previous transfer, which has drained by
// the time the next cycle's frame is ready.
type debugStream struct{}

func newDebugStream() *debugStream {
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_DMA2EN)
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_USART1EN)

	// 90MHz APB2 kernel clock, oversampling by 8: USARTDIV = 90MHz /
	// (8 * 5Mbaud) = 2.25, i.e. mantissa 2 and fraction 2/8.
	stm32.USART1.BRR.Set(2<<4 | 2)
	stm32.USART1.CR1.Set(stm32.USART_CR1_UE | stm32.USART_CR1_TE |
		stm32.USART_CR1_OVER8)

	// Memory-to-peripheral, byte transfers, memory increment.
	stm32.DMA2.S7PAR.Set(uint32(uintptr(unsafe.Pointer(&stm32.USART1.DR))))
	stm32.DMA2.S7CR.Set((4 << stm32.DMA_S7CR_CHSEL_Pos) |
		stm32.DMA_S7CR_MINC | (1 << stm32.DMA_S7CR_DIR_Pos))

	return &debugStream{}
}

func (d *debugStream) StartTx(buf []byte) {
	// Clear stream 7 status, reload length and address, go.
	stm32.DMA2.HIFCR.Set(stm32.DMA_HIFCR_CTCIF7 | stm32.DMA_HIFCR_CHTIF7 |
		stm32.DMA_HIFCR_CTEIF7 | stm32.DMA_HIFCR_CDMEIF7 |
		stm32.DMA_HIFCR_CFEIF7)
	stm32.DMA2.S7NDTR.Set(protocol.FrameSize)
	stm32.DMA2.S7M0AR.Set(uint32(uintptr(unsafe.Pointer(&buf[0]))))
	stm32.DMA2.S7CR.SetBits(stm32.DMA_S7CR_EN)

	stm32.USART1.CR3.SetBits(stm32.USART_CR3_DMAT)
}

var _ foc.DebugStream = (*debugStream)(nil)
