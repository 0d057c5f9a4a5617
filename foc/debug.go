package foc

import "gofoc/protocol"

const debugFrameSize = protocol.FrameSize

// isrEmitDebug packs the cycle's status frame and hands it to the debug
// stream. StartTx never blocks on completion: at 5Mbaud the 12 bytes
// drain in about 24us, just inside the 25us cycle, so the buffer is only
// rewritten after the transfer should be done.
func (s *Servo) isrEmitDebug() {
	if s.debug == nil {
		return
	}

	protocol.PutFrame(s.debugBuf[:], &protocol.Frame{
		ElectricalTheta: s.status.ElectricalTheta,
		CommandDA:       s.control.IDA,
		MeasuredDA:      s.status.DA,
		PidDP:           s.status.PidD.P,
		PidDIntegral:    s.status.PidD.Integral,
		ControlDV:       s.control.DV,
		Velocity:        s.status.Velocity,
	})

	s.debug.StartTx(s.debugBuf[:])
}
