// Package monitor decodes a live servo debug stream: it runs the frame
// scanner over a serial port (or any reader) and keeps running statistics.
package monitor

import (
	"errors"
	"io"

	"gofoc/protocol"
)

// Stats summarizes what the monitor has seen so far.
type Stats struct {
	// Frames decoded.
	Frames uint64
	// Bytes discarded while resynchronizing.
	Skipped uint64
	// The most recent frame.
	Last protocol.Frame
}

// Monitor consumes frames from a stream. Not safe for concurrent use;
// run one Run loop per monitor.
type Monitor struct {
	scanner *protocol.Scanner
	last    protocol.Frame
	onFrame func(protocol.Frame)
}

// New builds a monitor over r. onFrame may be nil.
func New(r io.Reader, onFrame func(protocol.Frame)) *Monitor {
	return &Monitor{
		scanner: protocol.NewScanner(r),
		onFrame: onFrame,
	}
}

// Run decodes frames until the stream ends. A clean end of stream returns
// nil; any other read error is returned.
func (m *Monitor) Run() error {
	for {
		f, err := m.scanner.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		m.last = f
		if m.onFrame != nil {
			m.onFrame(f)
		}
	}
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Frames:  m.scanner.Frames(),
		Skipped: m.scanner.Skipped(),
		Last:    m.last,
	}
}
