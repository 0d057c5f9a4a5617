package protocol

import (
	"bufio"
	"io"
)

// Scanner extracts frames from a byte stream. Bytes that do not line up
// with a frame boundary are discarded until the next sync byte; a frame
// that starts mid-garbage will mis-parse once and the stream recovers on
// the following sync.
type Scanner struct {
	r       *bufio.Reader
	frames  uint64
	skipped uint64
}

// NewScanner wraps r. Short reads are handled; the reader may deliver
// frames in arbitrary fragments.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next returns the next frame. It blocks on the underlying reader and
// returns its error (io.EOF at end of stream).
func (s *Scanner) Next() (Frame, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != FrameSync {
			s.skipped++
			continue
		}

		var buf [FrameSize]byte
		buf[0] = b
		if _, err := io.ReadFull(s.r, buf[1:]); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return Frame{}, err
		}

		f, err := ParseFrame(buf[:])
		if err != nil {
			continue
		}
		s.frames++
		return f, nil
	}
}

// Frames returns the number of frames decoded.
func (s *Scanner) Frames() uint64 { return s.frames }

// Skipped returns the number of bytes discarded while resynchronizing.
func (s *Scanner) Skipped() uint64 { return s.skipped }
