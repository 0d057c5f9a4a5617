package serial

import (
	"io"
	"sync/atomic"
	"time"

	"gofoc/hostlog"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Reconnector is an io.ReadCloser over the debug stream that reopens the
// port whenever the link drops. Stale input is flushed on reconnect and
// the frame scanner downstream resynchronizes on the next sync byte, so
// a controller reboot costs the reader nothing but the frames it missed.
//
// Read and Close are the only methods; run one reader per Reconnector.
type Reconnector struct {
	cfg *Config

	// Injection points for tests.
	open  func(*Config) (Port, error)
	sleep func(time.Duration)

	port    Port
	backoff time.Duration
	closed  atomic.Bool
}

// NewReconnector wraps cfg. No connection is attempted until the first
// Read.
func NewReconnector(cfg *Config) *Reconnector {
	return &Reconnector{
		cfg:     cfg,
		open:    Open,
		sleep:   time.Sleep,
		backoff: initialBackoff,
	}
}

// Read delivers the next chunk of the stream, transparently reopening
// the port after an open or read failure with capped exponential
// backoff. It returns io.EOF only after Close.
func (r *Reconnector) Read(p []byte) (int, error) {
	for {
		if r.closed.Load() {
			return 0, io.EOF
		}

		if r.port == nil {
			port, err := r.open(r.cfg)
			if err != nil {
				hostlog.Warnf("serial: open %s: %v (retry in %v)",
					r.cfg.Device, err, r.backoff)
				r.sleep(r.backoff)
				r.backoff *= 2
				if r.backoff > maxBackoff {
					r.backoff = maxBackoff
				}
				continue
			}

			hostlog.Infof("serial: %s up at %d baud", r.cfg.Device, r.cfg.Baud)
			r.backoff = initialBackoff

			// Whatever queued while we were away starts mid-frame;
			// drop it and pick up the live stream.
			port.Flush()
			r.port = port
		}

		n, err := r.port.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			hostlog.Warnf("serial: read %s: %v (reconnecting)",
				r.cfg.Device, err)
			r.port.Close()
			r.port = nil
		}
	}
}

// Close stops the reader. An in-flight Read finishes its current attempt
// and then returns io.EOF.
func (r *Reconnector) Close() error {
	r.closed.Store(true)
	if r.port != nil {
		return r.port.Close()
	}
	return nil
}
