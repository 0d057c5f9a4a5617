// Package serial carries the controller's debug stream to the host. The
// stream is a continuous 5Mbaud firehose with no flow control or framing
// handshake; the port layer's job is to deliver bytes and to survive the
// link dropping, since USB bridges re-enumerate whenever the controller
// reboots.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string

	// Baud rate. The debug stream runs at 5Mbaud; USB bridges typically
	// ignore the setting.
	Baud int

	// Read timeout in milliseconds. 0 blocks, which is right for a
	// stream that never idles.
	ReadTimeout int
}

// DefaultConfig returns the configuration for the debug stream.
func DefaultConfig(device string) *Config {
	return &Config{
		Device: device,
		Baud:   5000000,
	}
}

// Port is one open serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush drops buffered data.
	Flush() error
}

// Open opens the device once. Most callers want a Reconnector instead:
// a plain port dies with the first controller reboot.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serial: nil config")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return port, nil
}
