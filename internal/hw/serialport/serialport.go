// Package serialport provides the supervisor link. The abstraction
// allows a real UART (tarm/serial) or a stdin/stdout console port for
// bench use; the control loop only sees an io.ReadWriteCloser whose
// reads time out instead of blocking.
package serialport

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port represents the serial link to the supervisor.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g. "/dev/ttyUSB0", "/dev/ttyACM0")
	Device string

	// Baud rate; the original firmware link runs at 9600
	Baud int

	// ReadTimeout bounds each Read so the control loop keeps ticking
	// while the supervisor is quiet
	ReadTimeout time.Duration
}

// NativePort wraps the tarm/serial implementation.
type NativePort struct {
	port *serial.Port
}

// Open opens a native serial port.
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device not configured")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &NativePort{port: port}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}
