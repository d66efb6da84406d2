package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialSink writes frames to a serial port, e.g. an RFCOMM device bound to
// the printer with `rfcomm bind`.
type SerialSink struct {
	Name     string
	Mode     *serial.Mode
	Progress io.Writer
	logger   *slog.Logger
}

func NewSerialSink(name string, logger *slog.Logger) *SerialSink {
	return &SerialSink{
		Name:   name,
		Mode:   &serial.Mode{BaudRate: 115200},
		logger: logger,
	}
}

// IsSerialPort reports whether a --device value names a serial port rather
// than a Bluetooth address.
func IsSerialPort(device string) bool {
	return strings.HasPrefix(device, "/dev/") || strings.HasPrefix(strings.ToUpper(device), "COM")
}

// resolve finds the port whose name contains s.Name.
func (s *SerialSink) resolve() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", err
	}

	for _, name := range ports {
		if name == s.Name {
			return name, nil
		}
	}
	for _, name := range ports {
		if strings.Contains(name, s.Name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("Serial port %s not found", s.Name)
}

func (s *SerialSink) Write(ctx context.Context, f Frame) error {
	name, err := s.resolve()
	if err != nil {
		return &TransportError{Op: "find serial port", Err: err}
	}

	port, err := serial.Open(name, s.Mode)
	if err != nil {
		return &TransportError{Op: "open serial port", Err: err}
	}
	defer port.Close()
	s.logger.Debug("Opened serial port", "port", name)

	write := func(chunk []byte) error {
		for len(chunk) > 0 {
			n, err := port.Write(chunk)
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("serial port accepted no data")
			}
			chunk = chunk[n:]
		}
		return nil
	}

	if err := writeChunks(ctx, write, f, 512, time.Millisecond, s.Progress); err != nil {
		return &TransportError{Op: "write frame", Err: err}
	}

	s.logger.Debug("Wrote frame to serial port", "port", name, "size", len(f))
	return nil
}
