package printer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// A Sink delivers a finished frame to a printer (or somewhere standing in for one).
type Sink interface {
	Write(ctx context.Context, f Frame) error
}

// TransportError wraps any failure to hand a frame to the device.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("Transport failed to %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// writeChunks writes data in pieces of at most size bytes, pausing for gap
// between them. Progress, if set, is told about every chunk written.
func writeChunks(ctx context.Context, write func([]byte) error, data []byte, size int, gap time.Duration, progress io.Writer) error {
	for i, chunk := range lo.Chunk(data, size) {
		if i > 0 {
			if err := pause(ctx, gap); err != nil {
				return err
			}
		}
		if err := write(chunk); err != nil {
			return err
		}
		if progress != nil {
			progress.Write(chunk)
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FileSink writes frames to a file instead of a device, for inspecting the
// exact bytes a printer would receive.
type FileSink struct {
	Fs   afero.Fs
	Path string
}

func (s *FileSink) Write(ctx context.Context, f Frame) error {
	if err := afero.WriteFile(s.Fs, s.Path, f, 0o644); err != nil {
		return &TransportError{Op: "write frame file", Err: err}
	}
	return nil
}
