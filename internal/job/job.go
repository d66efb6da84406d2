// Package job ties the label pipeline together: a source is rendered or
// loaded, rasterised for the layout, encoded into a frame and handed to a sink
// (or saved as a preview).
package job

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"
	"github.com/inhies/go-bytesize"
	"github.com/spf13/afero"

	"tomgalvin.uk/labelprint/internal/bitmap"
	"tomgalvin.uk/labelprint/internal/layout"
	"tomgalvin.uk/labelprint/internal/preview"
	"tomgalvin.uk/labelprint/internal/printer"
	"tomgalvin.uk/labelprint/internal/raster"
	"tomgalvin.uk/labelprint/internal/text"
)

var (
	ErrNoSource = errors.New("a print job needs exactly one source")
	ErrNoSink   = errors.New("no printer to send the label to")
)

// A Source is what a label is made from: either TextSource or ImageSource.
type Source interface {
	describe() string
}

type TextSource struct {
	Text  string
	Font  string
	Lines int
}

func (s TextSource) describe() string {
	return fmt.Sprintf("text %q", s.Text)
}

type ImageSource struct {
	Path string
	// Brightness is a percentage, 100 leaves the image unchanged.
	Brightness int
}

func (s ImageSource) describe() string {
	return fmt.Sprintf("image %s", s.Path)
}

type PrintJob struct {
	ID     uuid.UUID
	Source Source
	Layout layout.Layout
	// PreviewPath, if set, saves the label as a PNG there instead of printing it.
	PreviewPath string
	// PreviewRaw saves the preview as the printer sees it (96 wide, 320 tall)
	// rather than the way the label reads.
	PreviewRaw bool
}

func New(src Source, l layout.Layout) (*PrintJob, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	return &PrintJob{
		ID:     uuid.New(),
		Source: src,
		Layout: l,
	}, nil
}

// Result holds every stage of a prepared job.
type Result struct {
	Landscape *bitmap.Buffer
	Buffer    *bitmap.Buffer
	Frame     printer.Frame
}

type Runner struct {
	Fs     afero.Fs
	Sink   printer.Sink
	Raster raster.Options
	Logger *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) loadSource(j *PrintJob) (image.Image, raster.Options, error) {
	opts := r.Raster
	switch s := j.Source.(type) {
	case TextSource:
		img, err := text.NewRenderer(r.Fs).Render(s.Text, text.Options{Font: s.Font, Lines: s.Lines}, j.Layout)
		if err != nil {
			return nil, opts, fmt.Errorf("Couldn't render text:\n%w", err)
		}
		// rendered text is already black and white at the right size
		opts.Brightness = 100
		opts.Dither = raster.Threshold
		opts.Fit = raster.Stretch
		opts.AutoLevel = false
		return img, opts, nil
	case ImageSource:
		opts.Brightness = s.Brightness
		if err := opts.Validate(); err != nil {
			return nil, opts, err
		}
		img, err := raster.Load(r.Fs, s.Path)
		if err != nil {
			return nil, opts, err
		}
		return img, opts, nil
	default:
		return nil, opts, ErrNoSource
	}
}

// Prepare runs every step of the job short of sending it anywhere.
func (r *Runner) Prepare(j *PrintJob) (*Result, error) {
	logger := r.logger().With("job", j.ID.String())

	if j.Source == nil {
		return nil, ErrNoSource
	}

	img, opts, err := r.loadSource(j)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded source",
		"source", j.Source.describe(),
		"size", img.Bounds().Size().String(),
	)

	landscape, err := raster.Landscape(img, j.Layout, opts)
	if err != nil {
		return nil, fmt.Errorf("Couldn't rasterise label:\n%w", err)
	}
	buf := landscape.Rotate90()

	frame, err := printer.Encode(buf, j.Layout)
	if err != nil {
		return nil, fmt.Errorf("Couldn't encode label:\n%w", err)
	}
	logger.Debug("Encoded frame",
		"layout", j.Layout.String(),
		"frameSize", bytesize.New(float64(len(frame))).String(),
	)

	return &Result{Landscape: landscape, Buffer: buf, Frame: frame}, nil
}

// Run prepares the job, then either saves its preview or sends it to the sink.
// Nothing is sent if any step fails.
func (r *Runner) Run(ctx context.Context, j *PrintJob) error {
	logger := r.logger().With("job", j.ID.String())

	res, err := r.Prepare(j)
	if err != nil {
		return err
	}

	if j.PreviewPath != "" {
		var view image.Image = res.Landscape
		if j.PreviewRaw {
			view = res.Buffer
		}
		if err := preview.Save(r.Fs, j.PreviewPath, view); err != nil {
			return err
		}
		logger.Info("Saved preview", "path", j.PreviewPath)
		return nil
	}

	if r.Sink == nil {
		return ErrNoSink
	}

	logger.Info("Printing label",
		"source", j.Source.describe(),
		"layout", j.Layout.String(),
		"size", bytesize.New(float64(len(res.Frame))).String(),
	)
	if err := r.Sink.Write(ctx, res.Frame); err != nil {
		return fmt.Errorf("Couldn't print label:\n%w", err)
	}
	logger.Info("Label sent")
	return nil
}
