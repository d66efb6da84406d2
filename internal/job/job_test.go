package job

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"

	"tomgalvin.uk/labelprint/internal/layout"
	"tomgalvin.uk/labelprint/internal/printer"
	"tomgalvin.uk/labelprint/internal/raster"
)

type recordingSink struct {
	frames []printer.Frame
	err    error
}

func (s *recordingSink) Write(ctx context.Context, f printer.Frame) error {
	s.frames = append(s.frames, f)
	return s.err
}

func aRunner(fs afero.Fs, sink printer.Sink) *Runner {
	return &Runner{
		Fs:     fs,
		Sink:   sink,
		Raster: raster.DefaultOptions(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writePNG(t *testing.T, fs afero.Fs, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Couldn't encode test image: %v", err)
	}
	afero.WriteFile(fs, path, buf.Bytes(), 0o644)
}

func TestNewRejectsNilSource(t *testing.T) {
	if _, err := New(nil, layout.New(layout.Standard)); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}

	j, err := New(TextSource{Text: "hi"}, layout.New(layout.Standard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	other, _ := New(TextSource{Text: "hi"}, layout.New(layout.Standard))
	if j.ID == other.ID {
		t.Error("Expected jobs to get distinct IDs")
	}
}

func TestRunTextJob(t *testing.T) {
	sink := &recordingSink{}
	r := aRunner(afero.NewMemMapFs(), sink)
	j, _ := New(TextSource{Text: "Jam"}, layout.New(layout.Standard))

	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame sent, got %d", len(sink.frames))
	}

	data, err := sink.frames[0].Bitmap()
	if err != nil {
		t.Fatalf("Couldn't read frame bitmap: %v", err)
	}
	if bytes.Count(data, []byte{0}) == len(data) {
		t.Error("Expected some ink in a text label")
	}
}

func TestRunImageJob(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "/black.png", 64, 20, color.Black)
	sink := &recordingSink{}
	r := aRunner(fs, sink)
	j, _ := New(ImageSource{Path: "/black.png", Brightness: 100}, layout.New(layout.Standard))

	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame sent, got %d", len(sink.frames))
	}
	data, _ := sink.frames[0].Bitmap()
	if !bytes.Equal(data, bytes.Repeat([]byte{0xff}, 3840)) {
		t.Error("Expected an all-black label")
	}
}

func TestRunFruitLeavesOffsetBlank(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "/black.png", 64, 20, color.Black)
	sink := &recordingSink{}
	r := aRunner(fs, sink)
	j, _ := New(ImageSource{Path: "/black.png", Brightness: 100}, layout.New(layout.Fruit))

	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	data, _ := sink.frames[0].Bitmap()
	offsetBytes := layout.FruitOffset * 12
	usableBytes := len(data) - offsetBytes
	if !bytes.Equal(data[usableBytes:], make([]byte, offsetBytes)) {
		t.Error("Expected the last offset rows to be blank")
	}
	if !bytes.Equal(data[:usableBytes], bytes.Repeat([]byte{0xff}, usableBytes)) {
		t.Error("Expected the usable rows to be black")
	}
}

func TestRunPreviewBypassesSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := &recordingSink{}
	r := aRunner(fs, sink)

	for _, raw := range []bool{false, true} {
		j, _ := New(TextSource{Text: "Preview"}, layout.New(layout.Standard))
		j.PreviewPath = "/preview.png"
		j.PreviewRaw = raw

		if err := r.Run(context.Background(), j); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		f, err := fs.Open("/preview.png")
		if err != nil {
			t.Fatalf("Preview not written: %v", err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Couldn't decode preview: %v", err)
		}

		expected := image.Pt(320, 96)
		if raw {
			expected = image.Pt(96, 320)
		}
		if img.Bounds().Size() != expected {
			t.Errorf("Expected preview of %v (raw %v), got %v", expected, raw, img.Bounds().Size())
		}
	}

	if len(sink.frames) != 0 {
		t.Errorf("Expected nothing sent when previewing, got %d frames", len(sink.frames))
	}
}

func TestRunFailuresNeverReachSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/corrupt.png", []byte("not an image"), 0o644)
	writePNG(t, fs, "/ok.png", 10, 10, color.White)

	tests := []struct {
		name   string
		source Source
	}{
		{"missing image", ImageSource{Path: "/missing.png", Brightness: 100}},
		{"corrupt image", ImageSource{Path: "/corrupt.png", Brightness: 100}},
		{"brightness too high", ImageSource{Path: "/ok.png", Brightness: 201}},
		{"brightness negative", ImageSource{Path: "/ok.png", Brightness: -1}},
		{"empty text", TextSource{Text: " "}},
		{"missing font", TextSource{Text: "hi", Font: "/nope.ttf"}},
	}

	for _, test := range tests {
		sink := &recordingSink{}
		j, _ := New(test.source, layout.New(layout.Standard))
		if err := aRunner(fs, sink).Run(context.Background(), j); err == nil {
			t.Errorf("%s: expected an error", test.name)
		}
		if len(sink.frames) != 0 {
			t.Errorf("%s: expected nothing sent", test.name)
		}
	}
}

func TestRunErrorKinds(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/corrupt.png", []byte("not an image"), 0o644)
	writePNG(t, fs, "/ok.png", 10, 10, color.White)

	j, _ := New(ImageSource{Path: "/missing.png", Brightness: 100}, layout.New(layout.Standard))
	var ide *raster.ImageDecodeError
	if err := aRunner(fs, &recordingSink{}).Run(context.Background(), j); !errors.As(err, &ide) {
		t.Errorf("Expected ImageDecodeError, got %v", err)
	}

	j, _ = New(ImageSource{Path: "/ok.png", Brightness: 300}, layout.New(layout.Standard))
	if err := aRunner(fs, &recordingSink{}).Run(context.Background(), j); !errors.Is(err, raster.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}

	// brightness is checked before the image is even opened
	for _, path := range []string{"/missing.png", "/corrupt.png"} {
		j, _ = New(ImageSource{Path: path, Brightness: 201}, layout.New(layout.Standard))
		err := aRunner(fs, &recordingSink{}).Run(context.Background(), j)
		if !errors.Is(err, raster.ErrInvalidParameter) {
			t.Errorf("%s: expected ErrInvalidParameter, got %v", path, err)
		}
		if errors.As(err, &ide) {
			t.Errorf("%s: image was decoded before brightness was checked", path)
		}
	}

	transport := &printer.TransportError{Op: "write frame", Err: errors.New("gone")}
	j, _ = New(ImageSource{Path: "/ok.png", Brightness: 100}, layout.New(layout.Standard))
	var te *printer.TransportError
	if err := aRunner(fs, &recordingSink{err: transport}).Run(context.Background(), j); !errors.As(err, &te) {
		t.Errorf("Expected TransportError, got %v", err)
	}

	j, _ = New(ImageSource{Path: "/ok.png", Brightness: 100}, layout.New(layout.Standard))
	if err := aRunner(fs, nil).Run(context.Background(), j); !errors.Is(err, ErrNoSink) {
		t.Errorf("Expected ErrNoSink, got %v", err)
	}
}
