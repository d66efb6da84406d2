package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"tomgalvin.uk/labelprint/internal/job"
	"tomgalvin.uk/labelprint/internal/layout"
	"tomgalvin.uk/labelprint/internal/printer"
	"tomgalvin.uk/labelprint/internal/raster"
	"tomgalvin.uk/labelprint/internal/text"
)

const deviceEnv = "LABELPRINT_DEVICE"

type config struct {
	text       string
	image      string
	fruit      bool
	kind       layout.Kind
	font       string
	lines      int
	brightness int
	dither     string
	fit        string
	noRotate   bool
	autoLevel  bool
	preview    string
	previewRaw bool
	device     string
	dump       string
	timeout    time.Duration
	verbose    bool
}

func parseFlags(args []string, getenv func(string) string) (*config, error) {
	c := &config{}
	fs := flag.NewFlagSet("labelprint", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: labelprint [flags] [TEXT]\n\nPrints TEXT or an image on a Phomemo D30 label printer.\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&c.image, "image", "", "print an image file instead of text")
	label := fs.String("label", layout.Standard.String(), "label stock: standard or fruit")
	fs.BoolVar(&c.fruit, "fruit", false, "lay the label out for fruit labels (same as --label fruit)")
	fs.StringVar(&c.font, "font", text.DefaultFont, fmt.Sprintf("font for text labels: a TTF/OTF file or one of %s", strings.Join(text.Builtin, ", ")))
	fs.IntVar(&c.lines, "lines", 0, "maximum number of lines text may wrap onto (0 for no limit)")
	fs.IntVar(&c.brightness, "brightness", 100, fmt.Sprintf("image brightness in percent (%d-%d)", raster.MinBrightness, raster.MaxBrightness))
	fs.StringVar(&c.dither, "dither", raster.Threshold.String(), "how images are made black and white: threshold or floyd-steinberg")
	fs.StringVar(&c.fit, "fit", raster.Stretch.String(), "how images are scaled to the label: stretch or contain")
	fs.BoolVar(&c.noRotate, "no-rotate", false, "don't turn portrait images sideways")
	fs.BoolVar(&c.autoLevel, "auto-level", false, "stretch image contrast to the full black to white range")
	fs.StringVar(&c.preview, "preview", "", "save the label as a PNG at this path instead of printing it")
	fs.BoolVar(&c.previewRaw, "preview-raw", false, "save the preview the way the printer sees it")
	fs.StringVarP(&c.device, "device", "d", getenv(deviceEnv), fmt.Sprintf("Bluetooth address, name or serial port of the printer (default $%s)", deviceEnv))
	fs.StringVar(&c.dump, "dump", "", "write the raw printer data to this file instead of printing")
	fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "give up if the label hasn't printed after this long (0 waits forever)")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log debug output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	kind, err := layout.ParseKind(*label)
	if err != nil {
		return nil, err
	}
	if c.fruit {
		if fs.Changed("label") && kind != layout.Fruit {
			return nil, fmt.Errorf("Can't use --fruit with --label %s", kind)
		}
		kind = layout.Fruit
	}
	c.kind = kind

	c.text = strings.Join(fs.Args(), " ")
	if c.text == "" && c.image == "" {
		return nil, errors.New("Either TEXT or --image is required")
	}
	if c.text != "" && c.image != "" {
		return nil, errors.New("Can't use both TEXT and --image")
	}
	if c.preview != "" && c.dump != "" {
		return nil, errors.New("Can't use both --preview and --dump")
	}
	if c.previewRaw && c.preview == "" {
		return nil, errors.New("--preview-raw needs --preview")
	}

	return c, nil
}

func (c *config) rasterOptions() (raster.Options, error) {
	opts := raster.DefaultOptions()
	opts.Brightness = c.brightness
	opts.AutoRotate = !c.noRotate
	opts.AutoLevel = c.autoLevel

	var err error
	if opts.Dither, err = raster.ParseDither(c.dither); err != nil {
		return opts, err
	}
	if opts.Fit, err = raster.ParseFit(c.fit); err != nil {
		return opts, err
	}
	return opts, opts.Validate()
}

func (c *config) printJob() (*job.PrintJob, error) {
	var src job.Source
	if c.image != "" {
		src = job.ImageSource{Path: c.image, Brightness: c.brightness}
	} else {
		src = job.TextSource{Text: strings.ReplaceAll(c.text, `\n`, "\n"), Font: c.font, Lines: c.lines}
	}

	j, err := job.New(src, layout.New(c.kind))
	if err != nil {
		return nil, err
	}
	j.PreviewPath = c.preview
	j.PreviewRaw = c.previewRaw
	return j, nil
}

// deviceSink only looks for the printer once there is a frame to send.
type deviceSink struct {
	device string
	logger *slog.Logger
}

func (d *deviceSink) progress(size int) io.Writer {
	return progressbar.DefaultBytes(int64(size), "Sending label")
}

func (d *deviceSink) Write(ctx context.Context, f printer.Frame) error {
	if printer.IsSerialPort(d.device) {
		s := printer.NewSerialSink(d.device, d.logger)
		s.Progress = d.progress(len(f))
		return s.Write(ctx, f)
	}

	match := printer.MatchName(printer.DefaultName)
	if d.device != "" {
		byName, byAddress := printer.MatchName(d.device), printer.MatchAddress(d.device)
		match = func(result bluetooth.ScanResult) bool {
			return byAddress(result) || byName(result)
		}
	}

	d.logger.Info("Scanning for printer...")
	conn, err := printer.FindBluetooth(ctx, d.logger, match)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := conn.Connect(ctx); err != nil {
		return err
	}
	if info := conn.Info(); info.State == printer.OutOfPaper {
		d.logger.Warn("Printer may be out of paper", "battery", info.BatteryLevel)
	}

	conn.Progress = d.progress(len(f))
	return conn.Write(ctx, f)
}

func run(ctx context.Context, c *config, fs afero.Fs, logger *slog.Logger) error {
	opts, err := c.rasterOptions()
	if err != nil {
		return err
	}
	j, err := c.printJob()
	if err != nil {
		return err
	}

	runner := &job.Runner{Fs: fs, Raster: opts, Logger: logger}
	switch {
	case c.preview != "":
	case c.dump != "":
		runner.Sink = &printer.FileSink{Fs: fs, Path: c.dump}
	default:
		runner.Sink = &deviceSink{device: c.device, logger: logger}
	}

	return runner.Run(ctx, j)
}

func main() {
	c, err := parseFlags(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err = run(ctx, c, afero.NewOsFs(), logger)
	stop()
	if err != nil {
		logger.Error("Couldn't print label", "err", err)
		os.Exit(1)
	}
}
