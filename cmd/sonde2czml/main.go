// Command sonde2czml converts habhub radiosonde telemetry into a CZML
// document for CesiumJS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sonde-czml/backend/internal/config"
	"github.com/sonde-czml/backend/internal/convert"
	"github.com/sonde-czml/backend/internal/logger"
	"github.com/sonde-czml/backend/internal/parser"
)

// fileList collects a repeatable, comma separated file flag.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*f = append(*f, p)
		}
	}
	return nil
}

type options struct {
	dataFiles     fileList
	receiverFiles fileList
	debug         bool
	bbox          string
	heightRange   string
	after         string
	before        string
	gpx           string
	styles        string
	model         string
	clampSpan     bool
	output        string
	configPath    string
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.Var(&o.dataFiles, "habhub-data", "habhub position JSON `FILE`s (repeatable or comma separated)")
	fs.Var(&o.receiverFiles, "habhub-receivers", "habhub receiver JSON `FILE`s (repeatable or comma separated)")
	fs.BoolVar(&o.debug, "d", false, "show detailed logging")
	fs.BoolVar(&o.debug, "debug", false, "show detailed logging")
	fs.StringVar(&o.bbox, "bbox", "", "bounding box `MINLON,MAXLON,MINLAT,MAXLAT`")
	fs.StringVar(&o.heightRange, "height-range", "", "height range `LOWER,UPPER` in metres")
	fs.StringVar(&o.after, "after", "", "drop samples before `DATE` (ISO-8601)")
	fs.StringVar(&o.before, "before", "", "drop samples after `DATE` (ISO-8601)")
	fs.StringVar(&o.gpx, "gpx", "", "derive the bounding volume from a GPX `FILE`")
	fs.StringVar(&o.styles, "styles", "", "per-vehicle track styles YAML `FILE`")
	fs.StringVar(&o.model, "model", "", "glTF model `URL` shown at each vehicle")
	fs.BoolVar(&o.clampSpan, "clamp-span", false, "limit the playback clock to the time window")
	fs.StringVar(&o.output, "o", "", "write the CZML document to `FILE` (default stdout)")
	fs.StringVar(&o.configPath, "config", "", "YAML configuration `FILE`")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.dataFiles = append(o.dataFiles, fs.Args()...)
	return o, nil
}

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("sonde2czml", flag.ExitOnError)
	opts, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sonde2czml: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options, stdout io.Writer) error {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		loaded, err := config.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := o.apply(cfg); err != nil {
		return err
	}

	level := cfg.Advanced.LogLevel
	if o.debug {
		level = "debug"
	}
	log := logger.New(level, cfg.Advanced.LogFormat, o.debug)

	if len(o.dataFiles) == 0 {
		return errors.New("no habhub data files given")
	}

	sel, err := cfg.Selection.Build()
	if err != nil {
		return err
	}
	styles, err := cfg.Output.LoadStyles()
	if err != nil {
		return err
	}

	res, err := convert.Run(ctx, convert.Options{
		Selection:           sel,
		PositionFiles:       o.dataFiles,
		ReceiverFiles:       o.receiverFiles,
		DocumentName:        cfg.Output.DocumentName,
		DocumentDescription: cfg.Output.DocumentDescription,
		ClockMultiplier:     cfg.Output.ClockMultiplier,
		Styles:              styles,
	}, log)
	if err != nil {
		if errors.Is(err, parser.ErrMissingPositions) {
			return fmt.Errorf("%w (inputs: %s)", err, strings.Join(o.dataFiles, ", "))
		}
		return err
	}

	return writeDocument(res, o.output, stdout, log)
}

// apply overlays command line settings on the configuration.
func (o *options) apply(cfg *config.AppConfig) error {
	if o.bbox != "" {
		v, err := parseFloats(o.bbox, 4)
		if err != nil {
			return fmt.Errorf("-bbox: %w", err)
		}
		copy(cfg.Selection.BBox[:], v)
	}
	if o.heightRange != "" {
		v, err := parseFloats(o.heightRange, 2)
		if err != nil {
			return fmt.Errorf("-height-range: %w", err)
		}
		copy(cfg.Selection.HeightRange[:], v)
	}
	if o.after != "" {
		cfg.Selection.After = o.after
	}
	if o.before != "" {
		cfg.Selection.Before = o.before
	}
	if o.gpx != "" {
		cfg.Selection.GPXFile = o.gpx
	}
	if o.clampSpan {
		cfg.Selection.ClampSpanToWindow = true
	}
	if o.styles != "" {
		cfg.Output.StylesFile = o.styles
	}
	if o.model != "" {
		cfg.Output.ModelURL = o.model
	}
	return nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = f
	}
	return out, nil
}

func writeDocument(res *convert.Result, path string, stdout io.Writer, log *slog.Logger) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := res.Document.WriteTo(w)
	if err != nil {
		return fmt.Errorf("writing CZML: %w", err)
	}
	log.Debug("document written", "bytes", n, "tracks", len(res.Tracks), "receivers", res.Receivers)
	return nil
}
