// Package convert runs one habhub-to-CZML conversion end to end.
package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sonde-czml/backend/internal/czml"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/parser"
	"github.com/sonde-czml/backend/internal/track"
)

// Input is one named document.
type Input struct {
	Name   string
	Reader io.Reader
}

// Options configure a run.
type Options struct {
	Selection models.Selection
	// PositionFiles and ReceiverFiles are read from disk in order, after Inputs.
	PositionFiles []string
	ReceiverFiles []string
	Inputs        []Input

	DocumentName        string
	DocumentDescription string
	ClockMultiplier     float64
	Styles              *models.StyleRules
}

// Result holds everything a run produced.
type Result struct {
	Document  *czml.Document
	Assembly  *track.Assembly
	Tracks    []*track.ExportedTrack
	Receivers int
	Stats     track.Stats
	Undecoded int
	InputErrs []error
	Sources   []string
	Duration  time.Duration
}

// Run loads every input, selects and groups positions, and builds the CZML
// document. Malformed inputs and records are skipped and reported in the
// result. A merged input without positions.position fails the run before
// any output is produced.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	res := &Result{}

	repo := parser.NewRepository(logger)
	for _, in := range opts.Inputs {
		if _, err := repo.Load(in.Name, in.Reader); err != nil {
			logger.Error("skipping input", "file", in.Name, "error", err)
			res.InputErrs = append(res.InputErrs, err)
		}
	}
	res.InputErrs = append(res.InputErrs, repo.LoadFiles(opts.PositionFiles)...)
	res.InputErrs = append(res.InputErrs, repo.LoadFiles(opts.ReceiverFiles)...)
	res.Sources = repo.Sources()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, undecoded, err := repo.Document()
	if err != nil {
		return nil, fmt.Errorf("selecting vehicles: %w", err)
	}
	res.Undecoded = undecoded

	sel := opts.Selection
	logger.Debug("selection", "volume", sel.Volume.String(), "after", sel.Window.After, "before", sel.Window.Before)

	assembly := track.Assemble(doc.Positions.Position, sel.Volume, sel.Window,
		track.Options{ClampSpanToWindow: sel.ClampSpanToWindow}, logger)
	res.Assembly = assembly
	res.Stats = assembly.Stats
	res.Stats.Records += undecoded
	res.Stats.Malformed += undecoded

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Tracks = track.ExportAll(assembly, logger)

	b := czml.NewBuilder(logger)
	if opts.DocumentName != "" {
		b.Name = opts.DocumentName
	}
	if opts.DocumentDescription != "" {
		b.Description = opts.DocumentDescription
	}
	if opts.ClockMultiplier > 0 {
		b.Multiplier = opts.ClockMultiplier
	}
	b.Styles = opts.Styles

	res.Document = b.Build(assembly.Span, res.Tracks, doc.Receivers, sel.Volume)
	res.Receivers = len(res.Document.Packets) - len(res.Tracks)
	res.Duration = time.Since(start)

	logger.Info("conversion complete",
		"records", res.Stats.Records,
		"accepted", res.Stats.Accepted,
		"malformed", res.Stats.Malformed,
		"vehicles", len(assembly.Tracks),
		"tracks", len(res.Tracks),
		"receivers", res.Receivers,
		"duration", res.Duration)

	return res, nil
}
