// Package track groups accepted position records into per-vehicle tracks
// and turns each track into an availability interval and coordinate list.
package track

import (
	"log/slog"

	"github.com/sonde-czml/backend/internal/filter"
	"github.com/sonde-czml/backend/internal/models"
)

// Options tune assembly.
type Options struct {
	// ClampSpanToWindow widens the session span only with samples that
	// also pass the time window. By default every spatially accepted,
	// timestamped sample widens it, including ones the window rejects.
	ClampSpanToWindow bool
}

// Stats counts the outcome of every record seen by Assemble.
type Stats struct {
	Records       int `json:"records"`
	Accepted      int `json:"accepted"`
	Untimed       int `json:"untimed"`
	Malformed     int `json:"malformed"`
	OutsideVolume int `json:"outsideVolume"`
	OutsideWindow int `json:"outsideWindow"`
}

// Assembly is the result of one assembler run.
type Assembly struct {
	// Tracks holds one entry per distinct vehicle in first-seen order,
	// including vehicles with no accepted samples.
	Tracks []*models.VehicleTrack
	Span   models.SessionSpan
	Stats  Stats
}

// NonEmpty returns the tracks that have at least one accepted sample.
func (a *Assembly) NonEmpty() []*models.VehicleTrack {
	out := make([]*models.VehicleTrack, 0, len(a.Tracks))
	for _, t := range a.Tracks {
		if t.Len() > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Track returns the track of one vehicle.
func (a *Assembly) Track(vehicleID string) (*models.VehicleTrack, bool) {
	for _, t := range a.Tracks {
		if t.VehicleID == vehicleID {
			return t, true
		}
	}
	return nil, false
}

// Assembler groups records by vehicle.
type Assembler struct {
	volume models.BoundingVolume
	window models.TimeWindow
	opts   Options
	logger *slog.Logger
}

// NewAssembler creates an assembler for one selection.
func NewAssembler(volume models.BoundingVolume, window models.TimeWindow, opts Options, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		volume: volume,
		window: window,
		opts:   opts,
		logger: logger.With("component", "assembler"),
	}
}

// Assemble runs both passes over records. Relative order within a vehicle
// follows input order; samples are never re-sorted by time.
func (a *Assembler) Assemble(records []models.PositionRecord) *Assembly {
	result := &Assembly{Span: models.NewSessionSpan()}
	index := make(map[string]*models.VehicleTrack)

	// pass 1: every vehicle gets a track, in first-seen order
	for i := range records {
		id := records[i].Vehicle
		if id == "" {
			continue
		}
		if _, ok := index[id]; !ok {
			t := &models.VehicleTrack{VehicleID: id}
			index[id] = t
			result.Tracks = append(result.Tracks, t)
		}
	}

	// pass 2: filter and append
	for i := range records {
		rec := &records[i]
		result.Stats.Records++

		if rec.Vehicle == "" {
			result.Stats.Malformed++
			a.logger.Debug("rejecting record without vehicle", "position_id", rec.PositionID)
			continue
		}

		v, err := filter.Evaluate(rec, a.volume, a.window)
		if err != nil {
			result.Stats.Malformed++
			a.logger.Debug("rejecting malformed record", "vehicle", rec.Vehicle, "position_id", rec.PositionID, "error", err)
			continue
		}
		if !v.InVolume {
			result.Stats.OutsideVolume++
			continue
		}

		if v.HasTime && !a.opts.ClampSpanToWindow {
			result.Span.Observe(v.Time)
		}
		if v.HasTime && !v.InWindow {
			result.Stats.OutsideWindow++
			continue
		}
		if v.HasTime && a.opts.ClampSpanToWindow {
			result.Span.Observe(v.Time)
		}

		t := index[rec.Vehicle]
		t.Samples = append(t.Samples, v.Sample(rec))
		result.Stats.Accepted++
		if !v.HasTime {
			result.Stats.Untimed++
		}
	}

	for _, t := range result.Tracks {
		if n := t.Len(); n > 0 {
			a.logger.Debug("vehicle positions", "vehicle", t.VehicleID, "positions", n)
		}
	}
	return result
}

// Assemble is a convenience wrapper around a one-off Assembler.
func Assemble(records []models.PositionRecord, volume models.BoundingVolume, window models.TimeWindow, opts Options, logger *slog.Logger) *Assembly {
	return NewAssembler(volume, window, opts, logger).Assemble(records)
}
