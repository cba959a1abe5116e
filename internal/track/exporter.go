package track

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sonde-czml/backend/internal/models"
)

// ErrNoTimedSamples is returned for a track whose samples all lack a
// timestamp; such a track cannot be placed on a timeline.
var ErrNoTimedSamples = errors.New("track has no timestamped samples")

// TimeLayout renders sample times in exported coordinate lists.
const TimeLayout = "2006-01-02T15:04:05Z"

// Coordinate is one time-tagged position.
type Coordinate struct {
	Time time.Time `json:"time" msgpack:"time"`
	Lon  float64   `json:"lon" msgpack:"lon"`
	Lat  float64   `json:"lat" msgpack:"lat"`
	Alt  float64   `json:"alt" msgpack:"alt"`
}

// ExportedTrack is a vehicle trajectory ready for the output sink.
type ExportedTrack struct {
	VehicleID    string           `json:"vehicleId"`
	Availability models.TimeRange `json:"availability"`
	Coordinates  []Coordinate     `json:"coordinates"`
	// Untimed counts accepted samples left out for lack of a timestamp.
	Untimed int `json:"untimed,omitempty"`
}

// Flatten returns the coordinates as [time, lon, lat, alt, time, lon, ...].
func (e *ExportedTrack) Flatten() []any {
	out := make([]any, 0, len(e.Coordinates)*4)
	for _, c := range e.Coordinates {
		out = append(out, c.Time.UTC().Format(TimeLayout), c.Lon, c.Lat, c.Alt)
	}
	return out
}

// Export computes the availability interval and coordinate list of a
// track. Coordinates keep the track's sample order. The interval spans
// the earliest and latest sample times, independent of that order.
func Export(t *models.VehicleTrack) (*ExportedTrack, error) {
	out := &ExportedTrack{
		VehicleID:   t.VehicleID,
		Coordinates: make([]Coordinate, 0, len(t.Samples)),
	}

	start := models.MaxTime
	end := models.MinTime
	for _, s := range t.Samples {
		if !s.HasTime {
			out.Untimed++
			continue
		}
		if end.Before(s.Time) {
			end = s.Time
		}
		if start.After(s.Time) {
			start = s.Time
		}
		out.Coordinates = append(out.Coordinates, Coordinate{
			Time: s.Time,
			Lon:  s.Lon,
			Lat:  s.Lat,
			Alt:  s.Alt,
		})
	}

	if len(out.Coordinates) == 0 {
		return nil, ErrNoTimedSamples
	}
	out.Availability = models.TimeRange{Start: start, End: end}
	return out, nil
}

// ExportAll exports every non-empty track of an assembly in first-seen
// vehicle order. Tracks with no timestamped samples are logged and left out.
func ExportAll(a *Assembly, logger *slog.Logger) []*ExportedTrack {
	if logger == nil {
		logger = slog.Default()
	}
	tracks := a.NonEmpty()
	out := make([]*ExportedTrack, 0, len(tracks))
	for _, t := range tracks {
		e, err := Export(t)
		if err != nil {
			logger.Warn("not exporting vehicle", "vehicle", t.VehicleID, "samples", t.Len(), "error", err)
			continue
		}
		if e.Untimed > 0 {
			logger.Warn("untimed samples left out", "vehicle", t.VehicleID, "count", e.Untimed)
		}
		out = append(out, e)
	}
	return out
}
