package models

import (
	"fmt"
	"strconv"
	"time"
)

// BoundingVolume is the acceptance region in degrees and metres.
// Bounds are inclusive. min <= max is not checked; an inverted range
// simply accepts nothing on that axis.
type BoundingVolume struct {
	MinLon       float64 `json:"minLon" yaml:"min_lon"`
	MaxLon       float64 `json:"maxLon" yaml:"max_lon"`
	MinLat       float64 `json:"minLat" yaml:"min_lat"`
	MaxLat       float64 `json:"maxLat" yaml:"max_lat"`
	MinElevation float64 `json:"minElevation" yaml:"min_elevation"`
	MaxElevation float64 `json:"maxElevation" yaml:"max_elevation"`
}

// DefaultBoundingVolume covers the whole globe from ground level to 100 km.
// Longitude spans -180..360 so both signed and 0..360 inputs pass.
func DefaultBoundingVolume() BoundingVolume {
	return BoundingVolume{
		MinLon:       -180,
		MaxLon:       360,
		MinLat:       -90,
		MaxLat:       90,
		MinElevation: 0,
		MaxElevation: 100000,
	}
}

// NewBoundingVolume builds a volume from a [minlon, maxlon, minlat, maxlat]
// box and a [lower, upper] height range.
func NewBoundingVolume(box [4]float64, heights [2]float64) BoundingVolume {
	return BoundingVolume{
		MinLon:       box[0],
		MaxLon:       box[1],
		MinLat:       box[2],
		MaxLat:       box[3],
		MinElevation: heights[0],
		MaxElevation: heights[1],
	}
}

// Contains reports whether the point lies inside the volume.
func (b BoundingVolume) Contains(lat, lon, ele float64) bool {
	return ele >= b.MinElevation && ele <= b.MaxElevation &&
		lat >= b.MinLat && lat <= b.MaxLat &&
		lon >= b.MinLon && lon <= b.MaxLon
}

func (b BoundingVolume) String() string {
	return fmt.Sprintf("bbox(lon: %s..%s, lat: %s..%s, ele: %s..%s)",
		fmtFloat(b.MinLon), fmtFloat(b.MaxLon),
		fmtFloat(b.MinLat), fmtFloat(b.MaxLat),
		fmtFloat(b.MinElevation), fmtFloat(b.MaxElevation))
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MinTime and MaxTime are the open ends of an unbounded window.
var (
	MinTime = time.Time{}
	MaxTime = time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
)

// TimeWindow bounds accepted sample timestamps, inclusive at both ends.
// All times are UTC.
type TimeWindow struct {
	After  time.Time `json:"after"`
	Before time.Time `json:"before"`
}

// UnboundedWindow accepts every representable timestamp.
func UnboundedWindow() TimeWindow {
	return TimeWindow{After: MinTime, Before: MaxTime}
}

// Contains reports whether t lies within the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.After) && !t.After(w.Before)
}

// IsUnbounded reports whether neither end has been narrowed.
func (w TimeWindow) IsUnbounded() bool {
	return w.After.Equal(MinTime) && w.Before.Equal(MaxTime)
}
