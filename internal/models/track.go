package models

import "time"

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrackSample is an accepted position with its coordinates already coerced.
// HasTime is false for records that carried no gps_time; such samples are
// accepted on the spatial test alone.
type TrackSample struct {
	Record  *PositionRecord `json:"-"`
	Time    time.Time       `json:"time"`
	HasTime bool            `json:"hasTime"`
	Lat     float64         `json:"lat"`
	Lon     float64         `json:"lon"`
	Alt     float64         `json:"alt"`
}

// VehicleTrack holds the accepted samples of one vehicle in input order.
type VehicleTrack struct {
	VehicleID string        `json:"vehicleId"`
	Samples   []TrackSample `json:"samples"`
}

// Len returns the number of accepted samples.
func (t *VehicleTrack) Len() int {
	return len(t.Samples)
}

// SessionSpan is the running first/last timestamp across all vehicles of a run.
type SessionSpan struct {
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewSessionSpan returns an inverted span that any observation will narrow.
func NewSessionSpan() SessionSpan {
	return SessionSpan{FirstSeen: MaxTime, LastSeen: MinTime}
}

// Observe widens the span to include t.
func (s *SessionSpan) Observe(t time.Time) {
	if s.LastSeen.Before(t) {
		s.LastSeen = t
	}
	if s.FirstSeen.After(t) {
		s.FirstSeen = t
	}
}

// Valid reports whether the span covers a non-empty interval.
// A single observed instant is not a valid span.
func (s SessionSpan) Valid() bool {
	return s.LastSeen.After(s.FirstSeen)
}

// Range returns the span as a TimeRange, or nil if it is not valid.
func (s SessionSpan) Range() *TimeRange {
	if !s.Valid() {
		return nil
	}
	return &TimeRange{Start: s.FirstSeen, End: s.LastSeen}
}
