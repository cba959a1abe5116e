// Package filter decides whether a position record falls inside the
// requested bounding volume and time window.
package filter

import (
	"errors"
	"fmt"
	"time"

	"github.com/sonde-czml/backend/internal/models"
)

// GPSTimeLayout is the tracker's gps_time format. Times carry no zone and are read as UTC.
const GPSTimeLayout = "2006-01-02 15:04:05"

// ErrNullTime is wrapped by the MalformedRecordError for "gps_time": null.
var ErrNullTime = errors.New("gps_time is null")

// MalformedRecordError reports a record whose coordinates or timestamp
// cannot be interpreted. The record is rejected; the batch continues.
type MalformedRecordError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is (or wraps) a MalformedRecordError.
func IsMalformed(err error) bool {
	var target *MalformedRecordError
	return errors.As(err, &target)
}

// Verdict is the full outcome of evaluating one record.
type Verdict struct {
	Lat, Lon, Alt float64
	InVolume      bool
	HasTime       bool
	Time          time.Time
	InWindow      bool
}

// Accepted reports whether the record passes both tests. Records without a
// timestamp are judged on the volume alone.
func (v Verdict) Accepted() bool {
	return v.InVolume && (!v.HasTime || v.InWindow)
}

// Sample converts an accepted verdict into a track sample.
func (v Verdict) Sample(rec *models.PositionRecord) models.TrackSample {
	return models.TrackSample{
		Record:  rec,
		Time:    v.Time,
		HasTime: v.HasTime,
		Lat:     v.Lat,
		Lon:     v.Lon,
		Alt:     v.Alt,
	}
}

// Coordinates coerces the record's latitude, longitude and altitude.
func Coordinates(rec *models.PositionRecord) (lat, lon, alt float64, err error) {
	if lat, err = coerce("gps_lat", rec.Lat); err != nil {
		return 0, 0, 0, err
	}
	if lon, err = coerce("gps_lon", rec.Lon); err != nil {
		return 0, 0, 0, err
	}
	if alt, err = coerce("gps_alt", rec.Alt); err != nil {
		return 0, 0, 0, err
	}
	return lat, lon, alt, nil
}

func coerce(field string, n models.Numeric) (float64, error) {
	f, err := n.Float()
	if err != nil {
		return 0, &MalformedRecordError{Field: field, Value: n.String(), Err: err}
	}
	return f, nil
}

// ParseGPSTime parses a gps_time value.
func ParseGPSTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(GPSTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &MalformedRecordError{Field: "gps_time", Value: s, Err: err}
	}
	return t, nil
}

// Evaluate runs the spatial test and, for spatially accepted records that
// carry gps_time, parses the timestamp and runs the window test.
func Evaluate(rec *models.PositionRecord, volume models.BoundingVolume, window models.TimeWindow) (Verdict, error) {
	lat, lon, alt, err := Coordinates(rec)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{Lat: lat, Lon: lon, Alt: alt}
	v.InVolume = volume.Contains(lat, lon, alt)
	if !v.InVolume || !rec.HasTime() {
		return v, nil
	}

	if rec.GPSTime.IsNull() {
		return Verdict{}, &MalformedRecordError{Field: "gps_time", Value: "null", Err: ErrNullTime}
	}
	ts, err := ParseGPSTime(rec.GPSTime.String())
	if err != nil {
		return Verdict{}, err
	}
	v.HasTime = true
	v.Time = ts
	v.InWindow = window.Contains(ts)
	return v, nil
}

// AcceptsPosition reports whether rec lies inside volume and, when it
// carries a timestamp, inside window.
func AcceptsPosition(rec *models.PositionRecord, volume models.BoundingVolume, window models.TimeWindow) (bool, error) {
	v, err := Evaluate(rec, volume, window)
	if err != nil {
		return false, err
	}
	return v.Accepted(), nil
}

// ReceiverInVolume reports whether a receiver station lies inside volume.
// Stations have no timestamp so only the spatial test applies.
func ReceiverInVolume(r *models.Receiver, volume models.BoundingVolume) (bool, error) {
	lat, err := coerce("lat", r.Lat)
	if err != nil {
		return false, err
	}
	lon, err := coerce("lon", r.Lon)
	if err != nil {
		return false, err
	}
	alt, err := coerce("alt", r.Alt)
	if err != nil {
		return false, err
	}
	return volume.Contains(lat, lon, alt), nil
}
