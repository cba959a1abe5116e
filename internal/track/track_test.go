package track

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sonde-czml/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pos(vehicle, gpsTime, lat, lon, alt string) models.PositionRecord {
	rec := models.PositionRecord{
		Vehicle: vehicle,
		Lat:     models.NewNumeric(lat),
		Lon:     models.NewNumeric(lon),
		Alt:     models.NewNumeric(alt),
	}
	if gpsTime != "" {
		rec.GPSTime = models.NewText(gpsTime)
	}
	return rec
}

func at(hh, mm int) time.Time {
	return time.Date(2020, 12, 23, hh, mm, 0, 0, time.UTC)
}

var scenarioVolume = models.NewBoundingVolume([4]float64{14, 16, 45, 47}, [2]float64{0, 20000})

func TestAssemble_ScenarioA(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:05:00", "46.1", "15.1", "2000"),
	}

	a := Assemble(records, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())
	require.Len(t, a.NonEmpty(), 1)

	e, err := Export(a.NonEmpty()[0])
	require.NoError(t, err)
	assert.Equal(t, "A", e.VehicleID)
	assert.Len(t, e.Coordinates, 2)
	assert.Equal(t, at(12, 0), e.Availability.Start)
	assert.Equal(t, at(12, 5), e.Availability.End)

	assert.Equal(t, []any{
		"2020-12-23T12:00:00Z", 15.0, 46.0, 1000.0,
		"2020-12-23T12:05:00Z", 15.1, 46.1, 2000.0,
	}, e.Flatten())
}

func TestAssemble_ScenarioB_BeforeBound(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:05:00", "46.1", "15.1", "2000"),
	}
	window := models.UnboundedWindow()
	window.Before = at(12, 2)

	a := Assemble(records, scenarioVolume, window, Options{}, quietLogger())
	tracks := a.NonEmpty()
	require.Len(t, tracks, 1)

	e, err := Export(tracks[0])
	require.NoError(t, err)
	require.Len(t, e.Coordinates, 1)
	assert.Equal(t, at(12, 0), e.Availability.Start)
	assert.Equal(t, at(12, 0), e.Availability.End)
	assert.Equal(t, 1, a.Stats.OutsideWindow)

	// the window-rejected sample still widened the span
	assert.Equal(t, at(12, 0), a.Span.FirstSeen)
	assert.Equal(t, at(12, 5), a.Span.LastSeen)
}

func TestAssemble_ClampSpanToWindow(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:01:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:05:00", "46.1", "15.1", "2000"),
	}
	window := models.UnboundedWindow()
	window.Before = at(12, 2)

	a := Assemble(records, scenarioVolume, window, Options{ClampSpanToWindow: true}, quietLogger())
	assert.Equal(t, at(12, 0), a.Span.FirstSeen)
	assert.Equal(t, at(12, 1), a.Span.LastSeen)
}

func TestAssemble_ScenarioC_OutOfBox(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:03:00", "90", "15", "1000"),
	}

	a := Assemble(records, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())
	tr, ok := a.Track("A")
	require.True(t, ok)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 1, a.Stats.OutsideVolume)

	// rejected spatially, so it never reaches the span
	assert.Equal(t, at(12, 0), a.Span.LastSeen)
}

func TestAssemble_PreservesArrivalOrder(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:05:00", "46", "15", "1000"),
		pos("B", "2020-12-23 12:01:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:03:00", "46", "15", "1000"),
	}

	a := Assemble(records, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())
	require.Len(t, a.Tracks, 2)
	assert.Equal(t, "A", a.Tracks[0].VehicleID)
	assert.Equal(t, "B", a.Tracks[1].VehicleID)

	e, err := Export(a.Tracks[0])
	require.NoError(t, err)
	require.Len(t, e.Coordinates, 3)
	assert.Equal(t, at(12, 5), e.Coordinates[0].Time)
	assert.Equal(t, at(12, 0), e.Coordinates[1].Time)
	assert.Equal(t, at(12, 3), e.Coordinates[2].Time)

	assert.Equal(t, at(12, 0), e.Availability.Start)
	assert.Equal(t, at(12, 5), e.Availability.End)
	assert.False(t, e.Availability.Start.After(e.Availability.End))
}

func TestAssemble_DuplicatesKept(t *testing.T) {
	rec := pos("A", "2020-12-23 12:00:00", "46", "15", "1000")
	a := Assemble([]models.PositionRecord{rec, rec}, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())

	tr, ok := a.Track("A")
	require.True(t, ok)
	assert.Equal(t, 2, tr.Len())
}

func TestAssemble_EmptyVehiclesSeededButNotExported(t *testing.T) {
	records := []models.PositionRecord{
		pos("OUTSIDE", "2020-12-23 12:00:00", "10", "10", "1000"),
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
	}

	a := Assemble(records, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())
	assert.Len(t, a.Tracks, 2)
	require.Len(t, a.NonEmpty(), 1)
	assert.Equal(t, "A", a.NonEmpty()[0].VehicleID)

	exported := ExportAll(a, quietLogger())
	require.Len(t, exported, 1)
	assert.Equal(t, "A", exported[0].VehicleID)
}

func TestAssemble_MalformedRecordsRejected(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "2020-12-23 12:00:00", "not-a-number", "15", "1000"),
		pos("A", "23/12/2020 12:00", "46", "15", "1000"),
		pos("", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("A", "2020-12-23 12:01:00", "46", "15", "1000"),
	}

	a := Assemble(records, scenarioVolume, models.UnboundedWindow(), Options{}, quietLogger())
	assert.Equal(t, 4, a.Stats.Records)
	assert.Equal(t, 3, a.Stats.Malformed)
	assert.Equal(t, 1, a.Stats.Accepted)
	assert.Len(t, a.Tracks, 1)
}

func TestAssemble_UntimedSamples(t *testing.T) {
	records := []models.PositionRecord{
		pos("A", "", "46", "15", "1000"),
		pos("A", "2020-12-23 12:00:00", "46", "15", "1000"),
		pos("B", "", "46", "15", "1000"),
	}
	window := models.TimeWindow{After: at(13, 0), Before: at(14, 0)}

	a := Assemble(records, scenarioVolume, window, Options{}, quietLogger())
	assert.Equal(t, 2, a.Stats.Accepted, "untimed samples pass on the spatial test alone")
	assert.Equal(t, 2, a.Stats.Untimed)
	assert.Equal(t, 1, a.Stats.OutsideWindow)

	trA, _ := a.Track("A")
	assert.Equal(t, 1, trA.Len())

	_, err := Export(trA)
	assert.ErrorIs(t, err, ErrNoTimedSamples)

	assert.Empty(t, ExportAll(a, quietLogger()))
}

func TestExport_SkipsUntimedSamples(t *testing.T) {
	tr := &models.VehicleTrack{
		VehicleID: "A",
		Samples: []models.TrackSample{
			{Lat: 46, Lon: 15, Alt: 100},
			{Time: at(12, 0), HasTime: true, Lat: 46, Lon: 15, Alt: 1000},
		},
	}

	e, err := Export(tr)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Untimed)
	require.Len(t, e.Coordinates, 1)
	assert.Equal(t, at(12, 0), e.Availability.Start)
	assert.Equal(t, e.Availability.Start, e.Availability.End)
}

func TestAssemble_DefaultSelectionAcceptsAll(t *testing.T) {
	records := []models.PositionRecord{
		pos("RS_S1130582", "2020-12-23 12:41:45", "-34.9376", "138.86803", "26363"),
		pos("RS_R3341161", "2020-12-23 12:42:00", "47.2", "15.4", "30100"),
		pos("KEY", "2020-12-23 12:00:00", "40.0", "-105.0", "15000"),
	}

	a := Assemble(records, models.DefaultBoundingVolume(), models.UnboundedWindow(), Options{}, quietLogger())
	assert.Equal(t, 3, a.Stats.Accepted)
	assert.Zero(t, a.Stats.OutsideVolume)
	assert.Len(t, a.NonEmpty(), 3)
	assert.True(t, a.Span.Valid())
}
