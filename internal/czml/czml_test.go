package czml

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(hh, mm int) time.Time {
	return time.Date(2020, 12, 23, hh, mm, 0, 0, time.UTC)
}

func exported() *track.ExportedTrack {
	return &track.ExportedTrack{
		VehicleID:    "A",
		Availability: models.TimeRange{Start: at(12, 0), End: at(12, 5)},
		Coordinates: []track.Coordinate{
			{Time: at(12, 0), Lon: 15, Lat: 46, Alt: 1000},
			{Time: at(12, 5), Lon: 15.1, Lat: 46.1, Alt: 2000},
		},
	}
}

func TestNewPreamble(t *testing.T) {
	t.Run("clock from valid span", func(t *testing.T) {
		span := models.SessionSpan{FirstSeen: at(12, 0), LastSeen: at(12, 5)}
		p := NewPreamble("document", "desc", span, 7200)

		assert.Equal(t, "document", p.ID)
		assert.Equal(t, "1.0", p.Version)
		require.NotNil(t, p.Clock)
		assert.Equal(t, "2020-12-23T12:00:00Z/2020-12-23T12:05:00Z", p.Clock.Interval)
		assert.Equal(t, "2020-12-23T12:00:00Z", p.Clock.CurrentTime)
		assert.Equal(t, 7200.0, p.Clock.Multiplier)
	})

	t.Run("no clock for empty span", func(t *testing.T) {
		p := NewPreamble("document", "", models.NewSessionSpan(), 7200)
		assert.Nil(t, p.Clock)
	})

	t.Run("no clock for single instant", func(t *testing.T) {
		span := models.SessionSpan{FirstSeen: at(12, 0), LastSeen: at(12, 0)}
		assert.Nil(t, NewPreamble("document", "", span, 7200).Clock)
	})
}

func TestTrackPacket(t *testing.T) {
	p := TrackPacket(exported(), models.DefaultTrackStyle())

	assert.Equal(t, "A", p.ID)
	assert.Equal(t, "2020-12-23T12:00:00Z/2020-12-23T12:05:00Z", p.Availability)
	require.NotNil(t, p.Position)
	assert.Len(t, p.Position.CartographicDegrees, 8)
	assert.Equal(t, "2020-12-23T12:00:00Z", p.Position.CartographicDegrees[0])

	require.NotNil(t, p.Path)
	assert.Equal(t, []int{255, 0, 0, 255}, p.Path.Material.PolylineOutline.Color.RGBA)
	assert.Equal(t, []int{0, 255, 0, 255}, p.Path.Material.PolylineOutline.OutlineColor.RGBA)
	assert.Equal(t, 4.0, p.Path.Material.PolylineOutline.OutlineWidth)
	assert.Equal(t, 6.0, p.Path.Width)
	assert.Equal(t, 100000.0, p.Path.TrailTime)
	assert.Equal(t, 5.0, p.Path.Resolution)

	require.NotNil(t, p.Model)
	assert.Equal(t, models.DefaultModelURL, p.Model.Gltf)
	assert.Equal(t, 64.0, p.Model.MinimumPixelSize)
	assert.Equal(t, []float64{-1000, 0, 300}, p.ViewFrom.Cartesian)
}

func TestReceiverPacket(t *testing.T) {
	r := &models.Receiver{Name: "OE5XYZ", Lat: models.NumericFloat(46), Lon: models.NumericFloat(15), Alt: models.NumericFloat(400)}
	p, err := ReceiverPacket(r)
	require.NoError(t, err)
	assert.Equal(t, "receiver/OE5XYZ", p.ID)
	assert.Equal(t, []any{15.0, 46.0, 400.0}, p.Position.CartographicDegrees)
	assert.Equal(t, "OE5XYZ", p.Label.Text)

	_, err = ReceiverPacket(&models.Receiver{Name: "broken"})
	assert.Error(t, err)
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(quietLogger())
	span := models.SessionSpan{FirstSeen: at(12, 0), LastSeen: at(12, 5)}
	volume := models.NewBoundingVolume([4]float64{14, 16, 45, 47}, [2]float64{0, 20000})
	receivers := []models.Receiver{
		{Name: "INSIDE", Lat: models.NumericFloat(46), Lon: models.NumericFloat(15), Alt: models.NumericFloat(400)},
		{Name: "OUTSIDE", Lat: models.NumericFloat(51.9), Lon: models.NumericFloat(20.8), Alt: models.NumericFloat(137)},
		{Name: "BROKEN", Lat: models.NewNumeric("x")},
	}

	doc := b.Build(span, []*track.ExportedTrack{exported()}, receivers, volume)
	require.Len(t, doc.Packets, 2)
	assert.Equal(t, "A", doc.Packets[0].ID)
	assert.Equal(t, "receiver/INSIDE", doc.Packets[1].ID)
	assert.Equal(t, "document description from prolog", doc.Preamble.Description)
}

func TestBuilder_DuplicateReceivers(t *testing.T) {
	volume := models.NewBoundingVolume([4]float64{14, 16, 45, 47}, [2]float64{0, 20000})
	receivers := []models.Receiver{
		{Name: "OE5XYZ", Lat: models.NumericFloat(46), Lon: models.NumericFloat(15), Alt: models.NumericFloat(400)},
		{Name: "OE3ABC", Lat: models.NumericFloat(46.5), Lon: models.NumericFloat(15.5), Alt: models.NumericFloat(200)},
		{Name: "OE5XYZ", Lat: models.NumericFloat(46.2), Lon: models.NumericFloat(15.2), Alt: models.NumericFloat(410)},
	}

	doc := NewBuilder(quietLogger()).Build(models.NewSessionSpan(), nil, receivers, volume)
	require.Len(t, doc.Packets, 2)
	assert.Equal(t, "receiver/OE3ABC", doc.Packets[0].ID)
	assert.Equal(t, "receiver/OE5XYZ", doc.Packets[1].ID)

	want, err := ReceiverPacket(&receivers[2])
	require.NoError(t, err)
	assert.Equal(t, want, doc.Packets[1])
}

func TestBuilder_Styles(t *testing.T) {
	b := NewBuilder(quietLogger())
	b.Styles = &models.StyleRules{Vehicles: []models.VehicleStyle{
		{Pattern: "A", TrackStyle: models.TrackStyle{Width: 12}},
	}}

	doc := b.Build(models.NewSessionSpan(), []*track.ExportedTrack{exported()}, nil, models.DefaultBoundingVolume())
	require.Len(t, doc.Packets, 1)
	assert.Equal(t, 12.0, doc.Packets[0].Path.Width)
}

func TestDocument_JSON(t *testing.T) {
	b := NewBuilder(quietLogger())
	span := models.SessionSpan{FirstSeen: at(12, 0), LastSeen: at(12, 5)}
	doc := b.Build(span, []*track.ExportedTrack{exported()}, nil, models.DefaultBoundingVolume())

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "document", decoded[0]["id"])
	assert.Equal(t, "1.0", decoded[0]["version"])
	assert.Contains(t, decoded[0], "clock")

	assert.Equal(t, "A", decoded[1]["id"])
	pos := decoded[1]["position"].(map[string]any)
	coords := pos["cartographicDegrees"].([]any)
	assert.Equal(t, []any{
		"2020-12-23T12:00:00Z", 15.0, 46.0, 1000.0,
		"2020-12-23T12:05:00Z", 15.1, 46.1, 2000.0,
	}, coords)

	var buf bytes.Buffer
	_, err = doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "[\n    {"))
}

func TestDocument_EmptyOutputHasOnlyPreamble(t *testing.T) {
	doc := NewBuilder(quietLogger()).Build(models.NewSessionSpan(), nil, nil, models.DefaultBoundingVolume())

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.NotContains(t, decoded[0], "clock")
}
