package parser

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sonde-czml/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const positionsDoc = `{
  "positions": {
    "position": [
      {"position_id": "1", "vehicle": "A", "gps_time": "2020-12-23 12:00:00", "gps_lat": "46", "gps_lon": "15", "gps_alt": "1000"},
      {"position_id": "2", "vehicle": "A", "gps_time": "2020-12-23 12:05:00", "gps_lat": "46.1", "gps_lon": "15.1", "gps_alt": "2000"}
    ]
  }
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRepository_LoadPositions(t *testing.T) {
	repo := NewRepository(quietLogger())

	kind, err := repo.Load("positions.json", strings.NewReader(positionsDoc))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentKindPositions, kind)

	doc, rejected, err := repo.Document()
	require.NoError(t, err)
	assert.Zero(t, rejected)
	require.NotNil(t, doc.Positions)
	require.Len(t, doc.Positions.Position, 2)

	first := doc.Positions.Position[0]
	assert.Equal(t, "A", first.Vehicle)
	require.True(t, first.HasTime())
	assert.Equal(t, "2020-12-23 12:00:00", first.GPSTime.String())
	lat, err := first.Lat.Float()
	require.NoError(t, err)
	assert.Equal(t, 46.0, lat)
}

func TestRepository_LastWriteWins(t *testing.T) {
	repo := NewRepository(quietLogger())

	_, err := repo.Load("first.json", strings.NewReader(positionsDoc))
	require.NoError(t, err)

	second := `{"positions": {"position": [
	  {"vehicle": "B", "gps_time": "2020-12-23 13:00:00", "gps_lat": "46", "gps_lon": "15", "gps_alt": "500"}
	]}, "extra": 1}`
	_, err = repo.Load("second.json", strings.NewReader(second))
	require.NoError(t, err)

	doc, _, err := repo.Document()
	require.NoError(t, err)
	require.Len(t, doc.Positions.Position, 1, "later positions replace earlier ones entirely")
	assert.Equal(t, "B", doc.Positions.Position[0].Vehicle)

	_, ok := repo.Raw("extra")
	assert.True(t, ok)
	assert.Equal(t, []string{"first.json", "second.json"}, repo.Sources())
}

func TestRepository_DisjointKeysUnion(t *testing.T) {
	repo := NewRepository(quietLogger())

	_, err := repo.Load("meta.json", strings.NewReader(`{"meta": {"source": "spacenear"}}`))
	require.NoError(t, err)
	_, err = repo.Load("positions.json", strings.NewReader(positionsDoc))
	require.NoError(t, err)

	_, ok := repo.Raw("meta")
	assert.True(t, ok)
	doc, _, err := repo.Document()
	require.NoError(t, err)
	assert.Len(t, doc.Positions.Position, 2)
}

func TestRepository_InputParseErrorIsIsolated(t *testing.T) {
	repo := NewRepository(quietLogger())

	_, err := repo.Load("good.json", strings.NewReader(positionsDoc))
	require.NoError(t, err)

	_, err = repo.Load("broken.json", strings.NewReader(`{"positions": {"position": [`))
	require.Error(t, err)
	var parseErr *InputParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "broken.json", parseErr.Name)

	_, err = repo.Load("text.txt", strings.NewReader("hello"))
	require.ErrorAs(t, err, &parseErr)

	doc, _, err := repo.Document()
	require.NoError(t, err)
	assert.Len(t, doc.Positions.Position, 2, "failed loads leave the repository unchanged")
	assert.Equal(t, []string{"good.json"}, repo.Sources())
}

func TestRepository_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "positions.json", positionsDoc)
	bad := writeFile(t, dir, "bad.json", "{nope")
	missing := filepath.Join(dir, "missing.json")

	repo := NewRepository(quietLogger())
	errs := repo.LoadFiles([]string{bad, good, missing})
	require.Len(t, errs, 2)
	for _, err := range errs {
		var parseErr *InputParseError
		assert.ErrorAs(t, err, &parseErr)
	}

	doc, _, err := repo.Document()
	require.NoError(t, err)
	assert.Len(t, doc.Positions.Position, 2)
}

func TestRepository_MissingPositions(t *testing.T) {
	tests := []struct {
		name string
		docs []string
	}{
		{"nothing loaded", nil},
		{"no positions key", []string{`{"listeners": []}`}},
		{"no position key", []string{`{"positions": {}}`}},
		{"null position list", []string{`{"positions": {"position": null}}`}},
		{"positions not an object", []string{`{"positions": 3}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewRepository(quietLogger())
			for i, d := range tt.docs {
				_, err := repo.Load(string(rune('a'+i))+".json", strings.NewReader(d))
				require.NoError(t, err)
			}

			_, _, err := repo.Document()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingPositions))
			var keyErr *MissingKeyError
			assert.ErrorAs(t, err, &keyErr)
		})
	}
}

func TestRepository_EmptyPositionList(t *testing.T) {
	repo := NewRepository(quietLogger())
	_, err := repo.Load("empty.json", strings.NewReader(`{"positions": {"position": []}}`))
	require.NoError(t, err)

	doc, _, err := repo.Document()
	require.NoError(t, err)
	assert.Empty(t, doc.Positions.Position)
}

func TestRepository_UndecodableRecordSkipped(t *testing.T) {
	repo := NewRepository(quietLogger())
	_, err := repo.Load("mixed.json", strings.NewReader(`{"positions": {"position": [
	  {"vehicle": 42, "gps_lat": "46", "gps_lon": "15", "gps_alt": "1"},
	  {"vehicle": "A", "gps_lat": "46", "gps_lon": "15", "gps_alt": "1"}
	]}}`))
	require.NoError(t, err)

	doc, rejected, err := repo.Document()
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)
	require.Len(t, doc.Positions.Position, 1)
	assert.Equal(t, "A", doc.Positions.Position[0].Vehicle)
}

func TestRepository_NumericMetadataKept(t *testing.T) {
	repo := NewRepository(quietLogger())
	_, err := repo.Load("numeric.json", strings.NewReader(`{"positions": {"position": [
	  {"position_id": 69163055, "vehicle": "A", "gps_time": "2020-12-23 12:00:00",
	   "gps_lat": "46", "gps_lon": "15", "gps_alt": "1", "gps_speed": 19.7,
	   "sequence": 7673, "callsign": "VK5HS_AUTO_RX", "data": {"temperature_external": -40.5}}
	]}}`))
	require.NoError(t, err)

	doc, rejected, err := repo.Document()
	require.NoError(t, err)
	assert.Zero(t, rejected)
	require.Len(t, doc.Positions.Position, 1)
	assert.Equal(t, "7673", doc.Positions.Position[0].Sequence.String())
	assert.Equal(t, "69163055", doc.Positions.Position[0].PositionID.String())
}

func TestRepository_Receivers(t *testing.T) {
	repo := NewRepository(quietLogger())

	kind, err := repo.Load("receivers.json", strings.NewReader(`[
	  {"name": "SQ5SKB", "tdiff_hours": 0, "lon": 20.849021, "lat": 51.979377, "alt": 137, "description": "Yaesu"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, models.DocumentKindReceivers, kind)

	_, err = repo.Load("positions.json", strings.NewReader(`{"positions": {"position": []}, "receivers": [{"name": "OE5XYZ", "lon": "15", "lat": "46", "alt": "400"}]}`))
	require.NoError(t, err)

	doc, _, err := repo.Document()
	require.NoError(t, err)
	require.Len(t, doc.Receivers, 2)
	assert.Equal(t, "SQ5SKB", doc.Receivers[0].Name)
	assert.Equal(t, "OE5XYZ", doc.Receivers[1].Name)
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, models.DocumentKindPositions, DetectKind([]byte(positionsDoc)))
	assert.Equal(t, models.DocumentKindPositions, DetectKind([]byte("\xef\xbb\xbf  "+positionsDoc)))
	assert.Equal(t, models.DocumentKindReceivers, DetectKind([]byte(`[{"name":"X","lat":1,"lon":2,"alt":3}]`)))
	assert.Equal(t, models.DocumentKindUnknown, DetectKind([]byte(`{"other": 1}`)))
	assert.Equal(t, models.DocumentKindUnknown, DetectKind([]byte(`not json`)))
	assert.Equal(t, models.DocumentKindUnknown, DetectKind(nil))
}
