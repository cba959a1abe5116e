package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sonde-czml/backend/internal/config"
	"github.com/sonde-czml/backend/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const habhubDoc = `{"positions": {"position": [
  {"vehicle": "A", "gps_time": "2020-12-23 12:00:00", "gps_lat": "46", "gps_lon": "15", "gps_alt": "1000"},
  {"vehicle": "A", "gps_time": "2020-12-23 12:05:00", "gps_lat": "46.1", "gps_lon": "15.1", "gps_alt": "2000"},
  {"vehicle": "C", "gps_time": "2020-12-23 12:01:00", "gps_lat": "90", "gps_lon": "15", "gps_alt": "1000"}
]}}`

func parse(t *testing.T, args ...string) *options {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o, err := parseFlags(fs, args)
	require.NoError(t, err)
	return o
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFlags(t *testing.T) {
	o := parse(t, "-habhub-data", "a.json,b.json", "-habhub-data", "c.json",
		"-d", "-bbox", "14,16,45,47", "-o", "out.czml", "d.json")

	assert.Equal(t, fileList{"a.json", "b.json", "c.json", "d.json"}, o.dataFiles)
	assert.True(t, o.debug)
	assert.Equal(t, "14,16,45,47", o.bbox)
	assert.Equal(t, "out.czml", o.output)
}

func TestOptionsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	o := &options{bbox: "14, 16, 45, 47", heightRange: "0,20000", after: "2020-12-23", clampSpan: true, model: "https://example.org/m.glb"}
	require.NoError(t, o.apply(cfg))

	assert.Equal(t, [4]float64{14, 16, 45, 47}, cfg.Selection.BBox)
	assert.Equal(t, [2]float64{0, 20000}, cfg.Selection.HeightRange)
	assert.Equal(t, "2020-12-23", cfg.Selection.After)
	assert.True(t, cfg.Selection.ClampSpanToWindow)
	assert.Equal(t, "https://example.org/m.glb", cfg.Output.ModelURL)

	assert.Error(t, (&options{bbox: "1,2,3"}).apply(config.DefaultConfig()))
	assert.Error(t, (&options{heightRange: "0,high"}).apply(config.DefaultConfig()))
}

func TestRun_WritesDocument(t *testing.T) {
	data := writeFile(t, "positions.json", habhubDoc)
	o := parse(t, "-bbox", "14,16,45,47", "-height-range", "0,20000", data)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), o, &out))

	var items []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &items))
	require.Len(t, items, 2, "preamble plus one track")
	assert.Equal(t, "document", items[0]["id"])
	assert.Equal(t, "A", items[1]["id"])
}

func TestRun_OutputFile(t *testing.T) {
	data := writeFile(t, "positions.json", habhubDoc)
	target := filepath.Join(t.TempDir(), "out.czml")
	o := parse(t, "-o", target, "-before", "2020-12-23T12:02:00", data)

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout))
	assert.Empty(t, stdout.String())

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"id": "A"`)
}

func TestRun_Errors(t *testing.T) {
	t.Run("no inputs", func(t *testing.T) {
		assert.Error(t, run(context.Background(), parse(t), io.Discard))
	})

	t.Run("missing positions", func(t *testing.T) {
		data := writeFile(t, "other.json", `{"listeners": []}`)
		err := run(context.Background(), parse(t, data), io.Discard)
		assert.ErrorIs(t, err, parser.ErrMissingPositions)
	})

	t.Run("invalid window", func(t *testing.T) {
		data := writeFile(t, "positions.json", habhubDoc)
		err := run(context.Background(), parse(t, "-after", "soon", data), io.Discard)
		assert.Error(t, err)
	})
}
