package parser

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sonde-czml/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStyleRules(t *testing.T) {
	content := `
default:
  width: 8
  trail_time: 3600

vehicles:
  - pattern: "RS_S*"
    color: [0, 0, 255, 255]
    model_url: "https://example.org/rs41.glb"
  - pattern: "RS_*"
    outline_width: 2
`
	path := writeFile(t, t.TempDir(), "styles.yaml", content)

	rules, err := ParseStyleRules(path)
	require.NoError(t, err)
	require.Len(t, rules.Vehicles, 2)
	assert.Equal(t, "RS_S*", rules.Vehicles[0].Pattern)

	t.Run("first matching pattern wins", func(t *testing.T) {
		s := rules.StyleFor("RS_S1130582")
		assert.Equal(t, []int{0, 0, 255, 255}, s.Color)
		assert.Equal(t, "https://example.org/rs41.glb", s.ModelURL)
		assert.Equal(t, 4.0, s.OutlineWidth, "second pattern is not applied")
		assert.Equal(t, 8.0, s.Width)
		assert.Equal(t, 3600.0, s.TrailTime)
	})

	t.Run("later pattern", func(t *testing.T) {
		s := rules.StyleFor("RS_R3341161")
		assert.Equal(t, []int{255, 0, 0, 255}, s.Color)
		assert.Equal(t, 2.0, s.OutlineWidth)
	})

	t.Run("no match uses default", func(t *testing.T) {
		s := rules.StyleFor("HABTEST")
		assert.Equal(t, models.DefaultModelURL, s.ModelURL)
		assert.Equal(t, 8.0, s.Width)
		assert.Equal(t, []float64{-1000, 0, 300}, s.ViewFrom)
	})
}

func TestParseStyleRules_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"short color", "default:\n  color: [255, 0]\n"},
		{"color out of range", "default:\n  color: [300, 0, 0, 255]\n"},
		{"missing pattern", "vehicles:\n  - width: 3\n"},
		{"bad model url", "default:\n  model_url: \"not a url\"\n"},
		{"bad yaml", "default: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStyleRulesFromReader(strings.NewReader(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestParseStyleRules_MissingFile(t *testing.T) {
	_, err := ParseStyleRules(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestStyleFor_NilRules(t *testing.T) {
	var rules *models.StyleRules
	assert.Equal(t, models.DefaultTrackStyle(), rules.StyleFor("A"))
}
