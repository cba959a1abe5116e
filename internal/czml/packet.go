// Package czml writes exported tracks as a CZML document for CesiumJS.
package czml

import (
	"fmt"
	"time"

	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/track"
)

// Version is the CZML version announced in the preamble.
const Version = "1.0"

// Preamble is the first packet of every CZML document.
type Preamble struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Clock       *Clock `json:"clock,omitempty"`
}

// Clock drives the viewer's playback timeline.
type Clock struct {
	Interval    string  `json:"interval"`
	CurrentTime string  `json:"currentTime"`
	Multiplier  float64 `json:"multiplier"`
}

// Packet describes one scene entity.
type Packet struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Availability string    `json:"availability,omitempty"`
	Position     *Position `json:"position,omitempty"`
	Path         *Path     `json:"path,omitempty"`
	Model        *Model    `json:"model,omitempty"`
	ViewFrom     *ViewFrom `json:"viewFrom,omitempty"`
	Point        *Point    `json:"point,omitempty"`
	Label        *Label    `json:"label,omitempty"`
}

type Position struct {
	CartographicDegrees []any `json:"cartographicDegrees"`
}

type Path struct {
	Material   Material `json:"material"`
	Width      float64  `json:"width"`
	LeadTime   float64  `json:"leadTime"`
	TrailTime  float64  `json:"trailTime"`
	Resolution float64  `json:"resolution"`
}

type Material struct {
	PolylineOutline *PolylineOutline `json:"polylineOutline,omitempty"`
}

type PolylineOutline struct {
	Color        Color   `json:"color"`
	OutlineColor Color   `json:"outlineColor"`
	OutlineWidth float64 `json:"outlineWidth"`
}

type Color struct {
	RGBA []int `json:"rgba"`
}

type Model struct {
	Gltf             string  `json:"gltf"`
	Scale            float64 `json:"scale"`
	MinimumPixelSize float64 `json:"minimumPixelSize"`
}

type ViewFrom struct {
	Cartesian []float64 `json:"cartesian"`
}

type Point struct {
	Color        Color   `json:"color"`
	PixelSize    float64 `json:"pixelSize"`
	OutlineColor *Color  `json:"outlineColor,omitempty"`
	OutlineWidth float64 `json:"outlineWidth,omitempty"`
}

type Label struct {
	Text        string      `json:"text"`
	Show        bool        `json:"show"`
	Scale       float64     `json:"scale,omitempty"`
	PixelOffset *Cartesian2 `json:"pixelOffset,omitempty"`
}

type Cartesian2 struct {
	Cartesian2 []float64 `json:"cartesian2"`
}

// FormatTime renders a timestamp the way CZML expects it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(track.TimeLayout)
}

// Interval renders start/end as an ISO-8601 interval.
func Interval(start, end time.Time) string {
	return FormatTime(start) + "/" + FormatTime(end)
}

// NewPreamble builds the document packet. A clock is attached only when
// span covers a non-empty interval; playback starts at its beginning.
func NewPreamble(name, description string, span models.SessionSpan, multiplier float64) Preamble {
	p := Preamble{
		ID:          "document",
		Name:        name,
		Version:     Version,
		Description: description,
	}
	if span.Valid() {
		p.Clock = &Clock{
			Interval:    Interval(span.FirstSeen, span.LastSeen),
			CurrentTime: FormatTime(span.FirstSeen),
			Multiplier:  multiplier,
		}
	}
	return p
}

// TrackPacket builds the time-dynamic packet of one vehicle.
func TrackPacket(e *track.ExportedTrack, style models.TrackStyle) Packet {
	return Packet{
		ID:           e.VehicleID,
		Availability: Interval(e.Availability.Start, e.Availability.End),
		Position:     &Position{CartographicDegrees: e.Flatten()},
		Path: &Path{
			Material: Material{PolylineOutline: &PolylineOutline{
				Color:        Color{RGBA: style.Color},
				OutlineColor: Color{RGBA: style.OutlineColor},
				OutlineWidth: style.OutlineWidth,
			}},
			Width:      style.Width,
			LeadTime:   0,
			TrailTime:  style.TrailTime,
			Resolution: style.Resolution,
		},
		Model: &Model{
			Gltf:             style.ModelURL,
			Scale:            style.ModelScale,
			MinimumPixelSize: style.MinimumPixelSize,
		},
		ViewFrom: &ViewFrom{Cartesian: style.ViewFrom},
	}
}

// ReceiverPacket builds a static marker for a listening station.
func ReceiverPacket(r *models.Receiver) (Packet, error) {
	lat, err := r.Lat.Float()
	if err != nil {
		return Packet{}, fmt.Errorf("receiver %s lat: %w", r.Name, err)
	}
	lon, err := r.Lon.Float()
	if err != nil {
		return Packet{}, fmt.Errorf("receiver %s lon: %w", r.Name, err)
	}
	alt, err := r.Alt.Float()
	if err != nil {
		return Packet{}, fmt.Errorf("receiver %s alt: %w", r.Name, err)
	}

	return Packet{
		ID:          "receiver/" + r.Name,
		Name:        r.Name,
		Description: r.Description,
		Position:    &Position{CartographicDegrees: []any{lon, lat, alt}},
		Point: &Point{
			Color:        Color{RGBA: []int{255, 255, 0, 255}},
			PixelSize:    8,
			OutlineColor: &Color{RGBA: []int{0, 0, 0, 255}},
			OutlineWidth: 1,
		},
		Label: &Label{
			Text:        r.Name,
			Show:        true,
			Scale:       0.5,
			PixelOffset: &Cartesian2{Cartesian2: []float64{50, -30}},
		},
	}, nil
}
