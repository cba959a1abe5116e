package models

import "path"

// DefaultModelURL is the glTF balloon model shown at each vehicle position.
const DefaultModelURL = "https://static.mah.priv.at/cors/OE-SOX.glb"

// TrackStyle holds the cosmetic parameters of one exported track. They are
// passed through to the CZML packet untouched. Zero values mean "inherit".
type TrackStyle struct {
	Color            []int     `json:"color,omitempty" yaml:"color,omitempty" validate:"omitempty,len=4,dive,min=0,max=255"`
	OutlineColor     []int     `json:"outlineColor,omitempty" yaml:"outline_color,omitempty" validate:"omitempty,len=4,dive,min=0,max=255"`
	OutlineWidth     float64   `json:"outlineWidth,omitempty" yaml:"outline_width,omitempty" validate:"gte=0"`
	Width            float64   `json:"width,omitempty" yaml:"width,omitempty" validate:"gte=0"`
	TrailTime        float64   `json:"trailTime,omitempty" yaml:"trail_time,omitempty" validate:"gte=0"`
	Resolution       float64   `json:"resolution,omitempty" yaml:"resolution,omitempty" validate:"gte=0"`
	ModelURL         string    `json:"modelUrl,omitempty" yaml:"model_url,omitempty" validate:"omitempty,url"`
	ModelScale       float64   `json:"modelScale,omitempty" yaml:"model_scale,omitempty" validate:"gte=0"`
	MinimumPixelSize float64   `json:"minimumPixelSize,omitempty" yaml:"minimum_pixel_size,omitempty" validate:"gte=0"`
	ViewFrom         []float64 `json:"viewFrom,omitempty" yaml:"view_from,omitempty" validate:"omitempty,len=3"`
}

// DefaultTrackStyle is a red path with a green outline under the default model.
func DefaultTrackStyle() TrackStyle {
	return TrackStyle{
		Color:            []int{255, 0, 0, 255},
		OutlineColor:     []int{0, 255, 0, 255},
		OutlineWidth:     4,
		Width:            6,
		TrailTime:        100000,
		Resolution:       5,
		ModelURL:         DefaultModelURL,
		ModelScale:       1.0,
		MinimumPixelSize: 64,
		ViewFrom:         []float64{-1000, 0, 300},
	}
}

// Merge returns s with every field set in o taking o's value.
func (s TrackStyle) Merge(o TrackStyle) TrackStyle {
	if len(o.Color) > 0 {
		s.Color = o.Color
	}
	if len(o.OutlineColor) > 0 {
		s.OutlineColor = o.OutlineColor
	}
	if o.OutlineWidth > 0 {
		s.OutlineWidth = o.OutlineWidth
	}
	if o.Width > 0 {
		s.Width = o.Width
	}
	if o.TrailTime > 0 {
		s.TrailTime = o.TrailTime
	}
	if o.Resolution > 0 {
		s.Resolution = o.Resolution
	}
	if o.ModelURL != "" {
		s.ModelURL = o.ModelURL
	}
	if o.ModelScale > 0 {
		s.ModelScale = o.ModelScale
	}
	if o.MinimumPixelSize > 0 {
		s.MinimumPixelSize = o.MinimumPixelSize
	}
	if len(o.ViewFrom) > 0 {
		s.ViewFrom = o.ViewFrom
	}
	return s
}

// StyleRules maps vehicle id patterns to track styles.
type StyleRules struct {
	Default  TrackStyle     `json:"default" yaml:"default"`
	Vehicles []VehicleStyle `json:"vehicles" yaml:"vehicles" validate:"dive"`
}

// VehicleStyle applies a style to vehicles whose id matches Pattern
// (path.Match syntax, e.g. "RS_S*").
type VehicleStyle struct {
	Pattern    string `json:"pattern" yaml:"pattern" validate:"required"`
	TrackStyle `yaml:",inline"`
}

// StyleFor resolves the style of one vehicle: built-in defaults, then the
// rules' default, then the first matching vehicle pattern.
func (r *StyleRules) StyleFor(vehicleID string) TrackStyle {
	style := DefaultTrackStyle()
	if r == nil {
		return style
	}
	style = style.Merge(r.Default)
	for _, v := range r.Vehicles {
		if ok, err := path.Match(v.Pattern, vehicleID); err == nil && ok {
			return style.Merge(v.TrackStyle)
		}
	}
	return style
}
