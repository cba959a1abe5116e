package models

import (
	"errors"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNumberAbsent is returned by Numeric.Float when the field was missing or null.
var ErrNumberAbsent = errors.New("number absent")

// Numeric is a habhub numeric field. The tracker serialises numbers as
// strings ("26363"), other producers emit plain JSON numbers; both are kept
// as raw text and coerced on demand.
type Numeric struct {
	raw string
	set bool
}

// NewNumeric returns a Numeric holding the given text.
func NewNumeric(s string) Numeric {
	return Numeric{raw: s, set: true}
}

// NumericFloat returns a Numeric holding the shortest text form of f.
func NumericFloat(f float64) Numeric {
	return Numeric{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

// IsSet reports whether the field was present and non-null.
func (n Numeric) IsSet() bool {
	return n.set
}

// String returns the raw text.
func (n Numeric) String() string {
	return n.raw
}

// Float coerces the raw text to float64.
func (n Numeric) Float() (float64, error) {
	if !n.set {
		return 0, ErrNumberAbsent
	}
	return strconv.ParseFloat(strings.TrimSpace(n.raw), 64)
}

// UnmarshalJSON accepts a JSON string, number or null.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*n = Numeric{}
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*n = Numeric{raw: str, set: true}
	default:
		*n = Numeric{raw: s, set: true}
	}
	return nil
}

// MarshalJSON writes the raw text back as a JSON string.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	return json.Marshal(n.raw)
}

// Text is a habhub text field. A key that is present distinguishes an
// explicit null from a missing key; scalars of any JSON type are kept as
// their text.
type Text struct {
	raw     string
	present bool
	null    bool
}

// NewText returns a present, non-null Text.
func NewText(s string) Text {
	return Text{raw: s, present: true}
}

// Present reports whether the key appeared in the record, null or not.
func (t Text) Present() bool {
	return t.present
}

// IsNull reports whether the key was present with a null value.
func (t Text) IsNull() bool {
	return t.null
}

func (t Text) String() string {
	return t.raw
}

// UnmarshalJSON accepts a JSON string, number, bool or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*t = Text{present: true, null: true}
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*t = Text{raw: str, present: true}
	default:
		*t = Text{raw: s, present: true}
	}
	return nil
}

// MarshalJSON writes the text as a JSON string, or null.
func (t Text) MarshalJSON() ([]byte, error) {
	if !t.present || t.null {
		return []byte("null"), nil
	}
	return json.Marshal(t.raw)
}

// PositionRecord is one habhub position sample.
//
//	{
//	  "position_id": "69163055",
//	  "vehicle": "RS_S1130582",
//	  "gps_time": "2020-12-23 12:41:45",
//	  "gps_lat": "-34.9376",
//	  "gps_lon": "138.86803",
//	  "gps_alt": "26363",
//	  ...
//	}
type PositionRecord struct {
	PositionID Numeric         `json:"position_id"`
	MissionID  Numeric         `json:"mission_id"`
	Vehicle    string          `json:"vehicle"`
	ServerTime Text            `json:"server_time"`
	GPSTime    Text            `json:"gps_time"`
	Lat        Numeric         `json:"gps_lat"`
	Lon        Numeric         `json:"gps_lon"`
	Alt        Numeric         `json:"gps_alt"`
	Heading    Numeric         `json:"gps_heading"`
	Speed      Numeric         `json:"gps_speed"`
	Picture    Text            `json:"picture"`
	TempInside Numeric         `json:"temp_inside"`
	Data       json.RawMessage `json:"data,omitempty"`
	Callsign   Text            `json:"callsign"`
	Sequence   Numeric         `json:"sequence"`
}

// HasTime reports whether the record carries a gps_time key. An explicit
// null counts as carried.
func (p *PositionRecord) HasTime() bool {
	return p.GPSTime.Present()
}

// PositionList is the value under the "positions" key of a tracker document.
type PositionList struct {
	Position []PositionRecord `json:"position" validate:"required"`
}

// Receiver is one entry of the tracker's receiver (listener station) list.
type Receiver struct {
	Name        string  `json:"name"`
	TDiffHours  Numeric `json:"tdiff_hours"`
	Lon         Numeric `json:"lon"`
	Lat         Numeric `json:"lat"`
	Alt         Numeric `json:"alt"`
	Description string  `json:"description,omitempty"`
}

// DocumentKind classifies an input document by its top-level shape.
type DocumentKind string

const (
	DocumentKindPositions DocumentKind = "positions"
	DocumentKindReceivers DocumentKind = "receivers"
	DocumentKindUnknown   DocumentKind = "unknown"
)

// Document is the merged input of one conversion: the position list (when
// any merged document carried one) and every receiver seen.
type Document struct {
	Positions *PositionList `json:"positions" validate:"required"`
	Receivers []Receiver    `json:"receivers,omitempty"`
}
