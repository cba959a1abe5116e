package czml

import (
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/sonde-czml/backend/internal/filter"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/track"
)

// Document is a preamble followed by entity packets.
type Document struct {
	Preamble Preamble
	Packets  []Packet
}

// MarshalJSON encodes the document as a single JSON array.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.items())
}

func (d *Document) items() []any {
	items := make([]any, 0, len(d.Packets)+1)
	items = append(items, d.Preamble)
	for i := range d.Packets {
		items = append(items, d.Packets[i])
	}
	return items
}

// WriteTo writes the document indented by four spaces.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(d.items(), "", "    ")
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}

// Builder assembles documents with fixed document-level settings.
type Builder struct {
	Name        string
	Description string
	Multiplier  float64
	Styles      *models.StyleRules
	Logger      *slog.Logger
}

// NewBuilder returns a builder with the default document settings.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		Name:        "document",
		Description: "document description from prolog",
		Multiplier:  7200,
		Logger:      logger.With("component", "czml"),
	}
}

// Build emits the preamble, one packet per exported track and one packet
// per receiver inside volume. A station listed more than once is emitted
// once, from its last entry. Receivers with unusable coordinates are
// logged and left out.
func (b *Builder) Build(span models.SessionSpan, tracks []*track.ExportedTrack, receivers []models.Receiver, volume models.BoundingVolume) *Document {
	doc := &Document{
		Preamble: NewPreamble(b.Name, b.Description, span, b.Multiplier),
		Packets:  make([]Packet, 0, len(tracks)+len(receivers)),
	}

	for _, e := range tracks {
		doc.Packets = append(doc.Packets, TrackPacket(e, b.Styles.StyleFor(e.VehicleID)))
	}

	last := make(map[string]int, len(receivers))
	for i := range receivers {
		last[receivers[i].Name] = i
	}

	for i := range receivers {
		r := &receivers[i]
		if last[r.Name] != i {
			b.Logger.Debug("skipping duplicate receiver", "name", r.Name)
			continue
		}
		inside, err := filter.ReceiverInVolume(r, volume)
		if err != nil {
			b.Logger.Debug("skipping receiver", "name", r.Name, "error", err)
			continue
		}
		if !inside {
			continue
		}
		p, err := ReceiverPacket(r)
		if err != nil {
			b.Logger.Debug("skipping receiver", "name", r.Name, "error", err)
			continue
		}
		doc.Packets = append(doc.Packets, p)
	}
	return doc
}
