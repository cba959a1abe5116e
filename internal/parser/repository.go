// Package parser loads habhub tracker documents and style rules.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/sonde-czml/backend/internal/models"
)

// Repository accumulates the documents of one run.
//
// Object documents are merged by top-level key: a later document replaces
// an earlier document's value for the same key entirely. Array documents
// are receiver lists and are appended.
type Repository struct {
	logger    *slog.Logger
	validate  *validator.Validate
	merged    map[string]json.RawMessage
	receivers []models.Receiver
	sources   []string
}

// NewRepository creates an empty repository.
func NewRepository(logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		logger:   logger.With("component", "repository"),
		validate: validator.New(),
		merged:   make(map[string]json.RawMessage),
	}
}

// Load reads one document. On error the repository is left unchanged.
func (r *Repository) Load(name string, rd io.Reader) (models.DocumentKind, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return models.DocumentKindUnknown, &InputParseError{Name: name, Err: err}
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	r.logger.Debug("loading document", "file", name, "bytes", len(data))

	switch firstByte(data) {
	case '{':
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return models.DocumentKindUnknown, &InputParseError{Name: name, Err: err}
		}
		Merge(r.merged, doc)
		r.sources = append(r.sources, name)
		if _, ok := doc["positions"]; ok {
			return models.DocumentKindPositions, nil
		}
		return models.DocumentKindUnknown, nil

	case '[':
		var list []models.Receiver
		if err := json.Unmarshal(data, &list); err != nil {
			return models.DocumentKindUnknown, &InputParseError{Name: name, Err: err}
		}
		r.receivers = append(r.receivers, list...)
		r.sources = append(r.sources, name)
		return models.DocumentKindReceivers, nil

	default:
		return models.DocumentKindUnknown, &InputParseError{Name: name, Err: fmt.Errorf("not a JSON object or array")}
	}
}

// LoadFile opens and loads one file.
func (r *Repository) LoadFile(path string) (models.DocumentKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.DocumentKindUnknown, &InputParseError{Name: path, Err: err}
	}
	defer f.Close()

	return r.Load(path, f)
}

// LoadFiles loads each file in order. A file that fails is logged and
// skipped; its error is returned alongside the others.
func (r *Repository) LoadFiles(paths []string) []error {
	var errs []error
	for _, path := range paths {
		if _, err := r.LoadFile(path); err != nil {
			r.logger.Error("skipping input", "file", filepath.Base(path), "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// Sources lists the names of the documents loaded so far.
func (r *Repository) Sources() []string {
	return r.sources
}

// Raw returns the merged value for a top-level key.
func (r *Repository) Raw(key string) (json.RawMessage, bool) {
	v, ok := r.merged[key]
	return v, ok
}

// Receivers returns every receiver loaded so far: receiver-list documents
// first, then any list merged under a top-level "receivers" key.
func (r *Repository) Receivers() []models.Receiver {
	out := make([]models.Receiver, 0, len(r.receivers))
	out = append(out, r.receivers...)

	raw, ok := r.merged["receivers"]
	if !ok {
		return out
	}
	var list []models.Receiver
	if err := json.Unmarshal(raw, &list); err != nil {
		r.logger.Warn("ignoring receivers key", "error", err)
		return out
	}
	return append(out, list...)
}

// Document decodes the merged positions.position list and the receivers.
//
// Records that cannot be decoded individually (for example a numeric
// vehicle id) are skipped and counted in rejected. A missing positions or
// positions.position key yields a MissingKeyError.
func (r *Repository) Document() (doc *models.Document, rejected int, err error) {
	doc = &models.Document{Receivers: r.Receivers()}

	if raw, ok := r.merged["positions"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil {
			if rawList, ok := inner["position"]; ok {
				recs, skipped, err := r.decodePositions(rawList)
				if err != nil {
					return nil, 0, &MissingKeyError{Key: "positions.position", Err: err}
				}
				doc.Positions = &models.PositionList{Position: recs}
				rejected = skipped
			}
		}
	}

	if err := r.validate.Struct(doc); err != nil {
		return nil, 0, &MissingKeyError{Key: "positions.position", Err: err}
	}
	return doc, rejected, nil
}

func (r *Repository) decodePositions(raw json.RawMessage) ([]models.PositionRecord, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, err
	}
	if items == nil {
		return nil, 0, nil
	}

	recs := make([]models.PositionRecord, 0, len(items))
	skipped := 0
	for i, item := range items {
		var rec models.PositionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			r.logger.Debug("skipping undecodable record", "index", i, "error", err)
			skipped++
			continue
		}
		recs = append(recs, rec)
	}
	return recs, skipped, nil
}

// Merge copies every key of src into dst, replacing existing values.
func Merge(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		dst[k] = v
	}
}

// DetectKind classifies raw document bytes without loading them.
func DetectKind(data []byte) models.DocumentKind {
	data = bytes.TrimPrefix(data, utf8BOM)
	switch firstByte(data) {
	case '{':
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return models.DocumentKindUnknown
		}
		if _, ok := doc["positions"]; ok {
			return models.DocumentKindPositions
		}
	case '[':
		var list []models.Receiver
		if err := json.Unmarshal(data, &list); err == nil {
			return models.DocumentKindReceivers
		}
	}
	return models.DocumentKindUnknown
}

var utf8BOM = []byte("\xef\xbb\xbf")

func firstByte(data []byte) byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return 0
	}
	return data[0]
}
