package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/sonde-czml/backend/internal/models"
)

var windowLayouts = []string{
	"2006-01-02",
	"2006-01-02T15",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07:00",
}

// ParseWindowBound parses an ISO-8601 date or date-time given as a window
// bound. A space may stand in for the T separator. Offsets are converted to
// UTC; values without one are taken as UTC.
func ParseWindowBound(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if len(v) > 10 && v[10] == ' ' {
		v = v[:10] + "T" + v[11:]
	}
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO date %q", s)
}

// NewTimeWindow builds a window from optional textual bounds. An empty
// bound leaves that end open.
func NewTimeWindow(after, before string) (models.TimeWindow, error) {
	w := models.UnboundedWindow()
	if after != "" {
		t, err := ParseWindowBound(after)
		if err != nil {
			return w, fmt.Errorf("after: %w", err)
		}
		w.After = t
	}
	if before != "" {
		t, err := ParseWindowBound(before)
		if err != nil {
			return w, fmt.Errorf("before: %w", err)
		}
		w.Before = t
	}
	return w, nil
}
