package booking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Window is a half-open open period [Start, End) in minutes from local
// midnight, e.g. 18:00-23:00 is {1080, 1380}.
type Window struct {
	Start int
	End   int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// OpeningHours holds one weekday's open windows for a restaurant. Unique per
// (restaurant, weekday); owned by restaurant administration, read-only here.
type OpeningHours struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Weekday      time.Weekday
	Closed       bool
	Windows      []Window
}

// Validate checks the per-weekday invariant: windows ordered, start < end,
// pairwise non-overlapping.
func (h OpeningHours) Validate() error {
	for i, w := range h.Windows {
		if w.Start < 0 || w.End > 24*60 {
			return fmt.Errorf("%w: window %s out of day bounds", ErrValidation, w)
		}
		if w.Start >= w.End {
			return fmt.Errorf("%w: window %s has start >= end", ErrValidation, w)
		}
		if i > 0 && h.Windows[i-1].End > w.Start {
			return fmt.Errorf("%w: windows %s and %s overlap", ErrValidation, h.Windows[i-1], w)
		}
	}
	return nil
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseWindows parses the "HH:MM-HH:MM,HH:MM-HH:MM" storage form and returns
// the windows sorted by start.
func ParseWindows(s string) ([]Window, error) {
	var out []Window
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("window %q: missing '-'", part)
		}
		start, err := parseMinute(lo)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", part, err)
		}
		end, err := parseMinute(hi)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", part, err)
		}
		out = append(out, Window{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// FormatWindows is the inverse of ParseWindows.
func FormatWindows(ws []Window) string {
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, ",")
}
