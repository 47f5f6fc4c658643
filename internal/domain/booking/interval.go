package booking

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two half-open ranges intersect. Touching
// endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return other.Start.Before(iv.End) && iv.Start.Before(other.End)
}

// HasConflict reports whether iv overlaps any waiting/confirmed hold in the
// entry's ledger. Canceled and archived holds are ignored.
func (e PlanEntry) HasConflict(iv Interval) bool {
	for _, h := range e.Intervals {
		if !h.Status.Active() {
			continue
		}
		if iv.Overlaps(Interval{Start: h.Start, End: h.End}) {
			return true
		}
	}
	return false
}
