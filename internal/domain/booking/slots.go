package booking

import "time"

// GenerateSlots derives the bookable start times for one local day from its
// opening hours. For every open window [start, end) it emits
// t = start, start+granularity, ... while t+service <= end. Slot existence is
// independent of occupancy; availability is the table plan's concern.
//
// day must be local midnight (see NormalizeDate). A closed day, or a window
// shorter than the service duration, yields no slots.
func GenerateSlots(hours OpeningHours, day time.Time, serviceMinutes, granularityMinutes int) []time.Time {
	if hours.Closed || serviceMinutes <= 0 || granularityMinutes <= 0 {
		return nil
	}
	var out []time.Time
	for _, w := range hours.Windows {
		for m := w.Start; m+serviceMinutes <= w.End; m += granularityMinutes {
			out = append(out, day.Add(time.Duration(m)*time.Minute))
		}
	}
	return out
}
