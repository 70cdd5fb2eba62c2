package agenda

import "time"

// DayWindow is the half-open interval [Start, End) covering one civil day
// in a fixed timezone.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// WindowFor returns the window for date in loc. End is midnight of the
// following civil day, so DST transition days are 23 or 25 hours long.
func WindowFor(date Date, loc *time.Location) DayWindow {
	return DayWindow{
		Start: date.In(loc),
		End:   date.AddDays(1).In(loc),
	}
}

// Overlaps reports whether [start, end) intersects the window. Touching a
// boundary does not count.
func (w DayWindow) Overlaps(start, end time.Time) bool {
	return end.After(w.Start) && start.Before(w.End)
}
