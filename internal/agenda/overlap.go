package agenda

import (
	"time"

	"dailyagenda/internal/model"
)

// TightGapLimit is the gap, in minutes, below which two consecutive timed
// events are flagged.
const TightGapLimit = 15

// Annotation describes schedule conflicts for one timed event.
type Annotation struct {
	// Overlaps is set when the event intersects any other timed event.
	Overlaps bool
	// GapToNext is the whole-minute gap to the following event. It is only
	// set when the gap is tight: 0 <= gap < TightGapLimit.
	GapToNext *int
}

// SplitAllDay partitions events into all-day and timed events, keeping
// the relative order of each.
func SplitAllDay(events []model.CalendarEvent) (allDay, timed []model.CalendarEvent) {
	for _, e := range events {
		if e.AllDay {
			allDay = append(allDay, e)
		} else {
			timed = append(timed, e)
		}
	}
	return allDay, timed
}

// Annotate computes one Annotation per event, index for index. events must
// be timed events sorted by start.
//
// Overlap detection compares every pair, which is fine for a day's worth of
// events.
func Annotate(events []model.CalendarEvent) []Annotation {
	out := make([]Annotation, len(events))

	for i := range events {
		for j := 0; j < i; j++ {
			if intervalsOverlap(events[i].Start, events[i].End, events[j].Start, events[j].End) {
				out[i].Overlaps = true
				out[j].Overlaps = true
			}
		}
	}

	for i := 0; i+1 < len(events); i++ {
		gap := minutesBetween(events[i].End, events[i+1].Start)
		if gap >= 0 && gap < TightGapLimit {
			g := gap
			out[i].GapToNext = &g
		}
	}

	return out
}

// intervalsOverlap treats intervals as open, so sharing an endpoint is not
// an overlap.
func intervalsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// minutesBetween returns floor((b - a) / 1m).
func minutesBetween(a, b time.Time) int {
	d := b.Sub(a)
	m := int(d / time.Minute)
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return m
}
