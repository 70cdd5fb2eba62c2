package agenda

import "time"

// AllDayMinDuration is the shortest span that a midnight-starting timed
// event needs to be treated as all-day. The bound is inclusive.
const AllDayMinDuration = 23*time.Hour + 30*time.Minute

// AllDayRule records which rule, if any, classified an event as all-day.
type AllDayRule int

const (
	// RuleTimed means the event is a regular timed event.
	RuleTimed AllDayRule = iota
	// RuleExplicitDate means the feed encoded the start as a bare date.
	RuleExplicitDate
	// RuleInferredFromDuration means the event starts at local midnight
	// and lasts at least AllDayMinDuration.
	RuleInferredFromDuration
)

func (r AllDayRule) String() string {
	switch r {
	case RuleExplicitDate:
		return "explicit-date"
	case RuleInferredFromDuration:
		return "inferred-from-duration"
	default:
		return "timed"
	}
}

// AllDay reports whether r classifies the event as all-day.
func (r AllDayRule) AllDay() bool {
	return r != RuleTimed
}

// ClassifyAllDay decides whether an event is all-day. startKind is how the
// feed encoded the start; start and end are the normalized local instants.
// A bare-date start wins regardless of duration.
func ClassifyAllDay(startKind PointKind, start, end time.Time) AllDayRule {
	if startKind == KindDate {
		return RuleExplicitDate
	}
	if start.Hour() == 0 && start.Minute() == 0 && end.Sub(start) >= AllDayMinDuration {
		return RuleInferredFromDuration
	}
	return RuleTimed
}

// IsAllDay is ClassifyAllDay reduced to a boolean.
func IsAllDay(startKind PointKind, start, end time.Time) bool {
	return ClassifyAllDay(startKind, start, end).AllDay()
}
