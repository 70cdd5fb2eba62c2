// Package agenda turns raw calendar feed records into the sorted list of
// events for a single civil day and computes the schedule conflict
// annotations shown in the digest.
//
// Everything in this package is synchronous and free of shared state. The
// only step that can block is Source.Fetch, which is supplied by the caller.
package agenda

import (
	"fmt"
	"time"
)

// Date is a civil calendar date with no time-of-day and no zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// AddDays returns the date n civil days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// In returns midnight at the start of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// PointKind says how a feed encoded a start or end value.
type PointKind int

const (
	// KindDate is a bare date with no time-of-day (VALUE=DATE).
	KindDate PointKind = iota
	// KindFloating is a datetime without zone information.
	KindFloating
	// KindZoned is a datetime carrying a zone or UTC offset.
	KindZoned
)

func (k PointKind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindFloating:
		return "floating"
	case KindZoned:
		return "zoned"
	default:
		return "unknown"
	}
}

// RawPoint is a start or end value exactly as a feed supplied it.
//
// For KindDate only the year/month/day of Value are meaningful. For
// KindFloating only the wall clock fields are meaningful; the location is
// ignored. For KindZoned Value is an absolute instant.
type RawPoint struct {
	Kind  PointKind
	Value time.Time
}

// DatePoint builds a bare-date point.
func DatePoint(year int, month time.Month, day int) RawPoint {
	return RawPoint{Kind: KindDate, Value: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FloatingPoint builds a zone-less datetime point from the wall clock of t.
func FloatingPoint(t time.Time) RawPoint {
	return RawPoint{Kind: KindFloating, Value: t}
}

// ZonedPoint builds a point for an instant with known zone.
func ZonedPoint(t time.Time) RawPoint {
	return RawPoint{Kind: KindZoned, Value: t}
}

// Normalize converts p into an instant expressed in loc.
//
//   - bare dates become local midnight of that civil date in loc
//   - floating datetimes are read as UTC, then converted
//   - zoned datetimes are converted directly
func Normalize(p RawPoint, loc *time.Location) time.Time {
	v := p.Value
	switch p.Kind {
	case KindDate:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, loc)
	case KindFloating:
		utc := time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC)
		return utc.In(loc)
	default:
		return v.In(loc)
	}
}
