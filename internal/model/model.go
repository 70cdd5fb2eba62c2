package model

import "time"

// CalendarEvent is a single event that falls on the digest day, already
// normalized into the display timezone. Values are created once during
// aggregation and not modified afterwards.
type CalendarEvent struct {
	Title    string
	Location string
	Notes    string

	// SourceLabel is the human name of the calendar the event came from.
	SourceLabel string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DueItem is a task-database record due on a given day.
type DueItem struct {
	Title string
	URL   string
	Notes string

	// Database is the display name of the database the item came from.
	Database string

	// Fields holds the extra properties configured for the database, in
	// configured order.
	Fields []Field
}

// Field is one named, already stringified task property.
type Field struct {
	Name  string
	Value string
}
