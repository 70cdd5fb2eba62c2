package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/model"
)

// DefaultTitle is used for records that carry no summary.
const DefaultTitle = "(No title)"

// ErrMalformedRecord marks a record that lacks a usable start or end.
var ErrMalformedRecord = errors.New("malformed record")

// RawRecord is one event as a feed supplied it, before normalization.
// Start or End may be nil when the feed omitted them.
type RawRecord struct {
	Title       string
	Location    string
	Description string

	Start *RawPoint
	End   *RawPoint
}

// Feed is the parsed content of one calendar source.
type Feed struct {
	// Name is the display name the source declares for itself. May be empty.
	Name    string
	Records []RawRecord
}

// Source supplies one calendar feed. Fetch may block and may fail; a
// failure only removes that source's contribution.
type Source interface {
	// Label names the source for logs and as a display fallback.
	Label() string
	Fetch(ctx context.Context) (Feed, error)
}

// SourceResult is the outcome of processing one source.
type SourceResult struct {
	Label string
	// Events is the number of events the source contributed to the day.
	Events int
	// Skipped counts malformed records that were dropped.
	Skipped int
	Err     error
}

// OK reports whether the source was processed successfully.
func (r SourceResult) OK() bool {
	return r.Err == nil
}

// Result is the output of Aggregate.
type Result struct {
	// Events is sorted by start time. Ties keep source order, then record
	// order within the source.
	Events  []model.CalendarEvent
	Sources []SourceResult
}

// Failed returns the sources that could not be processed.
func (r Result) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Aggregate collects the events of every source that overlap date in loc.
// Sources are processed one at a time in order. A source whose fetch fails
// is recorded in Result.Sources and skipped; it never aborts the others.
func Aggregate(ctx context.Context, sources []Source, loc *time.Location, date Date) Result {
	window := WindowFor(date, loc)
	res := Result{
		Events:  make([]model.CalendarEvent, 0),
		Sources: make([]SourceResult, 0, len(sources)),
	}

	for _, src := range sources {
		events, sr := collect(ctx, src, loc, window)
		if sr.Err != nil {
			appLog.Error("calendar source skipped", sr.Err, "source", sr.Label)
		} else {
			appLog.Debug("calendar source processed", "source", sr.Label, "events", sr.Events, "skipped", sr.Skipped)
		}
		res.Sources = append(res.Sources, sr)
		res.Events = append(res.Events, events...)
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Start.Before(res.Events[j].Start)
	})
	return res
}

func collect(ctx context.Context, src Source, loc *time.Location, window DayWindow) ([]model.CalendarEvent, SourceResult) {
	sr := SourceResult{Label: src.Label()}

	feed, err := src.Fetch(ctx)
	if err != nil {
		sr.Err = fmt.Errorf("fetch %s: %w", sr.Label, err)
		return nil, sr
	}

	label := feed.Name
	if label == "" {
		label = sr.Label
	}

	var out []model.CalendarEvent
	for i, rec := range feed.Records {
		ev, keep, err := BuildEvent(rec, label, loc, window)
		if err != nil {
			sr.Skipped++
			appLog.Debug("record skipped", "source", sr.Label, "index", i, "err", err)
			continue
		}
		if keep {
			out = append(out, ev)
		}
	}
	sr.Events = len(out)
	return out, sr
}

// BuildEvent normalizes one record and reports whether it overlaps window.
// It returns ErrMalformedRecord when the record lacks a start or end.
func BuildEvent(rec RawRecord, label string, loc *time.Location, window DayWindow) (model.CalendarEvent, bool, error) {
	if rec.Start == nil || rec.End == nil {
		return model.CalendarEvent{}, false, ErrMalformedRecord
	}

	start := Normalize(*rec.Start, loc)
	end := Normalize(*rec.End, loc)

	allDay := IsAllDay(rec.Start.Kind, start, end)

	if !window.Overlaps(start, end) {
		return model.CalendarEvent{}, false, nil
	}

	title := rec.Title
	if title == "" {
		title = DefaultTitle
	}

	return model.CalendarEvent{
		Title:       title,
		Location:    rec.Location,
		Notes:       rec.Description,
		SourceLabel: label,
		AllDay:      allDay,
		Start:       start,
		End:         end,
	}, true, nil
}
