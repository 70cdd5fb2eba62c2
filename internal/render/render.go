// Package render turns an assembled agenda into the HTML digest body.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/model"
)

//go:embed templates/digest.html.tmpl
var templateFS embed.FS

const (
	eventNoteWords = 6
	taskNoteWords  = 8
	timeLayout     = "3:04 PM"
)

var digestTmpl = template.Must(template.New("digest.html.tmpl").Funcs(template.FuncMap{
	"join": strings.Join,
	"pill": func(text, side string) pillView { return pillView{Text: text, Side: side} },
}).ParseFS(templateFS, "templates/digest.html.tmpl"))

// Input is everything a digest shows.
type Input struct {
	Date        agenda.Date
	Location    *time.Location
	Events      []model.CalendarEvent
	DueToday    []model.DueItem
	DueTomorrow []model.DueItem
	// Failed lists calendar sources that could not be loaded.
	Failed []agenda.SourceResult
}

type pillView struct {
	Text string
	Side string
}

type eventView struct {
	Title     string
	Calendar  string
	Location  string
	Notes     string
	TimeRange string
	Overlap   bool
	GapBadge  string
}

type dueView struct {
	Title    string
	URL      string
	Database string
	Meta     string
	Notes    string
}

type page struct {
	DayLabel    string
	AllDay      []eventView
	Timed       []eventView
	DueToday    []dueView
	DueTomorrow []dueView
	Skipped     []string
	GapLimit    int
}

// HTML renders the digest. Events may be in any order with all-day and
// timed events mixed; they are split and annotated here.
func HTML(in Input) (string, error) {
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}

	allDay, timed := agenda.SplitAllDay(in.Events)
	notes := agenda.Annotate(timed)

	p := page{
		DayLabel:    DayLabel(in.Date),
		DueToday:    dueViews(in.DueToday),
		DueTomorrow: dueViews(in.DueTomorrow),
		GapLimit:    agenda.TightGapLimit,
	}
	for _, e := range allDay {
		p.AllDay = append(p.AllDay, eventView{Title: e.Title, Calendar: e.SourceLabel, Location: e.Location})
	}
	for i, e := range timed {
		v := eventView{
			Title:     e.Title,
			Calendar:  e.SourceLabel,
			Location:  e.Location,
			Notes:     TruncateWords(e.Notes, eventNoteWords),
			TimeRange: TimeRange(e.Start.In(loc), e.End.In(loc)),
			Overlap:   notes[i].Overlaps,
			GapBadge:  GapBadge(notes[i].GapToNext),
		}
		p.Timed = append(p.Timed, v)
	}
	for _, f := range in.Failed {
		p.Skipped = append(p.Skipped, f.Label)
	}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// Subject is the email subject for date, e.g. "Agenda for Mon, Jan 2".
func Subject(date agenda.Date) string {
	return "Agenda for " + date.In(time.UTC).Format("Mon, Jan 2")
}

// DayLabel formats date as "Monday, January 2".
func DayLabel(date agenda.Date) string {
	return date.In(time.UTC).Format("Monday, January 2")
}

// TimeRange formats "9:00 AM-10:30 AM".
func TimeRange(start, end time.Time) string {
	return start.Format(timeLayout) + "-" + end.Format(timeLayout)
}

// GapBadge describes a tight gap, or returns "" when gap is nil.
func GapBadge(gap *int) string {
	if gap == nil {
		return ""
	}
	if *gap == 0 {
		return "back-to-back"
	}
	return fmt.Sprintf("only %d min gap", *gap)
}

// TruncateWords keeps the first n whitespace-separated words of s and
// appends "..." when anything was cut.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

func dueViews(items []model.DueItem) []dueView {
	out := make([]dueView, 0, len(items))
	for _, it := range items {
		url := it.URL
		if url == "" {
			url = "#"
		}
		var meta []string
		for _, f := range it.Fields {
			if f.Value != "" {
				meta = append(meta, f.Name+": "+f.Value)
			}
		}
		title := it.Title
		if title == "" {
			title = "Untitled"
		}
		out = append(out, dueView{
			Title:    title,
			URL:      url,
			Database: strings.ToLower(it.Database),
			Meta:     strings.Join(meta, " · "),
			Notes:    TruncateWords(it.Notes, taskNoteWords),
		})
	}
	return out
}
