package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"dailyagenda/internal/agenda"
	appLog "dailyagenda/internal/log"
)

// ErrNotCalendar is returned when a payload is not an iCalendar document,
// typically an HTML login or error page served with status 200.
var ErrNotCalendar = errors.New("payload is not an iCalendar document")

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// ValidateCalendar does a cheap sniff of body before full parsing.
func ValidateCalendar(body []byte) error {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrNotCalendar)
	}
	head := trimmed
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html")) {
		return fmt.Errorf("%w: received HTML", ErrNotCalendar)
	}
	if !bytes.HasPrefix(bytes.ToUpper(head), []byte("BEGIN:VCALENDAR")) {
		return fmt.Errorf("%w: missing BEGIN:VCALENDAR", ErrNotCalendar)
	}
	return nil
}

// ParseFeed parses one ICS payload into a feed of raw records.
//
// Every VEVENT yields a record. DTSTART/DTEND that cannot be read are left
// nil so the aggregator counts the record as malformed. When DTEND is
// absent, DTSTART + DURATION is used, and without either the event lasts
// one day (date start) or zero time (date-time start).
func ParseFeed(body []byte) (agenda.Feed, error) {
	if err := ValidateCalendar(body); err != nil {
		return agenda.Feed{}, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return agenda.Feed{}, fmt.Errorf("parse calendar: %w", err)
	}

	feed := agenda.Feed{Name: calendarName(cal)}
	for i, ve := range cal.Events() {
		rec, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Debug("ics vevent incomplete", "index", i, "err", perr)
		}
		feed.Records = append(feed.Records, rec)
	}
	return feed, nil
}

func calendarName(cal *ical.Calendar) string {
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, string(ical.PropertyXWRCalName)) {
			return unescapeText(strings.TrimSpace(p.Value))
		}
	}
	return ""
}

// parseVEvent always returns a record; the error describes why Start or
// End could not be filled in.
func parseVEvent(ve *ical.VEvent) (agenda.RawRecord, error) {
	rec := agenda.RawRecord{
		Title:       textProp(ve, ical.ComponentPropertySummary),
		Location:    textProp(ve, ical.ComponentPropertyLocation),
		Description: textProp(ve, ical.ComponentPropertyDescription),
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return rec, errors.New("missing DTSTART")
	}
	start, err := parsePoint(startProp.Value, startProp.ICalParameters)
	if err != nil {
		return rec, fmt.Errorf("DTSTART: %w", err)
	}
	rec.Start = &start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, err := parsePoint(endProp.Value, endProp.ICalParameters)
		if err != nil {
			return rec, fmt.Errorf("DTEND: %w", err)
		}
		rec.End = &end
		return rec, nil
	}

	if durProp := ve.GetProperty(ical.ComponentProperty(ical.PropertyDuration)); durProp != nil {
		d, err := parseDuration(durProp.Value)
		if err != nil {
			return rec, fmt.Errorf("DURATION: %w", err)
		}
		end := d.addTo(start)
		rec.End = &end
		return rec, nil
	}

	// RFC 5545 3.6.1: a date DTSTART alone lasts one day, a date-time
	// DTSTART alone is instantaneous.
	end := start
	if start.Kind == agenda.KindDate {
		end.Value = start.Value.AddDate(0, 0, 1)
	}
	rec.End = &end
	return rec, nil
}

func textProp(ve *ical.VEvent, name ical.ComponentProperty) string {
	p := ve.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(unescapeText(p.Value))
}

func param(params map[string][]string, key string) string {
	for k, vs := range params {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// parsePoint reads a DTSTART/DTEND value together with its parameters.
func parsePoint(value string, params map[string][]string) (agenda.RawPoint, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return agenda.RawPoint{}, errors.New("empty value")
	}

	if strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return agenda.RawPoint{}, err
		}
		return agenda.DatePoint(t.Date()), nil
	}

	if strings.HasSuffix(v, "Z") || strings.HasSuffix(v, "z") {
		t, err := time.Parse(layoutUTC, strings.ToUpper(v))
		if err != nil {
			return agenda.RawPoint{}, err
		}
		return agenda.ZonedPoint(t), nil
	}

	if tzid := param(params, "TZID"); tzid != "" {
		loc, err := resolveTZID(tzid)
		if err == nil {
			t, err := time.ParseInLocation(layoutDateTime, v, loc)
			if err != nil {
				return agenda.RawPoint{}, err
			}
			return agenda.ZonedPoint(t), nil
		}
		appLog.Debug("unknown TZID, treating as floating", "tzid", tzid)
	}

	t, err := time.Parse(layoutDateTime, v)
	if err != nil {
		return agenda.RawPoint{}, err
	}
	return agenda.FloatingPoint(t), nil
}

var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\,`, `,`,
	`\;`, `;`,
	`\n`, "\n",
	`\N`, "\n",
)

// unescapeText reverses RFC 5545 TEXT escaping.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return textUnescaper.Replace(s)
}

// ShortNameFromURL derives a display name from the last path segment of a
// feed URL, e.g. ".../work.ics?token=x" -> "work".
func ShortNameFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	if len(u) > 4 && strings.EqualFold(u[len(u)-4:], ".ics") {
		u = u[:len(u)-4]
	}
	if u == "" || strings.Contains(u, ":") {
		return "Calendar"
	}
	return u
}
