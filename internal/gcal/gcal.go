// Package gcal reads events from the Google Calendar API as agenda records.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"dailyagenda/internal/agenda"
	appLog "dailyagenda/internal/log"
)

const dateLayout = "2006-01-02"

// EventsProvider lists the expanded events of one calendar between two
// RFC 3339 instants. It also returns the calendar's display name.
type EventsProvider interface {
	ListEvents(ctx context.Context, calendarID, timeMin, timeMax string) (string, []*calendar.Event, error)
}

// ServiceProvider is the EventsProvider backed by calendar.Service.
type ServiceProvider struct {
	service *calendar.Service
}

// NewServiceProvider authenticates with a service account credentials JSON.
func NewServiceProvider(ctx context.Context, credentialsJSON []byte) (*ServiceProvider, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.New("google credentials are empty")
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}
	return NewServiceProviderWithOptions(ctx, option.WithCredentials(creds))
}

// NewServiceProviderWithOptions builds the provider from raw client options.
func NewServiceProviderWithOptions(ctx context.Context, opts ...option.ClientOption) (*ServiceProvider, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &ServiceProvider{service: service}, nil
}

// ListEvents walks every result page.
func (p *ServiceProvider) ListEvents(ctx context.Context, calendarID, timeMin, timeMax string) (string, []*calendar.Event, error) {
	var (
		name  string
		items []*calendar.Event
	)
	call := p.service.Events.List(calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	err := call.Pages(ctx, func(page *calendar.Events) error {
		if name == "" {
			name = page.Summary
		}
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return name, items, nil
}

// Source is an agenda.Source for one Google calendar. Only events that
// intersect Window are requested.
type Source struct {
	ID         string
	Name       string
	CalendarID string
	Window     agenda.DayWindow

	provider EventsProvider
}

var _ agenda.Source = (*Source)(nil)

// NewSource creates a Google calendar source limited to window.
func NewSource(id, name, calendarID string, window agenda.DayWindow, provider EventsProvider) *Source {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Source{ID: id, Name: name, CalendarID: calendarID, Window: window, provider: provider}
}

func (s *Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.CalendarID
}

// Fetch lists the window's events and converts them to raw records.
func (s *Source) Fetch(ctx context.Context) (agenda.Feed, error) {
	if s.provider == nil {
		return agenda.Feed{}, errors.New("google calendar provider is not configured")
	}

	name, items, err := s.provider.ListEvents(ctx, s.CalendarID,
		s.Window.Start.Format(time.RFC3339), s.Window.End.Format(time.RFC3339))
	if err != nil {
		return agenda.Feed{}, fmt.Errorf("list events: %w", err)
	}

	feed := agenda.Feed{Name: s.Name, Records: make([]agenda.RawRecord, 0, len(items))}
	if feed.Name == "" {
		feed.Name = name
	}
	for _, ev := range items {
		if ev == nil || ev.Status == "cancelled" {
			continue
		}
		feed.Records = append(feed.Records, ConvertEvent(ev))
	}

	appLog.Info("google calendar fetched", "id", s.ID, "records", len(feed.Records))
	return feed, nil
}

// ConvertEvent maps an API event to a raw record. Start or End stays nil
// when the API value is missing or unparsable.
func ConvertEvent(ev *calendar.Event) agenda.RawRecord {
	rec := agenda.RawRecord{
		Title:       ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
	}
	if p, ok := convertPoint(ev.Start); ok {
		rec.Start = &p
	}
	if p, ok := convertPoint(ev.End); ok {
		rec.End = &p
	}
	return rec
}

func convertPoint(dt *calendar.EventDateTime) (agenda.RawPoint, bool) {
	if dt == nil {
		return agenda.RawPoint{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return agenda.RawPoint{}, false
		}
		return agenda.ZonedPoint(t), true
	}
	if dt.Date != "" {
		t, err := time.Parse(dateLayout, dt.Date)
		if err != nil {
			return agenda.RawPoint{}, false
		}
		return agenda.DatePoint(t.Date()), true
	}
	return agenda.RawPoint{}, false
}
