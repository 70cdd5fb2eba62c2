package digest

import (
	"context"
	"fmt"
	"time"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/cache"
	"dailyagenda/internal/config"
	"dailyagenda/internal/gcal"
	"dailyagenda/internal/ics"
	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/mail"
	"dailyagenda/internal/notion"
)

// NewFromConfig wires a Runner from configuration. store may be nil. A
// runner without usable SMTP settings can still Build previews.
func NewFromConfig(ctx context.Context, cfg *config.Config, store cache.Cache) (*Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var provider gcal.EventsProvider
	for _, cal := range cfg.Calendars {
		if cal.Kind != config.KindGoogle {
			continue
		}
		p, err := gcal.NewServiceProvider(ctx, []byte(cfg.GoogleCredentials))
		if err != nil {
			return nil, fmt.Errorf("google calendar: %w", err)
		}
		provider = p
		break
	}

	r := &Runner{
		Location:  loc,
		Sources:   SourcesFromConfig(cfg.Calendars, ics.NewFetcher(ics.NewHTTPClient(), store), provider),
		Databases: cfg.Notion.Databases,
	}
	if cfg.Notion.Token != "" {
		r.Tasks = notion.NewClient(cfg.Notion.Token)
	}
	if sender, err := mail.NewSMTPSender(cfg.SMTP); err != nil {
		appLog.Debug("smtp sender disabled", "reason", err.Error())
	} else {
		r.Sender = sender
	}
	return r, nil
}

// SourcesFromConfig maps calendar settings to sources in configured order.
func SourcesFromConfig(cals []config.CalendarConfig, fetcher *ics.Fetcher, provider gcal.EventsProvider) SourceFactory {
	return func(date agenda.Date, loc *time.Location) []agenda.Source {
		window := agenda.WindowFor(date, loc)
		out := make([]agenda.Source, 0, len(cals))
		for _, cal := range cals {
			switch cal.Kind {
			case config.KindGoogle:
				out = append(out, gcal.NewSource(cal.ID, cal.Name, cal.CalendarID, window, provider))
			default:
				out = append(out, ics.NewSource(cal.ID, cal.Name, cal.URL, fetcher))
			}
		}
		return out
	}
}
