// Package digest assembles one day's agenda and delivers it.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dailyagenda/internal/agenda"
	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/mail"
	"dailyagenda/internal/model"
	"dailyagenda/internal/notion"
	"dailyagenda/internal/render"
)

// ErrNoSender is returned by Run when no mail sender is configured.
var ErrNoSender = errors.New("digest: smtp is not configured")

// SourceFactory builds the calendar sources for one day.
type SourceFactory func(date agenda.Date, loc *time.Location) []agenda.Source

// TaskQuerier finds task-database items due on a day.
type TaskQuerier interface {
	QueryDueOn(ctx context.Context, dbs map[string]notion.DatabaseConfig, date agenda.Date, loc *time.Location) ([]model.DueItem, error)
}

// Report is the outcome of one digest run.
type Report struct {
	RunID       string
	Date        agenda.Date
	Calendar    agenda.Result
	DueToday    []model.DueItem
	DueTomorrow []model.DueItem
	Subject     string
	HTML        string
	Sent        bool
}

// Runner builds and sends digests. Tasks and Sender may be nil.
type Runner struct {
	Location  *time.Location
	Sources   SourceFactory
	Tasks     TaskQuerier
	Databases map[string]notion.DatabaseConfig
	Sender    mail.Sender

	now func() time.Time
}

// Today is the current civil date in the runner's location.
func (r *Runner) Today() agenda.Date {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	return agenda.DateOf(now().In(r.Location))
}

// Build gathers calendar events for date plus tasks due on date and the
// following day, and renders the digest without sending it.
func (r *Runner) Build(ctx context.Context, date agenda.Date) (*Report, error) {
	if r.Location == nil {
		return nil, errors.New("digest: location is not set")
	}
	rep := &Report{RunID: uuid.NewString(), Date: date}
	appLog.Info("digest build start", "run_id", rep.RunID, "date", date.String(), "tz", r.Location.String())

	var sources []agenda.Source
	if r.Sources != nil {
		sources = r.Sources(date, r.Location)
	}
	rep.Calendar = agenda.Aggregate(ctx, sources, r.Location, date)

	if r.Tasks != nil && len(r.Databases) > 0 {
		rep.DueToday = r.queryTasks(ctx, rep.RunID, date)
		rep.DueTomorrow = r.queryTasks(ctx, rep.RunID, date.AddDays(1))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	html, err := render.HTML(render.Input{
		Date:        date,
		Location:    r.Location,
		Events:      rep.Calendar.Events,
		DueToday:    rep.DueToday,
		DueTomorrow: rep.DueTomorrow,
		Failed:      rep.Calendar.Failed(),
	})
	if err != nil {
		return nil, err
	}
	rep.HTML = html
	rep.Subject = render.Subject(date)

	appLog.Info("digest build done",
		"run_id", rep.RunID,
		"events", len(rep.Calendar.Events),
		"failed_sources", len(rep.Calendar.Failed()),
		"due_today", len(rep.DueToday),
		"due_tomorrow", len(rep.DueTomorrow),
	)
	return rep, nil
}

// queryTasks never fails the run; task errors are logged.
func (r *Runner) queryTasks(ctx context.Context, runID string, date agenda.Date) []model.DueItem {
	items, err := r.Tasks.QueryDueOn(ctx, r.Databases, date, r.Location)
	if err != nil {
		appLog.Error("task query incomplete", err, "run_id", runID, "date", date.String())
	}
	return items
}

// Run builds the digest for date and emails it.
func (r *Runner) Run(ctx context.Context, date agenda.Date) (*Report, error) {
	if r.Sender == nil {
		return nil, ErrNoSender
	}
	rep, err := r.Build(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := r.Sender.Send(ctx, rep.Subject, rep.HTML); err != nil {
		return rep, fmt.Errorf("send digest: %w", err)
	}
	rep.Sent = true
	appLog.Info("digest sent", "run_id", rep.RunID, "date", date.String())
	return rep, nil
}
