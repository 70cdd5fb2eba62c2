package notion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jomei/notionapi"

	"dailyagenda/internal/agenda"
	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/model"
)

const (
	defaultDateProperty = "Date"
	defaultDBName       = "Notion DB"
	untitled            = "(Untitled)"
	notesProperty       = "Notes"
	maxNotesRunes       = 300
	pageSize            = 100
)

// DatabaseConfig describes how one database is queried and displayed.
type DatabaseConfig struct {
	Name         string   `yaml:"name"`
	DateProperty string   `yaml:"date_property"`
	Fields       []string `yaml:"fields"`
}

// QueryDueOn returns the items of every database whose date property falls
// on date in loc. Databases are visited in ID order. A database that fails
// is logged and skipped; the returned error joins those failures while the
// items of the others are still returned.
func (c *Client) QueryDueOn(ctx context.Context, dbs map[string]DatabaseConfig, date agenda.Date, loc *time.Location) ([]model.DueItem, error) {
	if c == nil || c.token == "" || len(dbs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(dbs))
	for id := range dbs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		out  []model.DueItem
		errs []error
	)
	for _, id := range ids {
		items, err := c.queryOne(ctx, id, dbs[id], date, loc)
		if err != nil {
			appLog.Error("notion database skipped", err, "database", id)
			errs = append(errs, fmt.Errorf("database %s: %w", id, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out = append(out, items...)
	}
	return out, errors.Join(errs...)
}

func (c *Client) queryOne(ctx context.Context, id string, cfg DatabaseConfig, date agenda.Date, loc *time.Location) ([]model.DueItem, error) {
	dateProp := cfg.DateProperty
	if dateProp == "" {
		dateProp = defaultDateProperty
	}

	propType := notionapi.PropertyConfigTypeDate
	name := cfg.Name
	if db, err := c.getDatabase(ctx, id); err != nil {
		appLog.Debug("notion database schema unavailable", "database", id, "err", err)
	} else {
		if p, ok := db.Properties[dateProp]; ok && p != nil {
			propType = p.GetType()
		}
		if name == "" {
			name = joinPlain(db.Title)
		}
	}
	if name == "" {
		name = defaultDBName
	}

	pages, err := c.queryDatabase(ctx, id, buildQuery(dateProp, propType, date, loc))
	if err != nil {
		return nil, err
	}

	items := make([]model.DueItem, 0, len(pages))
	for _, p := range pages {
		items = append(items, c.toDueItem(ctx, p, name, cfg.Fields))
	}
	appLog.Debug("notion database queried", "database", id, "items", len(items))
	return items, nil
}

// buildQuery filters date properties by equality with the civil date and
// created_time properties by the local day window.
func buildQuery(dateProp string, propType notionapi.PropertyConfigType, date agenda.Date, loc *time.Location) *notionapi.DatabaseQueryRequest {
	if propType == notionapi.PropertyConfigCreatedTime {
		w := agenda.WindowFor(date, loc)
		from, until := notionapi.Date(w.Start), notionapi.Date(w.End)
		return &notionapi.DatabaseQueryRequest{
			Filter: notionapi.AndCompoundFilter{
				notionapi.TimestampFilter{
					Timestamp:   notionapi.TimestampCreated,
					CreatedTime: &notionapi.DateFilterCondition{OnOrAfter: &from},
				},
				notionapi.TimestampFilter{
					Timestamp:   notionapi.TimestampCreated,
					CreatedTime: &notionapi.DateFilterCondition{Before: &until},
				},
			},
			Sorts:    []notionapi.SortObject{{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC}},
			PageSize: pageSize,
		}
	}

	// Date-only values compare as UTC midnight.
	day := notionapi.Date(time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC))
	return &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: dateProp,
			Date:     &notionapi.DateFilterCondition{Equals: &day},
		},
		Sorts:    []notionapi.SortObject{{Property: dateProp, Direction: notionapi.SortOrderASC}},
		PageSize: pageSize,
	}
}

func (c *Client) toDueItem(ctx context.Context, p notionapi.Page, dbName string, fields []string) model.DueItem {
	item := model.DueItem{
		Title:    untitled,
		URL:      p.URL,
		Database: dbName,
	}
	if t := titleOf(p.Properties); t != "" {
		item.Title = t
	}
	if notes, ok := p.Properties[notesProperty].(*notionapi.RichTextProperty); ok {
		item.Notes = truncateRunes(joinPlain(notes.RichText), maxNotesRunes)
	}
	for _, name := range fields {
		prop, ok := p.Properties[name]
		if !ok {
			continue
		}
		item.Fields = append(item.Fields, model.Field{Name: name, Value: propertyText(ctx, c, prop)})
	}
	return item
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
