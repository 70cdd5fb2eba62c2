package notion

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// maxRelationLookups bounds the page fetches made for one relation value.
const maxRelationLookups = 3

func optionNames(opts []notionapi.Option) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		parts = append(parts, o.Name)
	}
	return strings.Join(parts, ", ")
}

func userNames(users []notionapi.User) string {
	parts := make([]string, 0, len(users))
	for _, u := range users {
		name := u.Name
		if name == "" {
			name = string(u.ID)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// dateText renders date-only values as YYYY-MM-DD and datetimes as RFC 3339.
func dateText(d *notionapi.Date) string {
	if d == nil {
		return ""
	}
	t := time.Time(*d)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Location() == time.UTC {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// propertyText renders a property value as plain text. Relations resolve
// the titles of the first few linked pages through c when c is non-nil.
func propertyText(ctx context.Context, c *Client, p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return joinPlain(v.Title)
	case *notionapi.RichTextProperty:
		return joinPlain(v.RichText)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case *notionapi.MultiSelectProperty:
		return optionNames(v.MultiSelect)
	case *notionapi.PeopleProperty:
		return userNames(v.People)
	case *notionapi.RelationProperty:
		return relationText(ctx, c, v.Relation)
	case *notionapi.URLProperty:
		return v.URL
	case *notionapi.EmailProperty:
		return v.Email
	case *notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case *notionapi.DateProperty:
		if v.Date == nil {
			return ""
		}
		start, end := dateText(v.Date.Start), dateText(v.Date.End)
		if end != "" {
			return start + " → " + end
		}
		return start
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case *notionapi.CheckboxProperty:
		if v.Checkbox {
			return "Yes"
		}
		return "No"
	}
	return ""
}

func relationText(ctx context.Context, c *Client, rels []notionapi.Relation) string {
	if len(rels) == 0 {
		return ""
	}

	var titles []string
	if c != nil {
		for i, rel := range rels {
			if i >= maxRelationLookups {
				break
			}
			if rel.ID == "" {
				continue
			}
			// Lookup failures fall through to the count below.
			title, err := c.pageTitle(ctx, string(rel.ID))
			if err == nil && title != "" {
				titles = append(titles, title)
			}
		}
	}

	if len(titles) == 0 {
		return fmt.Sprintf("%d linked item(s)", len(rels))
	}
	out := strings.Join(titles, ", ")
	if extra := len(rels) - len(titles); extra > 0 {
		out += fmt.Sprintf(" (+%d more)", extra)
	}
	return out
}
