package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyagenda/internal/agenda"
)

var dueDate = agenda.Date{Year: 2025, Month: time.August, Day: 13}

type fakeNotion struct {
	t        *testing.T
	queries  []map[string]any
	failDBs  map[string]bool
	dbSchema map[string]string
}

func (f *fakeNotion) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/databases/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		assert.Equal(f.t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(f.t, APIVersion, r.Header.Get("Notion-Version"))
		propType := f.dbSchema[id]
		if propType == "" {
			propType = "date"
		}
		writeJSON(w, map[string]any{
			"title":      []any{map[string]any{"plain_text": "Title of " + id}},
			"properties": map[string]any{"Due": map[string]any{"type": propType, propType: map[string]any{}}},
		})
	})
	mux.HandleFunc("POST /v1/databases/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if f.failDBs[id] {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"object": "error", "status": 404, "code": "object_not_found", "message": "Could not find database"})
			return
		}
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.queries = append(f.queries, body)

		if body["start_cursor"] == nil {
			writeJSON(w, map[string]any{
				"has_more":    true,
				"next_cursor": "c2",
				"results": []any{map[string]any{
					"id":  "p1",
					"url": "https://notion.so/p1",
					"properties": map[string]any{
						"Name":     map[string]any{"type": "title", "title": []any{map[string]any{"plain_text": "Essay draft"}}},
						"Notes":    map[string]any{"type": "rich_text", "rich_text": []any{map[string]any{"plain_text": strings.Repeat("x", 350)}}},
						"Priority": map[string]any{"type": "select", "select": map[string]any{"name": "High"}},
						"Course": map[string]any{"type": "relation", "relation": []any{
							map[string]any{"id": "rel1"}, map[string]any{"id": "rel2"},
							map[string]any{"id": "rel3"}, map[string]any{"id": "rel4"},
						}},
					},
				}},
			})
			return
		}
		writeJSON(w, map[string]any{
			"has_more": false,
			"results": []any{map[string]any{
				"id":  "p2",
				"url": "https://notion.so/p2",
				"properties": map[string]any{
					"Name": map[string]any{"type": "title", "title": []any{}},
				},
			}},
		})
	})
	mux.HandleFunc("GET /v1/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "rel3" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"id": id,
			"properties": map[string]any{
				"Name": map[string]any{"type": "title", "title": []any{map[string]any{"plain_text": "Page " + id}}},
			},
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFake(t *testing.T) (*fakeNotion, *Client) {
	t.Helper()
	f := &fakeNotion{t: t, failDBs: map[string]bool{}, dbSchema: map[string]string{}}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewClient("secret", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestQueryDueOnPaginatesAndRendersFields(t *testing.T) {
	f, c := newFake(t)
	dbs := map[string]DatabaseConfig{
		"db1": {DateProperty: "Due", Fields: []string{"Priority", "Course", "Missing"}},
	}

	items, err := c.QueryDueOn(context.Background(), dbs, dueDate, time.UTC)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "Essay draft", first.Title)
	assert.Equal(t, "https://notion.so/p1", first.URL)
	assert.Equal(t, "Title of db1", first.Database)
	assert.Len(t, []rune(first.Notes), 300)
	require.Len(t, first.Fields, 2)
	assert.Equal(t, "Priority", first.Fields[0].Name)
	assert.Equal(t, "High", first.Fields[0].Value)
	assert.Equal(t, "Course", first.Fields[1].Name)
	assert.Equal(t, "Page rel1, Page rel2 (+2 more)", first.Fields[1].Value)

	assert.Equal(t, untitled, items[1].Title)

	require.Len(t, f.queries, 2)
	filter := f.queries[0]["filter"].(map[string]any)
	assert.Equal(t, "Due", filter["property"])
	assert.Equal(t, map[string]any{"equals": "2025-08-13T00:00:00Z"}, filter["date"])
	assert.Equal(t, "c2", f.queries[1]["start_cursor"])
}

func TestQueryDueOnCreatedTimeRange(t *testing.T) {
	f, c := newFake(t)
	f.dbSchema["db1"] = "created_time"
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	_, err = c.QueryDueOn(context.Background(), map[string]DatabaseConfig{"db1": {Name: "Journal", DateProperty: "Due"}}, dueDate, ny)
	require.NoError(t, err)
	require.NotEmpty(t, f.queries)

	and := f.queries[0]["filter"].(map[string]any)["and"].([]any)
	require.Len(t, and, 2)
	assert.Equal(t, "created_time", and[0].(map[string]any)["timestamp"])
	lower := and[0].(map[string]any)["created_time"].(map[string]any)
	upper := and[1].(map[string]any)["created_time"].(map[string]any)
	assert.Equal(t, "2025-08-13T00:00:00-04:00", lower["on_or_after"])
	assert.Equal(t, "2025-08-14T00:00:00-04:00", upper["before"])
}

func TestQueryDueOnSkipsFailingDatabase(t *testing.T) {
	f, c := newFake(t)
	f.failDBs["bad"] = true

	items, err := c.QueryDueOn(context.Background(), map[string]DatabaseConfig{
		"bad":  {Name: "Broken"},
		"good": {Name: "Tasks", DateProperty: "Due"},
	}, dueDate, time.UTC)

	require.Error(t, err)
	var apiErr *notionapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, notionapi.ErrorCode("object_not_found"), apiErr.Code)

	require.Len(t, items, 2)
	assert.Equal(t, "Tasks", items[0].Database)
}

func TestQueryDueOnWithoutTokenOrDatabases(t *testing.T) {
	items, err := NewClient("").QueryDueOn(context.Background(), map[string]DatabaseConfig{"x": {}}, dueDate, time.UTC)
	assert.NoError(t, err)
	assert.Empty(t, items)

	items, err = NewClient("secret").QueryDueOn(context.Background(), nil, dueDate, time.UTC)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestPropertyText(t *testing.T) {
	ctx := context.Background()
	day := notionapi.Date(time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC))
	rt := func(parts ...string) []notionapi.RichText {
		out := make([]notionapi.RichText, 0, len(parts))
		for _, p := range parts {
			out = append(out, notionapi.RichText{PlainText: p})
		}
		return out
	}

	tests := []struct {
		name string
		prop notionapi.Property
		want string
	}{
		{"title", &notionapi.TitleProperty{Title: rt("a", "b")}, "ab"},
		{"rich text", &notionapi.RichTextProperty{RichText: rt("note")}, "note"},
		{"select", &notionapi.SelectProperty{Select: notionapi.Option{Name: "High"}}, "High"},
		{"empty select", &notionapi.SelectProperty{}, ""},
		{"status", &notionapi.StatusProperty{Status: notionapi.Status{Name: "Doing"}}, "Doing"},
		{"multi select", &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: "a"}, {Name: "b"}}}, "a, b"},
		{"people", &notionapi.PeopleProperty{People: []notionapi.User{{Name: "Ann"}, {ID: "u2"}}}, "Ann, u2"},
		{"url", &notionapi.URLProperty{URL: "https://x"}, "https://x"},
		{"empty email", &notionapi.EmailProperty{}, ""},
		{"phone", &notionapi.PhoneNumberProperty{PhoneNumber: "555"}, "555"},
		{"date", &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &day}}, "2025-08-13"},
		{"null date", &notionapi.DateProperty{}, ""},
		{"number", &notionapi.NumberProperty{Number: 3.5}, "3.5"},
		{"checkbox", &notionapi.CheckboxProperty{Checkbox: true}, "Yes"},
		{"unsupported", &notionapi.FormulaProperty{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, propertyText(ctx, nil, tt.prop))
		})
	}

	rel := &notionapi.RelationProperty{Relation: []notionapi.Relation{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, "2 linked item(s)", propertyText(ctx, nil, rel))
}
