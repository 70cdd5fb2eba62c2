package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/cache"
)

func memCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.New(&cache.Config{Enabled: true, InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var sampleFeed = icsDoc(append([]string{"X-WR-CALNAME:Team"},
	vevent("UID:1", "SUMMARY:Sync", "DTSTART:20250813T140000Z", "DTEND:20250813T150000Z")...)...)

func TestFetcherConditionalGet(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), memCache(t))
	ctx := context.Background()

	res, err := f.Fetch(ctx, srv.URL+"/team.ics")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, sampleFeed, res.Body)

	res, err = f.Fetch(ctx, srv.URL+"/team.ics")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleFeed, res.Body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcherStaleFallback(t *testing.T) {
	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), memCache(t))
	ctx := context.Background()

	_, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleFeed, res.Body)
}

func TestFetcherKeepsLastGoodFeedOverHTML(t *testing.T) {
	var step atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch step.Add(1) {
		case 1:
			_, _ = w.Write(sampleFeed)
		case 2:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>login</html>"))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), memCache(t))
	ctx := context.Background()

	res, err := f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res, err = f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleFeed, res.Body)

	res, err = f.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, sampleFeed, res.Body)
}

func TestFetcherHTMLWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.Client(), nil).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotCalendar)
}

func TestFetchErrorHidesFeedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	feedURL := srv.URL + "/private/work.ics?token=SECRET123"
	srv.Close()

	src := NewSource("w", "", feedURL, NewFetcher(nil, nil))
	res := agenda.Aggregate(context.Background(), []agenda.Source{src}, time.UTC, agenda.Date{Year: 2025, Month: time.August, Day: 13})

	require.Len(t, res.Sources, 1)
	require.Error(t, res.Sources[0].Err)
	assert.NotContains(t, res.Sources[0].Err.Error(), "SECRET123")
	assert.NotContains(t, res.Sources[0].Err.Error(), "/private/")
	assert.Contains(t, res.Sources[0].Err.Error(), "(redacted)")
}

func TestFetcherErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = f.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestFeedSourceNamePrecedence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(sampleFeed)
	}))
	defer srv.Close()
	f := NewFetcher(srv.Client(), nil)
	ctx := context.Background()

	configured := NewSource("a", "Mine", srv.URL+"/team.ics", f)
	feed, err := configured.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mine", feed.Name)
	assert.Equal(t, "Mine", configured.Label())
	require.Len(t, feed.Records, 1)

	declared := NewSource("b", "", srv.URL+"/team.ics", f)
	feed, err = declared.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Team", feed.Name)
	assert.Equal(t, "team", declared.Label())
}

func TestFeedSourceHTMLPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!DOCTYPE html><html>login</html>"))
	}))
	defer srv.Close()

	src := NewSource("x", "", srv.URL+"/private.ics", NewFetcher(srv.Client(), nil))
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNotCalendar)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com/path/private.ics?token=abcd"))
	assert.Equal(t, "ics://...(redacted)", RedactURL("not a url"))
}
