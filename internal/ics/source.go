// Package ics fetches and parses iCalendar feeds into agenda records.
package ics

import (
	"context"
	"fmt"

	"dailyagenda/internal/agenda"
	appLog "dailyagenda/internal/log"
)

// FeedSource is an agenda.Source backed by an ICS URL.
type FeedSource struct {
	ID   string
	Name string // configured display name, wins over X-WR-CALNAME
	URL  string

	fetcher *Fetcher
}

var _ agenda.Source = (*FeedSource)(nil)

// NewSource creates a feed source. A nil fetcher gets a default one
// without cache.
func NewSource(id, name, url string, fetcher *Fetcher) *FeedSource {
	if fetcher == nil {
		fetcher = NewFetcher(nil, nil)
	}
	return &FeedSource{ID: id, Name: name, URL: url, fetcher: fetcher}
}

// Label returns the configured name or a name derived from the URL.
func (s *FeedSource) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return ShortNameFromURL(s.URL)
}

// Fetch downloads and parses the feed. The returned Feed.Name follows
// configured name, then X-WR-CALNAME, then the URL-derived name.
func (s *FeedSource) Fetch(ctx context.Context) (agenda.Feed, error) {
	res, err := s.fetcher.Fetch(ctx, s.URL)
	if err != nil {
		return agenda.Feed{}, err
	}

	feed, err := ParseFeed(res.Body)
	if err != nil {
		return agenda.Feed{}, fmt.Errorf("%s: %w", RedactURL(s.URL), err)
	}

	switch {
	case s.Name != "":
		feed.Name = s.Name
	case feed.Name == "":
		feed.Name = ShortNameFromURL(s.URL)
	}

	appLog.Info("ics parse completed", "id", s.ID, "url", RedactURL(s.URL), "records", len(feed.Records), "from_cache", res.FromCache)
	return feed, nil
}
