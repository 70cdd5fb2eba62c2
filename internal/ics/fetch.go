package ics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"dailyagenda/internal/cache"
	appLog "dailyagenda/internal/log"
)

// DefaultTimeout bounds a single feed request.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a feed response is read.
const maxBodyBytes = 32 << 20

// FetchResult contains the outcome of fetching a single ICS URL.
type FetchResult struct {
	URL       string
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if the body came from the cache
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches ICS feeds with HTTP conditional requests
// (ETag / Last-Modified). The HTTP client and the cache are owned by the
// caller, which is responsible for closing the cache.
type Fetcher struct {
	client *http.Client
	store  cache.Cache
	keys   *cache.KeyGenerator
}

// NewHTTPClient returns the client used for feed requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// NewFetcher creates a Fetcher. store may be nil, in which case every
// request is unconditional and failures are not masked by stale data.
func NewFetcher(client *http.Client, store cache.Cache) *Fetcher {
	if client == nil {
		client = NewHTTPClient()
	}
	return &Fetcher{
		client: client,
		store:  store,
		keys:   cache.NewKeyGenerator(""),
	}
}

// Fetch downloads url. On a network error or a non-OK status it falls back
// to the last cached body when one exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	meta, _ := f.loadCacheMeta(ctx, url)
	cachedBody, _ := f.loadCacheBody(ctx, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	// Conditional headers only make sense when we can serve the cached body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "url", RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 && ctx.Err() == nil {
			appLog.Error("ics fetch network error, using cached body", err, "url", RedactURL(url))
			return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, redactError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return FetchResult{}, readErr
		}

		// A 200 login or error page must not replace the last good feed.
		if verr := ValidateCalendar(body); verr != nil {
			if len(cachedBody) > 0 {
				appLog.Error("ics fetch returned non-calendar payload, using cached body", verr, "url", RedactURL(url))
				return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil
			}
			return FetchResult{}, verr
		}

		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(ctx, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "url", RedactURL(url))
		}

		appLog.Info("ics fetch success", "url", RedactURL(url), "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{URL: url, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", RedactURL(url))
		return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil

	default:
		statusErr := fmt.Errorf("unexpected status %s", resp.Status)
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", statusErr, "url", RedactURL(url), "status", resp.StatusCode)
			return FetchResult{URL: url, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, statusErr
	}
}

func (f *Fetcher) loadCacheMeta(ctx context.Context, url string) (cacheEntry, error) {
	var meta cacheEntry
	if f.store == nil {
		return meta, cache.ErrNotFound
	}
	data, err := f.store.Get(ctx, f.keys.FeedMetaKey(url))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(ctx context.Context, url string) ([]byte, error) {
	if f.store == nil {
		return nil, cache.ErrNotFound
	}
	return f.store.Get(ctx, f.keys.FeedBodyKey(url))
}

func (f *Fetcher) saveCache(ctx context.Context, meta cacheEntry, body []byte) error {
	if f.store == nil {
		return nil
	}

	// Write body first so meta never points at missing body.
	if err := f.store.Set(ctx, f.keys.FeedBodyKey(meta.URL), body, 0); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return f.store.Set(ctx, f.keys.FeedMetaKey(meta.URL), data, 0)
}

// redactError strips the feed URL, which may carry an access token, from
// transport errors.
func redactError(err error) error {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		uerr.URL = RedactURL(uerr.URL)
	}
	return err
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}

	return u[:j] + redactedSuffix
}
