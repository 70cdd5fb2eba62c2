// Package notion queries Notion databases for items due on a given day.
package notion

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// APIVersion is the Notion-Version header sent with every request.
const APIVersion = "2022-06-28"

// Client wraps the Notion API client with the queries the digest needs.
type Client struct {
	token string
	api   *notionapi.Client
}

type options struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*options)

// WithBaseURL sends requests to another host, e.g. a test server. The
// API path (/v1/...) is kept.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if parsed, err := url.Parse(strings.TrimRight(u, "/")); err == nil {
			o.baseURL = parsed
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = hc }
}

// NewClient creates a client authenticated with an integration token.
func NewClient(token string, opts ...Option) *Client {
	o := options{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.http
	if o.baseURL != nil {
		next := hc.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		rewritten := *hc
		rewritten.Transport = hostRewriter{base: o.baseURL, next: next}
		hc = &rewritten
	}

	return &Client{
		token: token,
		api: notionapi.NewClient(notionapi.Token(token),
			notionapi.WithHTTPClient(hc),
			notionapi.WithVersion(APIVersion),
		),
	}
}

// hostRewriter points every request at base while keeping its path.
type hostRewriter struct {
	base *url.URL
	next http.RoundTripper
}

func (h hostRewriter) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = h.base.Scheme
	r.URL.Host = h.base.Host
	r.Host = h.base.Host
	return h.next.RoundTrip(r)
}

func joinPlain(spans []notionapi.RichText) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.PlainText)
	}
	return b.String()
}

func (c *Client) getDatabase(ctx context.Context, id string) (*notionapi.Database, error) {
	return c.api.Database.Get(ctx, notionapi.DatabaseID(id))
}

// queryDatabase follows next_cursor until every page of results is read.
func (c *Client) queryDatabase(ctx context.Context, id string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var out []notionapi.Page
	for {
		resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(id), req)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return out, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func (c *Client) pageTitle(ctx context.Context, id string) (string, error) {
	p, err := c.api.Page.Get(ctx, notionapi.PageID(id))
	if err != nil {
		return "", err
	}
	return titleOf(p.Properties), nil
}

func titleOf(props notionapi.Properties) string {
	for _, prop := range props {
		if t, ok := prop.(*notionapi.TitleProperty); ok {
			return joinPlain(t.Title)
		}
	}
	return ""
}
