package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"sync"
	"time"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/config"
	"dailyagenda/internal/digest"
	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/model"
)

// reportCacheTTL bounds how long a built digest is reused across requests.
const reportCacheTTL = 30 * time.Second

// maxCachedReports caps the number of dates kept in the report cache.
const maxCachedReports = 8

// Builder produces digests; *digest.Runner implements it.
type Builder interface {
	Build(ctx context.Context, date agenda.Date) (*digest.Report, error)
	Today() agenda.Date
}

// Server exposes the digest preview over HTTP.
type Server struct {
	cfg     *config.Config
	builder Builder
	mux     *http.ServeMux

	// PreviewPNG is the file served at /preview.png, if set.
	PreviewPNG string

	// In-memory cache of built reports keyed by date, to avoid refetching
	// every feed on each request.
	reportsMu sync.Mutex
	reports   map[agenda.Date]*cachedReport
	now       func() time.Time
}

type cachedReport struct {
	report    *digest.Report
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, builder Builder) *Server {
	s := &Server{
		cfg:     cfg,
		builder: builder,
		mux:     http.NewServeMux(),
		reports: make(map[agenda.Date]*cachedReport),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Agenda", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /preview", s.handlePreview)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /preview.png", s.handlePreviewPNG)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/preview", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview renders the digest HTML exactly as it would be emailed.
//
// GET /preview?date=2025-08-13
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rep, status, err := s.report(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + html.EscapeString(rep.Subject) + "</title></head><body style=\"margin:0\">"))
	_, _ = w.Write([]byte(rep.HTML))
	_, _ = w.Write([]byte("</body></html>"))
}

// handlePreviewPNG serves the last captured screenshot from disk.
func (s *Server) handlePreviewPNG(w http.ResponseWriter, r *http.Request) {
	if s.PreviewPNG == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.PreviewPNG)
}

// report returns a cached or freshly built digest for the requested date.
func (s *Server) report(r *http.Request) (*digest.Report, int, error) {
	date := s.builder.Today()
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := agenda.ParseDate(q)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		date = d
	}

	now := s.now()
	s.reportsMu.Lock()
	c := s.reports[date]
	s.reportsMu.Unlock()
	if c != nil && now.Sub(c.updatedAt) < reportCacheTTL {
		return c.report, http.StatusOK, nil
	}

	rep, err := s.builder.Build(r.Context(), date)
	if err != nil {
		appLog.Error("preview build failed", err, "date", date.String())
		return nil, http.StatusInternalServerError, errors.New("failed to build agenda")
	}

	s.storeReport(date, rep, now)
	return rep, http.StatusOK, nil
}

// storeReport caches rep, dropping expired entries and, past
// maxCachedReports, the oldest one.
func (s *Server) storeReport(date agenda.Date, rep *digest.Report, now time.Time) {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()

	for d, c := range s.reports {
		if now.Sub(c.updatedAt) >= reportCacheTTL {
			delete(s.reports, d)
		}
	}
	s.reports[date] = &cachedReport{report: rep, updatedAt: now}

	for len(s.reports) > maxCachedReports {
		var oldest agenda.Date
		var oldestAt time.Time
		first := true
		for d, c := range s.reports {
			if d == date {
				continue
			}
			if first || c.updatedAt.Before(oldestAt) {
				oldest, oldestAt, first = d, c.updatedAt, false
			}
		}
		delete(s.reports, oldest)
	}
}

type eventDTO struct {
	Title     string    `json:"title"`
	Calendar  string    `json:"calendar"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	AllDay    bool      `json:"all_day"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Overlaps  bool      `json:"overlaps"`
	GapToNext *int      `json:"gap_to_next_minutes,omitempty"`
}

type sourceDTO struct {
	Label   string `json:"label"`
	Events  int    `json:"events"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

type dueDTO struct {
	Title    string            `json:"title"`
	URL      string            `json:"url,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Database string            `json:"database"`
	Fields   map[string]string `json:"fields,omitempty"`
}

type eventsResponse struct {
	RunID       string      `json:"run_id"`
	Date        string      `json:"date"`
	TimeZone    string      `json:"timezone"`
	Events      []eventDTO  `json:"events"`
	Sources     []sourceDTO `json:"sources"`
	DueToday    []dueDTO    `json:"due_today"`
	DueTomorrow []dueDTO    `json:"due_tomorrow"`
}

// handleEvents returns the day's aggregated events with annotations.
//
// GET /api/events?date=2025-08-13
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rep, status, err := s.report(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	resp := eventsResponse{
		RunID:       rep.RunID,
		Date:        rep.Date.String(),
		TimeZone:    s.cfg.Timezone,
		Events:      make([]eventDTO, 0, len(rep.Calendar.Events)),
		Sources:     make([]sourceDTO, 0, len(rep.Calendar.Sources)),
		DueToday:    dueDTOs(rep.DueToday),
		DueTomorrow: dueDTOs(rep.DueTomorrow),
	}

	allDay, timed := agenda.SplitAllDay(rep.Calendar.Events)
	for _, e := range allDay {
		resp.Events = append(resp.Events, eventDTO{
			Title: e.Title, Calendar: e.SourceLabel, Location: e.Location, Notes: e.Notes,
			AllDay: true, Start: e.Start, End: e.End,
		})
	}
	notes := agenda.Annotate(timed)
	for i, e := range timed {
		resp.Events = append(resp.Events, eventDTO{
			Title: e.Title, Calendar: e.SourceLabel, Location: e.Location, Notes: e.Notes,
			Start: e.Start, End: e.End,
			Overlaps: notes[i].Overlaps, GapToNext: notes[i].GapToNext,
		})
	}
	for _, src := range rep.Calendar.Sources {
		dto := sourceDTO{Label: src.Label, Events: src.Events, Skipped: src.Skipped}
		if src.Err != nil {
			dto.Error = src.Err.Error()
		}
		resp.Sources = append(resp.Sources, dto)
	}

	writeJSON(w, http.StatusOK, resp)
}

func dueDTOs(items []model.DueItem) []dueDTO {
	out := make([]dueDTO, 0, len(items))
	for _, it := range items {
		d := dueDTO{Title: it.Title, URL: it.URL, Notes: it.Notes, Database: it.Database}
		if len(it.Fields) > 0 {
			d.Fields = make(map[string]string, len(it.Fields))
			for _, f := range it.Fields {
				d.Fields[f.Name] = f.Value
			}
		}
		out = append(out, d)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
