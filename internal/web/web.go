package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drivecal/internal/config"
	"drivecal/internal/erp"
	"drivecal/internal/grid"
	"drivecal/internal/ics"
	appLog "drivecal/internal/log"
	"drivecal/internal/model"
	"drivecal/internal/store"
	"drivecal/internal/syncer"
)

// weekCacheTTL bounds how stale /api/week may be before it triggers a
// browser sync. The cron refresh keeps the current week warmer than this.
const weekCacheTTL = 2 * time.Minute

const maxMemoBody = 64 << 10

// Weeks is the sync service as seen by the HTTP layer.
type Weeks interface {
	Week(ctx context.Context, anchor time.Time, maxAge time.Duration) (*syncer.Snapshot, error)
	Sync(ctx context.Context, anchor time.Time) (*syncer.Snapshot, error)
	Location() *time.Location
}

// MemoWriter writes a memo into the ERP without queueing behind a sync.
type MemoWriter interface {
	TryWriteMemo(ctx context.Context, eventID, date, text string) error
}

// Journal records memo attempts.
type Journal interface {
	Record(ctx context.Context, eventID, date, text string, writeErr error) (store.Memo, error)
	ListByEvent(ctx context.Context, eventID string) ([]store.Memo, error)
	Recent(ctx context.Context, limit int) ([]store.Memo, error)
}

// Deps are the collaborators behind the API. Memos may be nil when no ERP
// is configured; Gatherer may be nil to hide /metrics.
type Deps struct {
	Weeks    Weeks
	Memos    MemoWriter
	Journal  Journal
	Gatherer prometheus.Gatherer
}

// Server provides the HTTP API for the week grid and memo writes.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
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

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
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
			w.Header().Set("WWW-Authenticate", `Basic realm="drivecal", charset="UTF-8"`)
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

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/today", s.handleToday)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("POST /api/memo", s.handleMemo)
	s.mux.HandleFunc("GET /api/memos", s.handleMemos)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	if s.deps.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// weekResponse is the JSON response shape for /api/week and /api/sync.
type weekResponse struct {
	*syncer.Snapshot
	Timezone string `json:"timezone"`
}

// todayResponse is the JSON response shape for /api/today.
type todayResponse struct {
	Date     string                  `json:"date"`
	Events   []model.NormalizedEvent `json:"events"`
	SyncedAt time.Time               `json:"synced_at"`
	Partial  bool                    `json:"partial"`
}

type memoRequest struct {
	EventID string `json:"event_id"`
	Date    string `json:"date"`
	Text    string `json:"text"`
}

type memoResponse struct {
	Memo  store.Memo `json:"memo"`
	Error string     `json:"error,omitempty"`
}

// anchor reads ?date=YYYY-MM-DD in the front desk's timezone; absent
// means now.
func (s *Server) anchor(r *http.Request) (time.Time, error) {
	loc := s.deps.Weeks.Location()
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return s.now().In(loc), nil
	}
	t, err := grid.ParseLocalDate(raw, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	// Noon keeps the anchor clear of DST edges.
	return t.Add(12 * time.Hour), nil
}

// handleWeek returns the seat grid for the week containing ?date.
//
// GET /api/week?date=2025-06-10
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	anchor, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.deps.Weeks.Week(r.Context(), anchor, weekCacheTTL)
	if err != nil {
		s.writeSyncError(w, "api week", err)
		return
	}
	writeJSON(w, http.StatusOK, weekResponse{Snapshot: snap, Timezone: s.deps.Weeks.Location().String()})
}

// handleToday lists today's lessons across all seats, ordered by start.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.deps.Weeks.Location())
	snap, err := s.deps.Weeks.Week(r.Context(), now, weekCacheTTL)
	if err != nil {
		s.writeSyncError(w, "api today", err)
		return
	}
	date := grid.LocalDate(now)
	writeJSON(w, http.StatusOK, todayResponse{
		Date:     date,
		Events:   grid.OnDate(snap.Events, date),
		SyncedAt: snap.SyncedAt,
		Partial:  snap.Partial,
	})
}

// handleSync forces a sync of the week containing ?date.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	anchor, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Info("api sync request", "anchor", grid.LocalDate(anchor))
	snap, err := s.deps.Weeks.Sync(r.Context(), anchor)
	if err != nil {
		s.writeSyncError(w, "api sync", err)
		return
	}
	writeJSON(w, http.StatusOK, weekResponse{Snapshot: snap, Timezone: s.deps.Weeks.Location().String()})
}

// handleMemo writes a memo into the ERP. Every attempt is journaled,
// including ones refused because the browser is busy.
//
// POST /api/memo {"event_id": "123", "date": "2025-06-10", "text": "..."}
func (s *Server) handleMemo(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memos == nil {
		writeError(w, http.StatusServiceUnavailable, "ERP is not configured")
		return
	}

	var req memoRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMemoBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if req.Date != "" {
		if _, err := grid.ParseLocalDate(req.Date, s.deps.Weeks.Location()); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	writeErr := s.deps.Memos.TryWriteMemo(r.Context(), req.EventID, req.Date, req.Text)

	// Journal even if the client went away mid-write.
	memo, err := s.deps.Journal.Record(context.WithoutCancel(r.Context()), req.EventID, req.Date, req.Text, writeErr)
	if err != nil {
		appLog.Error("api memo: journal failed", err, "event_id", req.EventID)
	}

	switch {
	case writeErr == nil:
		writeJSON(w, http.StatusOK, memoResponse{Memo: memo})
	case errors.Is(writeErr, erp.ErrBusy):
		writeJSON(w, http.StatusConflict, memoResponse{Memo: memo, Error: "ERP session is busy; try again shortly"})
	default:
		appLog.Error("api memo: write failed", writeErr, "event_id", req.EventID)
		writeJSON(w, http.StatusBadGateway, memoResponse{Memo: memo, Error: writeErr.Error()})
	}
}

// handleMemos lists journaled memo attempts.
//
// GET /api/memos?event_id=123  or  GET /api/memos?limit=20
func (s *Server) handleMemos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		memos []store.Memo
		err   error
	)
	if id := strings.TrimSpace(q.Get("event_id")); id != "" {
		memos, err = s.deps.Journal.ListByEvent(r.Context(), id)
	} else {
		memos, err = s.deps.Journal.Recent(r.Context(), parseIntDefault(q.Get("limit"), 50))
	}
	if err != nil {
		appLog.Error("api memos: query failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read memo journal")
		return
	}
	writeJSON(w, http.StatusOK, memos)
}

// handleCalendar exports the week containing ?date as an ICS feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	anchor, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.deps.Weeks.Week(r.Context(), anchor, weekCacheTTL)
	if err != nil {
		s.writeSyncError(w, "api calendar", err)
		return
	}
	body := ics.Export("drivecal "+snap.Week.StartDate, snap.Events, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="drivecal-`+snap.Week.StartDate+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeSyncError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.Canceled) {
		// client went away; the shared sync keeps running
		appLog.Debug(op+": client gone", "err", err)
		return
	}
	appLog.Error(op+": sync failed", err)
	if errors.Is(err, syncer.ErrAllSourcesFailed) {
		writeError(w, http.StatusBadGateway, "no calendar source is reachable")
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to load week")
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
