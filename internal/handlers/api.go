package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/models"
	"github.com/telhawk-systems/rtc-telemetry/internal/repository"
	"github.com/telhawk-systems/rtc-telemetry/internal/service"
)

// QueryStore is the read surface the API handler serves from.
type QueryStore interface {
	Ping(ctx context.Context) error
	ListSessions(ctx context.Context) ([]models.SessionRef, error)
	ListHandles(ctx context.Context, session int64) ([]models.HandleRef, error)
	StatsSeries(ctx context.Context, session, handle int64, from, to time.Time, stepSec int) ([]models.SeriesPoint, error)
	StatsSeriesByCall(ctx context.Context, callID string, from, to time.Time, stepSec int) ([]models.SeriesPoint, error)
	RecentEvents(ctx context.Context, session, handle int64, limit int) ([]models.RecentEvent, error)
	ListSipCalls(ctx context.Context, f models.SipCallFilter) ([]models.SipCallSummary, error)
	GetSipCall(ctx context.Context, callID string) (*models.SipCall, error)
	EventsByCall(ctx context.Context, callID string, from, to time.Time) (*models.CallEvents, error)
	ListSipPluginEvents(ctx context.Context, session, handle int64, from, to *time.Time, limit int) ([]models.PluginEventRow, error)
}

// APIHandler serves the dashboard's REST queries.
type APIHandler struct {
	store  QueryStore
	logger *logging.Logger
}

// NewAPIHandler creates the query API handler.
func NewAPIHandler(store QueryStore, logger *logging.Logger) *APIHandler {
	return &APIHandler{store: store, logger: logger}
}

// Chart buckets the dashboard may request, in seconds.
var bucketSteps = map[string]int{
	"1s": 1, "5s": 5, "10s": 10, "30s": 30,
	"1m": 60, "2m": 120, "5m": 300, "15m": 900,
}

// parseBucket resolves a bucket label, defaulting to one minute.
func parseBucket(bucket string) int {
	if step, ok := bucketSteps[bucket]; ok {
		return step
	}
	return 60
}

// Sessions handles GET /api/sessions.
func (h *APIHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.dbError(w, r, "sessions listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Handles handles GET /api/handles?session=N.
func (h *APIHandler) Handles(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	session, ok := requireInt64(w, r, "session")
	if !ok {
		return
	}
	handles, err := h.store.ListHandles(r.Context(), session)
	if err != nil {
		h.dbError(w, r, "handles listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, handles)
}

// StatsSeries handles GET /api/stats/series?session=&handle=&from=&to=&bucket=.
func (h *APIHandler) StatsSeries(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	session, ok := requireInt64(w, r, "session")
	if !ok {
		return
	}
	handle, ok := requireInt64(w, r, "handle")
	if !ok {
		return
	}
	from, to, ok := requireTimeRange(w, r)
	if !ok {
		return
	}
	step := parseBucket(r.URL.Query().Get("bucket"))

	points, err := h.store.StatsSeries(r.Context(), session, handle, from, to, step)
	if err != nil {
		h.dbError(w, r, "stats series failed", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// StatsSeriesByCall handles GET /api/stats/series/by-call?call_id=&from=&to=&bucket=.
func (h *APIHandler) StatsSeriesByCall(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing call_id")
		return
	}
	from, to, ok := requireTimeRange(w, r)
	if !ok {
		return
	}
	step := parseBucket(r.URL.Query().Get("bucket"))

	points, err := h.store.StatsSeriesByCall(r.Context(), callID, from, to, step)
	if err != nil {
		h.dbError(w, r, "stats series by call failed", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// RecentEvents handles GET /api/events/recent?session=&handle=&limit=.
func (h *APIHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	session, ok := requireInt64(w, r, "session")
	if !ok {
		return
	}
	handle, ok := requireInt64(w, r, "handle")
	if !ok {
		return
	}
	limit := parseLimit(r, 50, 500)

	events, err := h.store.RecentEvents(r.Context(), session, handle, limit)
	if err != nil {
		h.dbError(w, r, "recent events failed", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// SipCalls handles GET /api/sip/calls?from=&to=&search=&limit=.
func (h *APIHandler) SipCalls(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	q := r.URL.Query()
	filter := models.SipCallFilter{
		Search: q.Get("search"),
		Limit:  parseLimit(r, 200, 1000),
	}
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return
		}
		filter.To = &t
	}

	calls, err := h.store.ListSipCalls(r.Context(), filter)
	if err != nil {
		h.dbError(w, r, "sip calls listing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

// SipCallByID handles GET /api/sip/call/{call_id}.
func (h *APIHandler) SipCallByID(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/sip/call/")
	callID, err := url.PathUnescape(raw)
	if err != nil || callID == "" {
		writeError(w, http.StatusBadRequest, "missing call_id")
		return
	}

	call, err := h.store.GetSipCall(r.Context(), callID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.dbError(w, r, "sip call lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// EventsByCall handles GET /api/events/by-call?call_id=&from=&to=.
func (h *APIHandler) EventsByCall(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing call_id")
		return
	}
	from, to, ok := requireTimeRange(w, r)
	if !ok {
		return
	}

	events, err := h.store.EventsByCall(r.Context(), callID, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.dbError(w, r, "events by call failed", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// SipFlowByCall handles GET /api/sip/flow/by-call?call_id=&from=&to=&limit=.
func (h *APIHandler) SipFlowByCall(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing call_id")
		return
	}
	from, to, ok := optionalTimeRange(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, 2000, 10000)

	call, err := h.store.GetSipCall(r.Context(), callID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		h.dbError(w, r, "sip flow lookup failed", err)
		return
	}

	// A call row with no session or handle has nothing to read messages from.
	if call.Session == nil || call.Handle == nil {
		writeJSON(w, http.StatusOK, service.FlowByCall(call, nil))
		return
	}

	rows, err := h.store.ListSipPluginEvents(r.Context(), *call.Session, *call.Handle, from, to, limit)
	if err != nil {
		h.dbError(w, r, "sip flow events failed", err)
		return
	}
	writeJSON(w, http.StatusOK, service.FlowByCall(call, rows))
}

// SipFlowBySessionHandle handles GET /api/sip/flow/by-sh?session=&handle=&from=&to=&limit=.
func (h *APIHandler) SipFlowBySessionHandle(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	session, ok := requireInt64(w, r, "session")
	if !ok {
		return
	}
	handle, ok := requireInt64(w, r, "handle")
	if !ok {
		return
	}
	from, to, ok := optionalTimeRange(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, 800, 5000)

	rows, err := h.store.ListSipPluginEvents(r.Context(), session, handle, from, to, limit)
	if err != nil {
		h.dbError(w, r, "sip flow events failed", err)
		return
	}
	writeJSON(w, http.StatusOK, service.FlowBySessionHandle(session, handle, rows))
}

// Health handles GET /health and /healthz: liveness plus one storage probe.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Ready handles GET /readyz; same storage probe, different wire shape for
// orchestrator probes.
func (h *APIHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *APIHandler) dbError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, logging.Error(err), logging.Path(r.URL.Path))
	writeError(w, http.StatusInternalServerError, "db_error")
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return false
	}
	return true
}

func requireInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing "+name)
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func requireTimeRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid from")
		return time.Time{}, time.Time{}, false
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func optionalTimeRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	q := r.URL.Query()
	var from, to *time.Time
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return nil, nil, false
		}
		from = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return nil, nil, false
		}
		to = &t
	}
	return from, to, true
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
