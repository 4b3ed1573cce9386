// Package handlers wires HTTP routes to the ingest pipeline and the query
// surface backing the dashboard.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/telhawk-systems/rtc-telemetry/internal/logging"
	"github.com/telhawk-systems/rtc-telemetry/internal/metrics"
	"github.com/telhawk-systems/rtc-telemetry/internal/ratelimit"
	"github.com/telhawk-systems/rtc-telemetry/internal/service"
)

// HookHandler receives event webhook posts from the media server.
type HookHandler struct {
	svc     *service.IngestService
	limiter ratelimit.RateLimiter
	logger  *logging.Logger
	maxBody int64
}

// NewHookHandler creates the webhook handler. maxBody bounds the accepted
// request size in bytes; zero applies a 10 MiB default.
func NewHookHandler(svc *service.IngestService, limiter ratelimit.RateLimiter, logger *logging.Logger, maxBody int64) *HookHandler {
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &HookHandler{svc: svc, limiter: limiter, logger: logger, maxBody: maxBody}
}

// HandleEvent accepts one POST carrying a JSON event or an array of them.
// A well-formed payload is answered 204 even when some batch elements fail
// to persist; those land in the dead letter queue instead.
func (h *HookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	ctx := r.Context()

	clientIP := getClientIP(r)
	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Rate limiting is advisory. A Redis outage must not stop ingestion.
		h.logger.WarnContext(ctx, "rate limit check failed", logging.Error(err))
	} else if !allowed {
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable_body")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty_body")
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.WarnContext(ctx, "malformed webhook payload", logging.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	metrics.EventBytesTotal.Add(float64(len(body)))

	if err := h.svc.Process(ctx, payload); err != nil {
		h.logger.ErrorContext(ctx, "event persistence failed", logging.Error(err),
			logging.Path(r.URL.Path))
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
