// Package server assembles the collector's HTTP surface: the webhook sink,
// the dashboard query API, health probes and Prometheus metrics.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/rtc-telemetry/internal/handlers"
	"github.com/telhawk-systems/rtc-telemetry/internal/middleware"
)

// NewRouter registers all routes. The webhook endpoints sit behind basic
// auth (disabled when username is empty); the query API and probes are open.
func NewRouter(hook *handlers.HookHandler, api *handlers.APIHandler, username, password string) http.Handler {
	mux := http.NewServeMux()

	// The media server can be pointed at any of these paths.
	guarded := middleware.BasicAuth(username, password)(http.HandlerFunc(hook.HandleEvent))
	mux.Handle("/hooks/janus", guarded)
	mux.Handle("/janus", guarded)
	mux.Handle("/events", guarded)
	mux.Handle("/", exactRoot(guarded))

	mux.HandleFunc("/api/sessions", api.Sessions)
	mux.HandleFunc("/api/handles", api.Handles)
	mux.HandleFunc("/api/stats/series", api.StatsSeries)
	mux.HandleFunc("/api/stats/series/by-call", api.StatsSeriesByCall)
	mux.HandleFunc("/api/events/recent", api.RecentEvents)
	mux.HandleFunc("/api/events/by-call", api.EventsByCall)
	mux.HandleFunc("/api/sip/calls", api.SipCalls)
	mux.HandleFunc("/api/sip/call/", api.SipCallByID)
	mux.HandleFunc("/api/sip/flow/by-call", api.SipFlowByCall)
	mux.HandleFunc("/api/sip/flow/by-sh", api.SipFlowBySessionHandle)

	mux.HandleFunc("/health", api.Health)
	mux.HandleFunc("/api/health", api.Health)
	mux.HandleFunc("/healthz", api.Health)
	mux.HandleFunc("/readyz", api.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(middleware.CORS(mux))
}

// exactRoot serves the handler only for the root path itself; the mux would
// otherwise send every unmatched path to the webhook.
func exactRoot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
