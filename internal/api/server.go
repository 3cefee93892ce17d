package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the console's HTTP mux.
func Routes(h *Handler, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/alerts", h.HandleListAlerts)
	mux.HandleFunc("POST /v1/alerts/ownership", h.HandleTakeOwnership)
	mux.HandleFunc("DELETE /v1/alerts/ownership", h.HandleReleaseOwnership)
	mux.HandleFunc("POST /v1/alerts/close", h.HandleClose)
	mux.HandleFunc("POST /v1/alerts/reopen", h.HandleReopen)
	mux.HandleFunc("POST /v1/alerts/ticket", h.HandleLinkTicket)
	mux.HandleFunc("POST /v1/alerts/ticket/create", h.HandleCreateTicket)
	mux.HandleFunc("POST /v1/alerts/mitigate", h.HandleMitigate)
	mux.HandleFunc("GET /v1/alerts/{id}/tickets", h.HandleAlertTickets)

	mux.HandleFunc("GET /health", h.HealthCheck)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return mux
}
