package api

import (
	"net/http"
)

// registerRoutes registers every endpoint of spec §6 on mux, gating the
// jobs, stats and config endpoints behind requireRole. GET /health and
// POST /webhook/arm are not gated (the webhook checks its own secret).
func registerRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /webhook/arm", h.Webhook)

	mux.HandleFunc("GET /jobs", h.requireRole(RoleReadonly, h.ListJobs))
	mux.HandleFunc("POST /jobs/{id}/retry", h.requireRole(RoleAdmin, h.RetryJob))
	mux.HandleFunc("DELETE /jobs/{id}", h.requireRole(RoleAdmin, h.DeleteJob))

	mux.HandleFunc("GET /stats", h.requireRole(RoleReadonly, h.Stats))

	mux.HandleFunc("GET /config", h.requireRole(RoleReadonly, h.GetConfig))
	mux.HandleFunc("PATCH /config", h.requireRole(RoleAdmin, h.PatchConfig))
}

// NewRouter builds the HTTP handler for the full API surface, wrapped in
// the correlation-id middleware (spec §6).
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	registerRoutes(mux, h)
	return correlationID(mux)
}
