// Package httphandler implements the JSON API driving adapter.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/warrantypanel/internal/application"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	auth    *application.AuthService
	reports *application.ReportService
	db      Pinger
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	authSvc *application.AuthService,
	reports *application.ReportService,
	db Pinger,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:    authSvc,
		reports: reports,
		db:      db,
		clock:   clock,
		logger:  logger,
	}
}

// RegisterRoutes registers the /api/v1 routes on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/report", h.requireSession(h.RunReport))
	mux.HandleFunc("GET /api/v1/report.csv", h.requireSession(h.DownloadCSV))
}

// NewServeMux creates an http.Handler with the API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// Health reports service and database status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Time:     h.clock.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// RunReport runs a warranty report with the caller's stored credentials.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	report, err := h.reports.RunForSession(r.Context(), session)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReportResponse(report))
}

// DownloadCSV returns the session's latest report as a CSV attachment.
func (h *Handler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	report, err := h.reports.LastReport(session)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	WriteCSVResponse(w, report, h.logger)
}
