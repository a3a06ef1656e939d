package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. Upstream failures also
// carry the upstream status and body.
type errorResponse struct {
	Error          string `json:"error"`
	Field          string `json:"field,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}

// ReportResponse is the JSON representation of a warranty report.
type ReportResponse struct {
	ID            string                 `json:"id"`
	GeneratedAt   string                 `json:"generated_at"`
	WindowDays    int                    `json:"window_days"`
	Message       string                 `json:"message,omitempty"`
	Rows          []RowResponse          `json:"rows"`
	Organizations []OrganizationResponse `json:"organizations"`
}

// RowResponse is one warranty row.
type RowResponse struct {
	Organization    string `json:"org_name"`
	SerialNumber    string `json:"serial_number"`
	ExpiryDate      string `json:"warranty_expiry_date"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	Expired         bool   `json:"is_expired"`
}

// OrganizationResponse reports how one organization fared during the run.
type OrganizationResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DeviceCount int    `json:"device_count"`
	RowCount    int    `json:"row_count"`
	Skipped     bool   `json:"skipped"`
	Error       string `json:"error,omitempty"`
}

func toReportResponse(report *model.Report) ReportResponse {
	resp := ReportResponse{
		ID:            report.ID,
		GeneratedAt:   report.GeneratedAt.UTC().Format(time.RFC3339),
		WindowDays:    report.WindowDays,
		Rows:          make([]RowResponse, 0, len(report.Rows)),
		Organizations: make([]OrganizationResponse, 0, len(report.Outcomes)),
	}

	switch {
	case report.NoOrganizations():
		resp.Message = "No organizations found"
	case len(report.Rows) == 0:
		resp.Message = application.NoRowsMessage(report.WindowDays)
	}

	for _, row := range report.Rows {
		resp.Rows = append(resp.Rows, RowResponse{
			Organization:    row.OrganizationName,
			SerialNumber:    row.SerialNumber,
			ExpiryDate:      row.ExpiryDate.Format("2006-01-02"),
			DaysUntilExpiry: row.DaysUntilExpiry,
			Expired:         row.Expired,
		})
	}

	for _, o := range report.Outcomes {
		org := OrganizationResponse{
			ID:          o.Organization.ID,
			Name:        o.Organization.Name,
			DeviceCount: o.DeviceCount,
			RowCount:    o.RowCount,
			Skipped:     o.Skipped(),
		}
		if o.Err != nil {
			org.Error = o.Err.Error()
		}
		resp.Organizations = append(resp.Organizations, org)
	}

	return resp
}

// writeServiceError maps application and upstream errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		authErr     *model.AuthError
		upstreamErr *model.UpstreamError
		decErr      *model.DecryptionError
	)

	switch {
	case errors.As(err, &decErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: "stored credential could not be decrypted, re-enter it",
			Field: decErr.Field,
		})
	case errors.Is(err, model.ErrCredentialsMissing):
		writeError(w, http.StatusConflict, "api credentials not configured")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "no report has been generated in this session")
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:          "upstream token exchange failed",
			UpstreamStatus: authErr.StatusCode,
			UpstreamBody:   authErr.Body,
		})
	case errors.As(err, &upstreamErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:          fmt.Sprintf("upstream %s failed", upstreamErr.Operation),
			UpstreamStatus: upstreamErr.StatusCode,
			UpstreamBody:   upstreamErr.Body,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
