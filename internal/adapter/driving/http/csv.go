package httphandler

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"

	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// WriteCSVResponse writes report as a CSV attachment. The body is rendered
// into memory first so a failure can still become a 500.
func WriteCSVResponse(w http.ResponseWriter, report *model.Report, logger *slog.Logger) {
	var buf bytes.Buffer
	if err := application.WriteCSV(&buf, report); err != nil {
		logger.Error("failed to render csv", "report_id", report.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", application.CSVContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": application.CSVFilename(report.GeneratedAt)}))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
