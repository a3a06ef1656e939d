package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers all web GUI routes on the provided mux.
// Static assets are served from the embedded filesystem at /static/*.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	// Static assets (embedded via go:embed).
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Sign-in flow.
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.limit(h.requireCSRF(h.Login)))
	mux.HandleFunc("GET /verify", h.VerifyPage)
	mux.HandleFunc("POST /verify", h.limit(h.requireCSRF(h.Verify)))
	mux.HandleFunc("POST /resend", h.limit(h.requireCSRF(h.Resend)))

	// Signed-in pages.
	mux.HandleFunc("GET /panel", h.requireSession(h.Panel))
	mux.HandleFunc("POST /panel/api", h.requireSession(h.requireCSRF(h.SaveAPICredentials)))
	mux.HandleFunc("POST /panel/mail", h.requireSession(h.requireCSRF(h.SaveMailSettings)))
	mux.HandleFunc("POST /report", h.requireSession(h.requireCSRF(h.RunReport)))
	mux.HandleFunc("GET /report.csv", h.requireSession(h.DownloadCSV))
	mux.HandleFunc("POST /report/email", h.requireSession(h.requireCSRF(h.EmailReport)))
	mux.HandleFunc("POST /logout", h.requireSession(h.requireCSRF(h.Logout)))
	mux.HandleFunc("POST /account/delete", h.requireSession(h.requireCSRF(h.DeleteAccount)))
}
