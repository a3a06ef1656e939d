// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/jonboulle/clockwork"

	httphandler "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/templates"
	vm "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

const (
	pendingCookieName = "warrantypanel_pending"
	pendingCookieTTL  = 30 * time.Minute
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	auth          *application.AuthService
	creds         *application.CredentialService
	reports       *application.ReportService
	limiter       *RateLimiter
	clock         clockwork.Clock
	secureCookies bool
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. limiter may
// be nil to disable rate limiting of the sign-in forms.
func NewHandler(
	authSvc *application.AuthService,
	creds *application.CredentialService,
	reports *application.ReportService,
	limiter *RateLimiter,
	clock clockwork.Clock,
	secureCookies bool,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:          authSvc,
		creds:         creds,
		reports:       reports,
		limiter:       limiter,
		clock:         clock,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// --- Sign-in flow ---

// Index sends signed-in users to the panel and everyone else to sign-in.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r)); err == nil {
		http.Redirect(w, r, "/panel", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// LoginPage renders the email form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	page := vm.LoginViewModel{}
	switch {
	case r.URL.Query().Has("deleted"):
		page.Flash = noticeFlash("Your account and all saved credentials have been deleted.")
	case r.URL.Query().Has("signed_out"):
		page.Flash = noticeFlash("You have been signed out.")
	}
	h.renderLogin(w, r, http.StatusOK, page)
}

// Login issues a code for the submitted email and moves on to the code form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")

	pending, err := h.auth.RequestCode(r.Context(), email)
	if err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderLogin(w, r, status, vm.LoginViewModel{Email: strings.TrimSpace(email), Flash: flash})
		return
	}

	h.setPendingCookie(w, pending.Email)
	http.Redirect(w, r, "/verify", http.StatusSeeOther)
}

// VerifyPage renders the code form for the pending login.
func (h *Handler) VerifyPage(w http.ResponseWriter, r *http.Request) {
	var flash *vm.Flash
	if r.URL.Query().Has("resent") {
		flash = noticeFlash("A new code has been sent.")
	}
	h.renderVerify(w, r, http.StatusOK, flash)
}

// Verify checks the submitted code and opens a session.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	email, ok := pendingEmail(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	result, err := h.auth.VerifyCode(r.Context(), email, strings.TrimSpace(r.FormValue("code")))
	if err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderVerify(w, r, status, flash)
		return
	}

	h.clearCookie(w, pendingCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.Session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
	http.Redirect(w, r, "/panel", http.StatusSeeOther)
}

// Resend issues a new code unless the cooldown is still running.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	email, ok := pendingEmail(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if _, err := h.auth.ResendCode(r.Context(), email); err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderVerify(w, r, status, flash)
		return
	}

	http.Redirect(w, r, "/verify?resent=1", http.StatusSeeOther)
}

// --- Signed-in pages ---

// Panel renders the credential forms and the latest report.
func (h *Handler) Panel(w http.ResponseWriter, r *http.Request) {
	var flash *vm.Flash
	switch r.URL.Query().Get("done") {
	case "api":
		flash = noticeFlash("API credentials saved.")
	case "mail":
		flash = noticeFlash("SMTP settings saved.")
	case "emailed":
		flash = noticeFlash("The report has been emailed to you.")
	}
	h.renderPanel(w, r, http.StatusOK, flash)
}

// SaveAPICredentials stores the API client pair.
func (h *Handler) SaveAPICredentials(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	err := h.creds.SaveAPICredentials(r.Context(), session.Email, model.APICredentials{
		ClientID:     r.FormValue("client_id"),
		ClientSecret: r.FormValue("client_secret"),
	})
	if err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderPanel(w, r, status, flash)
		return
	}

	http.Redirect(w, r, "/panel?done=api", http.StatusSeeOther)
}

// SaveMailSettings stores the SMTP relay settings.
func (h *Handler) SaveMailSettings(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	port, err := strconv.Atoi(strings.TrimSpace(r.FormValue("smtp_port")))
	if err != nil {
		h.renderPanel(w, r, http.StatusBadRequest, errorFlash("SMTP port must be a number between 1 and 65535."))
		return
	}

	err = h.creds.SaveMailSettings(r.Context(), session.Email, model.MailSettings{
		Host:     r.FormValue("smtp_host"),
		Port:     port,
		Username: r.FormValue("smtp_username"),
		Password: r.FormValue("smtp_password"),
		TLS:      r.FormValue("smtp_tls") == "true",
	})
	if err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderPanel(w, r, status, flash)
		return
	}

	http.Redirect(w, r, "/panel?done=mail", http.StatusSeeOther)
}

// RunReport runs the warranty report and shows the result.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if _, err := h.reports.RunForSession(r.Context(), session); err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderPanel(w, r, status, flash)
		return
	}

	http.Redirect(w, r, "/panel", http.StatusSeeOther)
}

// DownloadCSV sends the latest report as a CSV attachment.
func (h *Handler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.LastReport(sessionFrom(r.Context()))
	if err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderPanel(w, r, status, flash)
		return
	}

	httphandler.WriteCSVResponse(w, report, h.logger)
}

// EmailReport mails the latest report through the user's SMTP relay.
func (h *Handler) EmailReport(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.EmailReport(r.Context(), sessionFrom(r.Context())); err != nil {
		flash, status := h.flashAndStatus(err)
		h.renderPanel(w, r, status, flash)
		return
	}

	http.Redirect(w, r, "/panel?done=emailed", http.StatusSeeOther)
}

// Logout ends the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := h.auth.Logout(r.Context(), session.ID); err != nil {
		h.logger.Error("failed to delete session", "session_id", session.ID, "error", err)
	}
	h.reports.Forget(session.ID)
	h.clearCookie(w, auth.SessionCookieName)

	http.Redirect(w, r, "/login?signed_out=1", http.StatusSeeOther)
}

// DeleteAccount removes the account with its credentials and sessions.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	if err := h.auth.DeleteAccount(r.Context(), session); err != nil {
		h.logger.Error("failed to delete account", "email", session.Email, "error", err)
		h.renderPanel(w, r, http.StatusInternalServerError, errorFlash("The account could not be deleted. Try again."))
		return
	}
	h.reports.Forget(session.ID)
	h.clearCookie(w, auth.SessionCookieName)

	http.Redirect(w, r, "/login?deleted=1", http.StatusSeeOther)
}

// --- Middleware ---

type sessionKey struct{}

func sessionFrom(ctx context.Context) model.Session {
	s, _ := ctx.Value(sessionKey{}).(model.Session)
	return s
}

// requireSession sends visitors without a live session to the sign-in page.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		session, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, model.ErrUnauthenticated) {
				h.logger.Error("session lookup failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if token != "" {
				h.clearCookie(w, auth.SessionCookieName)
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, *session)))
	}
}

// limit applies the per-client rate limit to sign-in submissions.
func (h *Handler) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
			h.logger.Warn("sign-in rate limit exceeded", "remote", clientIP(r), "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			h.renderLogin(w, r, http.StatusTooManyRequests, vm.LoginViewModel{
				Flash: errorFlash("Too many attempts. Wait a minute and try again."),
			})
			return
		}
		next(w, r)
	}
}

// --- Rendering ---

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page vm.LoginViewModel) {
	token := h.csrfToken(w, r)
	h.render(w, r, status, vm.LayoutViewModel{Title: "Sign in", CSRFToken: token}, templates.Login(page, token))
}

func (h *Handler) renderVerify(w http.ResponseWriter, r *http.Request, status int, flash *vm.Flash) {
	email, ok := pendingEmail(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	pending, err := h.auth.Pending(r.Context(), email)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrInvalidEmail) {
			h.logger.Error("failed to load pending login", "error", err)
		}
		h.clearCookie(w, pendingCookieName)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	page := toVerifyViewModel(pending, h.clock.Now())
	page.Flash = flash

	token := h.csrfToken(w, r)
	h.render(w, r, status, vm.LayoutViewModel{Title: "Enter code", CSRFToken: token}, templates.Verify(page, token))
}

func (h *Handler) renderPanel(w http.ResponseWriter, r *http.Request, status int, flash *vm.Flash) {
	session := sessionFrom(r.Context())

	panel, err := h.creds.Panel(r.Context(), session.Email)
	if err != nil {
		h.logger.Error("failed to load credentials", "email", session.Email, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	report, _ := h.reports.LastReport(session)
	page := toPanelViewModel(panel, report)
	page.Flash = flash

	token := h.csrfToken(w, r)
	layout := vm.LayoutViewModel{Title: "Panel", Email: session.Email, CSRFToken: token}
	h.render(w, r, status, layout, templates.Panel(page, token))
}

// render buffers the page so a template error can still become a 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, layout vm.LayoutViewModel, body templ.Component) {
	var buf bytes.Buffer
	if err := templates.Layout(layout, body).Render(r.Context(), &buf); err != nil {
		h.logger.Error("failed to render page", "title", layout.Title, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// flashAndStatus maps a service error to a message and status code, logging
// anything unexpected.
func (h *Handler) flashAndStatus(err error) (*vm.Flash, int) {
	flash, ok := flashForError(err)
	if !ok {
		h.logger.Error("request failed", "error", err)
		return flash, http.StatusInternalServerError
	}
	return flash, statusForError(err)
}

func statusForError(err error) int {
	var (
		cooldown *model.CooldownError
		authErr  *model.AuthError
		upErr    *model.UpstreamError
		decErr   *model.DecryptionError
	)
	switch {
	case errors.Is(err, model.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.As(err, &cooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrInvalidEmail), errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &decErr), errors.Is(err, model.ErrCredentialsMissing), errors.Is(err, model.ErrMailNotConfigured):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMailDelivery), errors.As(err, &authErr), errors.As(err, &upErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- Cookies ---

func (h *Handler) setPendingCookie(w http.ResponseWriter, email string) {
	http.SetCookie(w, &http.Cookie{
		Name:     pendingCookieName,
		Value:    email,
		Path:     "/",
		MaxAge:   int(pendingCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func pendingEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie(pendingCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}
