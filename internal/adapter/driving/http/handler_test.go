package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/warrantypanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/warrantypanel/internal/adapter/driven/upstream"
	httphandler "github.com/ericfisherdev/warrantypanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

const testEmail = "alice@example.com"

var testNow = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

// --- Test doubles ---

type captureMailer struct {
	mu   sync.Mutex
	sent []driven.Message
}

func (m *captureMailer) Send(_ context.Context, msg driven.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

var codePattern = regexp.MustCompile(`\*\*(\d{6})\*\*`)

func (m *captureMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	match := codePattern.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	if match == nil {
		return ""
	}
	return match[1]
}

type nopFactory struct{}

func (nopFactory) ForSettings(model.MailSettings, string) driven.Mailer { return &captureMailer{} }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

// fakeUpstream serves the device-management API from fixed fixtures.
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("client_secret") == "slow-secret" {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		if r.FormValue("client_secret") != "good-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"Bearer"}`)
	})
	mux.HandleFunc("GET /v2/organizations", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"id":"1","name":"Acme"},{"id":2,"name":"Broken"}]}`)
	})
	mux.HandleFunc("GET /v2/organizations/1/devices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"sn":"CD-99","expiry_date":"2024-12-05","expired":false},{"sn":"AB-12","expiry_date":"2025-06-10T00:00:00Z","expired":false}]}`)
	})
	mux.HandleFunc("GET /v2/organizations/2/devices", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type harness struct {
	handler http.Handler
	authSvc *application.AuthService
	creds   *application.CredentialService
	mailer  *captureMailer
}

func newHarness(t *testing.T, pinger httphandler.Pinger) *harness {
	t.Helper()
	return newHarnessWithRunTimeout(t, pinger, 0)
}

func newHarnessWithRunTimeout(t *testing.T, pinger httphandler.Pinger, runTimeout time.Duration) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer.DB))

	cipher, err := sqlite.NewFieldCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &captureMailer{}

	authSvc := application.NewAuthService(
		sqlite.NewAccountRepo(db), sqlite.NewSessionRepo(db), mailer,
		auth.NewTokenSigner([]byte("fedcba9876543210fedcba9876543210")),
		clock, time.Minute, time.Hour, logger,
	)
	creds := application.NewCredentialService(sqlite.NewCredentialRepo(db, cipher, clock), logger)
	client := upstream.NewClientWithHTTPClient(http.DefaultClient, fakeUpstream(t).URL, 5*time.Second, logger)
	reports := application.NewReportService(client, creds, nopFactory{}, application.NewReportCache(clock, 30*time.Minute),
		clock, 90, 2, runTimeout, logger)

	if pinger == nil {
		pinger = db
	}
	h := httphandler.NewHandler(authSvc, reports, pinger, clock, logger)

	return &harness{
		handler: httphandler.NewServeMux(h, logger),
		authSvc: authSvc,
		creds:   creds,
		mailer:  mailer,
	}
}

// login signs in testEmail and returns a bearer token.
func (h *harness) login(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	_, err := h.authSvc.RequestCode(ctx, testEmail)
	require.NoError(t, err)
	result, err := h.authSvc.VerifyCode(ctx, testEmail, h.mailer.lastCode())
	require.NoError(t, err)
	return result.Token
}

func (h *harness) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body httphandler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "2024-12-01T12:00:00Z", body.Time)
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := newHarness(t, failingPinger{})

	rec := h.do(t, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestReport_RequiresSession(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/report", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = h.do(t, http.MethodPost, "/api/v1/report", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReport_MissingCredentials(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/report", token)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "api credentials not configured")
}

func TestReport_Success(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	require.NoError(t, h.creds.SaveAPICredentials(context.Background(), testEmail,
		model.APICredentials{ClientID: "id", ClientSecret: "good-secret"}))

	rec := h.do(t, http.MethodPost, "/api/v1/report", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body httphandler.ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Rows, 1)
	assert.Equal(t, httphandler.RowResponse{
		Organization:    "Acme",
		SerialNumber:    "CD99",
		ExpiryDate:      "2024-12-05",
		DaysUntilExpiry: 4,
		Expired:         false,
	}, body.Rows[0])

	require.Len(t, body.Organizations, 2)
	assert.False(t, body.Organizations[0].Skipped)
	assert.Equal(t, 2, body.Organizations[0].DeviceCount)
	assert.True(t, body.Organizations[1].Skipped)
	assert.Equal(t, "2", body.Organizations[1].ID)
	assert.Contains(t, body.Organizations[1].Error, "503")
}

func TestReport_UpstreamAuthFailure(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	require.NoError(t, h.creds.SaveAPICredentials(context.Background(), testEmail,
		model.APICredentials{ClientID: "id", ClientSecret: "wrong"}))

	rec := h.do(t, http.MethodPost, "/api/v1/report", token)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusUnauthorized), body["upstream_status"])
	assert.Contains(t, body["upstream_body"], "invalid_client")
}

func TestReport_RunTimeout(t *testing.T) {
	h := newHarnessWithRunTimeout(t, nil, 50*time.Millisecond)
	token := h.login(t)
	require.NoError(t, h.creds.SaveAPICredentials(context.Background(), testEmail,
		model.APICredentials{ClientID: "id", ClientSecret: "slow-secret"}))

	rec := h.do(t, http.MethodPost, "/api/v1/report", token)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream request timed out")
}

func TestDownloadCSV(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/v1/report.csv", token)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no report yet")

	require.NoError(t, h.creds.SaveAPICredentials(context.Background(), testEmail,
		model.APICredentials{ClientID: "id", ClientSecret: "good-secret"}))
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/report", token).Code)

	rec = h.do(t, http.MethodGet, "/api/v1/report.csv", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Equal(t, "attachment; filename=warranty_report_2024-12-01.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t,
		"org_name,serial_number,warranty_expiry_date,days_until_expiry,is_expired\n"+
			`"Acme","CD99","2024-12-05","4","NO"`+"\n",
		rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	httphandler.LoggingMiddleware(logger, httphandler.RecoveryMiddleware(logger, panicking)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
