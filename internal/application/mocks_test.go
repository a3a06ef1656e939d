package application_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[string]*model.Account)}
}

func (m *mockAccountStore) GetOrCreate(_ context.Context, email string, now time.Time) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[email]; ok {
		cp := *a
		return &cp, nil
	}
	a := &model.Account{Email: email, CreatedAt: now}
	m.accounts[email] = a
	cp := *a
	return &cp, nil
}

func (m *mockAccountStore) Get(_ context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountStore) SetCode(_ context.Context, email, otpHash string, resendAfter time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return model.ErrNotFound
	}
	a.OTPHash = otpHash
	a.ResendAfter = resendAfter
	return nil
}

func (m *mockAccountStore) ConsumeCode(_ context.Context, email, otpHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok || a.OTPHash == "" || a.OTPHash != otpHash {
		return false, nil
	}
	a.OTPHash = ""
	return true, nil
}

func (m *mockAccountStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[email]; !ok {
		return model.ErrNotFound
	}
	delete(m.accounts, email)
	return nil
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]model.Session)}
}

func (m *mockSessionStore) Create(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *mockSessionStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// mockMailer records sent messages; err, when set, fails every send.
type mockMailer struct {
	mu   sync.Mutex
	sent []driven.Message
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg driven.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMailer) last() driven.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return driven.Message{}
	}
	return m.sent[len(m.sent)-1]
}

var codePattern = regexp.MustCompile(`\*\*(\d{6})\*\*`)

// lastCode extracts the login code from the most recent message.
func (m *mockMailer) lastCode() string {
	match := codePattern.FindStringSubmatch(m.last().Body)
	if match == nil {
		return ""
	}
	return match[1]
}

type mockMailerFactory struct {
	mailer   *mockMailer
	settings model.MailSettings
	from     string
}

func (f *mockMailerFactory) ForSettings(settings model.MailSettings, from string) driven.Mailer {
	f.settings = settings
	f.from = from
	return f.mailer
}

// mockCredentialStore keeps plaintext values; corrupt marks fields whose
// reads fail as if the ciphertext were damaged.
type mockCredentialStore struct {
	mu      sync.Mutex
	values  map[string]string
	corrupt map[string]bool
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{values: make(map[string]string), corrupt: make(map[string]bool)}
}

func credKey(email, field string) string { return email + "|" + field }

func (m *mockCredentialStore) Set(_ context.Context, email, field, plaintext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[credKey(email, field)] = plaintext
	delete(m.corrupt, credKey(email, field))
	return nil
}

func (m *mockCredentialStore) Get(_ context.Context, email, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt[credKey(email, field)] {
		return "", &model.DecryptionError{Field: field, Err: errAuthFailed}
	}
	return m.values[credKey(email, field)], nil
}

func (m *mockCredentialStore) GetAll(_ context.Context, email string) (map[string]string, []*model.DecryptionError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := make(map[string]string)
	var failures []*model.DecryptionError
	for _, field := range model.CredentialFields {
		key := credKey(email, field)
		if m.corrupt[key] {
			failures = append(failures, &model.DecryptionError{Field: field, Err: errAuthFailed})
			continue
		}
		if v, ok := m.values[key]; ok {
			values[field] = v
		}
	}
	return values, failures, nil
}

func (m *mockCredentialStore) Delete(_ context.Context, email, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, credKey(email, field))
	delete(m.corrupt, credKey(email, field))
	return nil
}

// mockDeviceClient serves fixed organizations and devices. Errors keyed by
// organization ID fail that listing. With hang set, device listings block
// until the context is done.
type mockDeviceClient struct {
	hang       bool
	tokenErr   error
	orgs       []model.Organization
	orgsErr    error
	devices    map[string][]model.Device
	deviceErrs map[string]error

	mu         sync.Mutex
	gotClient  string
	gotSecret  string
	deviceHits []string
}

func (m *mockDeviceClient) FetchAccessToken(_ context.Context, clientID, clientSecret string) (string, error) {
	m.mu.Lock()
	m.gotClient, m.gotSecret = clientID, clientSecret
	m.mu.Unlock()
	if m.tokenErr != nil {
		return "", m.tokenErr
	}
	return "token-1", nil
}

func (m *mockDeviceClient) ListOrganizations(_ context.Context, _ string) ([]model.Organization, error) {
	if m.orgsErr != nil {
		return nil, m.orgsErr
	}
	return m.orgs, nil
}

func (m *mockDeviceClient) ListDevices(ctx context.Context, _ string, organizationID string) ([]model.Device, error) {
	m.mu.Lock()
	m.deviceHits = append(m.deviceHits, organizationID)
	m.mu.Unlock()
	if m.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := m.deviceErrs[organizationID]; err != nil {
		return nil, err
	}
	return m.devices[organizationID], nil
}

var errAuthFailed = errors.New("message authentication failed")
