package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// CredentialPanel is the credential form state for one account. Secrets are
// never returned, only whether they are set. Fields listed in Corrupt exist
// but could not be decrypted and must be re-entered.
type CredentialPanel struct {
	ClientID        string
	ClientSecretSet bool

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPasswordSet bool
	SMTPTLS         bool

	Corrupt []string
}

// IsCorrupt reports whether field could not be decrypted.
func (p CredentialPanel) IsCorrupt(field string) bool {
	for _, f := range p.Corrupt {
		if f == field {
			return true
		}
	}
	return false
}

// CredentialService reads and writes the sealed per-account credentials.
type CredentialService struct {
	store  driven.CredentialStore
	logger *slog.Logger
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(store driven.CredentialStore, logger *slog.Logger) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{store: store, logger: logger}
}

// APICredentials returns the account's API client pair. A field that cannot
// be decrypted is returned as its *model.DecryptionError; an incomplete pair
// is model.ErrCredentialsMissing.
func (s *CredentialService) APICredentials(ctx context.Context, email string) (model.APICredentials, error) {
	clientID, err := s.store.Get(ctx, email, model.FieldAPIClientID)
	if err != nil {
		return model.APICredentials{}, err
	}
	clientSecret, err := s.store.Get(ctx, email, model.FieldAPIClientSecret)
	if err != nil {
		return model.APICredentials{}, err
	}

	creds := model.APICredentials{ClientID: clientID, ClientSecret: clientSecret}
	if !creds.Complete() {
		return creds, model.ErrCredentialsMissing
	}
	return creds, nil
}

// SaveAPICredentials stores the client pair. An empty secret keeps the
// stored one so the form does not have to echo it back.
func (s *CredentialService) SaveAPICredentials(ctx context.Context, email string, creds model.APICredentials) error {
	clientID := strings.TrimSpace(creds.ClientID)
	if clientID == "" {
		return fmt.Errorf("%w: client id is required", model.ErrInvalidInput)
	}

	if err := s.store.Set(ctx, email, model.FieldAPIClientID, clientID); err != nil {
		return fmt.Errorf("save client id: %w", err)
	}
	if creds.ClientSecret != "" {
		if err := s.store.Set(ctx, email, model.FieldAPIClientSecret, creds.ClientSecret); err != nil {
			return fmt.Errorf("save client secret: %w", err)
		}
	}

	s.logger.Info("api credentials saved", "email", email)
	return nil
}

// MailSettings returns the account's SMTP relay settings. A field that
// cannot be decrypted is returned as its *model.DecryptionError.
func (s *CredentialService) MailSettings(ctx context.Context, email string) (model.MailSettings, error) {
	values, failures, err := s.store.GetAll(ctx, email)
	if err != nil {
		return model.MailSettings{}, err
	}
	for _, f := range failures {
		if strings.HasPrefix(f.Field, "smtp.") {
			return model.MailSettings{}, f
		}
	}

	return mailSettingsFrom(values), nil
}

// SaveMailSettings validates and stores the SMTP relay settings. An empty
// password keeps the stored one.
func (s *CredentialService) SaveMailSettings(ctx context.Context, email string, settings model.MailSettings) error {
	host := strings.TrimSpace(settings.Host)
	if host == "" {
		return fmt.Errorf("%w: smtp host is required", model.ErrInvalidInput)
	}
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("%w: smtp port must be between 1 and 65535", model.ErrInvalidInput)
	}

	fields := map[string]string{
		model.FieldSMTPHost:     host,
		model.FieldSMTPPort:     strconv.Itoa(settings.Port),
		model.FieldSMTPUsername: strings.TrimSpace(settings.Username),
		model.FieldSMTPTLS:      strconv.FormatBool(settings.TLS),
	}
	if settings.Password != "" {
		fields[model.FieldSMTPPassword] = settings.Password
	}

	for field, value := range fields {
		if err := s.store.Set(ctx, email, field, value); err != nil {
			return fmt.Errorf("save %s: %w", field, err)
		}
	}

	s.logger.Info("smtp settings saved", "email", email, "host", host, "port", settings.Port)
	return nil
}

// Panel loads every credential field for display.
func (s *CredentialService) Panel(ctx context.Context, email string) (*CredentialPanel, error) {
	values, failures, err := s.store.GetAll(ctx, email)
	if err != nil {
		return nil, err
	}

	mail := mailSettingsFrom(values)
	panel := &CredentialPanel{
		ClientID:        values[model.FieldAPIClientID],
		ClientSecretSet: values[model.FieldAPIClientSecret] != "",
		SMTPHost:        mail.Host,
		SMTPPort:        mail.Port,
		SMTPUsername:    mail.Username,
		SMTPPasswordSet: mail.Password != "",
		SMTPTLS:         mail.TLS,
	}
	for _, f := range failures {
		s.logger.Warn("credential field could not be decrypted", "email", email, "field", f.Field)
		panel.Corrupt = append(panel.Corrupt, f.Field)
	}

	return panel, nil
}

// CorruptField extracts the field name from a decryption failure, or ""
// when err is not one.
func CorruptField(err error) string {
	var decErr *model.DecryptionError
	if errors.As(err, &decErr) {
		return decErr.Field
	}
	return ""
}

func mailSettingsFrom(values map[string]string) model.MailSettings {
	port, _ := strconv.Atoi(values[model.FieldSMTPPort])
	useTLS, _ := strconv.ParseBool(values[model.FieldSMTPTLS])
	return model.MailSettings{
		Host:     values[model.FieldSMTPHost],
		Port:     port,
		Username: values[model.FieldSMTPUsername],
		Password: values[model.FieldSMTPPassword],
		TLS:      useTLS,
	}
}
