package model

import "time"

// Credential field names. Each is stored as its own sealed value keyed by
// (account email, field).
const (
	FieldAPIClientID     = "api.client_id"
	FieldAPIClientSecret = "api.client_secret"
	FieldSMTPHost        = "smtp.host"
	FieldSMTPPort        = "smtp.port"
	FieldSMTPUsername    = "smtp.username"
	FieldSMTPPassword    = "smtp.password"
	FieldSMTPTLS         = "smtp.tls"
)

// CredentialFields lists every field the panel manages, in display order.
var CredentialFields = []string{
	FieldAPIClientID,
	FieldAPIClientSecret,
	FieldSMTPHost,
	FieldSMTPPort,
	FieldSMTPUsername,
	FieldSMTPPassword,
	FieldSMTPTLS,
}

// Credential holds one decrypted credential field for an account.
type Credential struct {
	Email     string
	Field     string
	Value     string
	UpdatedAt time.Time
}

// APICredentials are the client-credentials pair for the device-management API.
type APICredentials struct {
	ClientID     string
	ClientSecret string
}

// Complete reports whether both halves of the pair are set.
func (c APICredentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// MailSettings are a user's personal SMTP relay settings.
type MailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Configured reports whether enough settings exist to attempt delivery.
func (m MailSettings) Configured() bool {
	return m.Host != "" && m.Port > 0
}
