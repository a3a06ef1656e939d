package mail

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MailerFactory = (*Factory)(nil)

// Factory builds SMTP mailers from per-user relay settings.
type Factory struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewFactory(clock clockwork.Clock, logger *slog.Logger) *Factory {
	return &Factory{clock: clock, logger: logger}
}

// ForSettings returns an SMTPMailer for the given relay.
func (f *Factory) ForSettings(settings model.MailSettings, from string) driven.Mailer {
	return NewSMTPMailer(settings, from, f.clock, f.logger)
}

// NewSystemMailer returns the mailer used for login codes: SMTP when a host
// is configured, otherwise a LogMailer.
func NewSystemMailer(settings model.MailSettings, from string, clock clockwork.Clock, logger *slog.Logger) driven.Mailer {
	if settings.Host == "" {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(settings, from, clock, logger)
}
