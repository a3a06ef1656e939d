package mail

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Mailer = (*LogMailer)(nil)

// LogMailer writes messages to the log instead of delivering them. It stands
// in for SMTP during local development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the envelope at INFO and the body at DEBUG.
func (m *LogMailer) Send(ctx context.Context, msg driven.Message) error {
	m.logger.InfoContext(ctx, "mail not delivered: no smtp host configured",
		"to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	m.logger.DebugContext(ctx, "mail body", "to", msg.To, "body", msg.Body)
	return nil
}
