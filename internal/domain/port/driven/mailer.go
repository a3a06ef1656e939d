package driven

import (
	"context"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// Attachment is a file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email. Body is markdown; adapters render the HTML
// alternative from it.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer defines the driven port for outgoing mail.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFactory builds a Mailer from a user's own relay settings.
type MailerFactory interface {
	ForSettings(settings model.MailSettings, from string) Mailer
}
