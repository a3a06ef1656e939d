package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Mailer = (*SMTPMailer)(nil)

// implicitTLSPort is the submission port that expects TLS from the first byte.
const implicitTLSPort = 465

const defaultDialTimeout = 15 * time.Second

// ErrStartTLSUnavailable is returned when TLS was requested but the server
// does not advertise STARTTLS.
var ErrStartTLSUnavailable = errors.New("smtp server does not offer STARTTLS")

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	settings model.MailSettings
	from     string
	clock    clockwork.Clock
	logger   *slog.Logger

	// tlsConfig overrides the TLS client configuration. Tests use it to
	// trust a self-signed server.
	tlsConfig *tls.Config
}

// NewSMTPMailer creates a mailer for the given relay. from is the envelope
// and header sender; when empty the username is used.
func NewSMTPMailer(settings model.MailSettings, from string, clock clockwork.Clock, logger *slog.Logger) *SMTPMailer {
	if from == "" {
		from = settings.Username
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{settings: settings, from: from, clock: clock, logger: logger}
}

// Send delivers msg. Port 465 with the TLS flag uses implicit TLS; any other
// port upgrades with STARTTLS when the server advertises it, and requires it
// when the TLS flag is set.
func (m *SMTPMailer) Send(ctx context.Context, msg driven.Message) error {
	sender, err := netmail.ParseAddress(m.from)
	if err != nil {
		return fmt.Errorf("parse sender %q: %w", m.from, err)
	}
	if _, err := netmail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}

	raw, err := buildMessage(m.from, msg, m.clock.Now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := m.secure(client); err != nil {
		return err
	}

	if m.settings.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.settings.Username, m.settings.Password, m.settings.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(sender.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}

	m.logger.Info("mail sent", "to", msg.To, "subject", msg.Subject, "attachments", len(msg.Attachments))
	return nil
}

func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.settings.Host, strconv.Itoa(m.settings.Port))

	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if m.implicitTLS() {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: m.clientTLSConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting: %w", err)
	}
	return client, nil
}

func (m *SMTPMailer) secure(client *smtp.Client) error {
	if m.implicitTLS() {
		return nil
	}

	ok, _ := client.Extension("STARTTLS")
	if !ok {
		if m.settings.TLS {
			return ErrStartTLSUnavailable
		}
		return nil
	}

	if err := client.StartTLS(m.clientTLSConfig()); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	return nil
}

func (m *SMTPMailer) implicitTLS() bool {
	return m.settings.TLS && m.settings.Port == implicitTLSPort
}

func (m *SMTPMailer) clientTLSConfig() *tls.Config {
	if m.tlsConfig != nil {
		return m.tlsConfig
	}
	return &tls.Config{ServerName: m.settings.Host, MinVersion: tls.VersionTLS12}
}
