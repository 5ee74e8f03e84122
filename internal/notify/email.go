package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// SMTP encryption modes
const (
	EncryptionNone     = "none"
	EncryptionStartTLS = "starttls"
	EncryptionTLS      = "tls"
)

// SMTPConfig describes the outgoing mail server
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Encryption string
}

// Email sends one message to a set of recipients, all in BCC
type Email struct {
	smtp       SMTPConfig
	recipients []string
}

// NewEmail returns an email destination
func NewEmail(smtp SMTPConfig, recipients []string) *Email {
	return &Email{smtp: smtp, recipients: recipients}
}

func (e *Email) Name() string {
	return "email:" + strings.Join(e.recipients, ",")
}

func (e *Email) Send(ctx context.Context, msg Message, event models.NotificationEvent) error {
	m, err := e.buildMessage(msg, event)
	if err != nil {
		return err
	}
	client, err := e.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *Email) buildMessage(msg Message, event models.NotificationEvent) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(e.smtp.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.Bcc(e.recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if event.HasSnapshot() {
		m.AttachReadSeeker(SnapshotFilename, bytes.NewReader(event.Snapshot), mail.WithFileContentType(mail.ContentType("image/jpeg")))
	}
	return m, nil
}

func (e *Email) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(e.smtp.Port),
		mail.WithTimeout(20 * time.Second),
	}
	switch e.smtp.Encryption {
	case EncryptionTLS:
		opts = append(opts, mail.WithSSL())
	case EncryptionStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if e.smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.smtp.Username),
			mail.WithPassword(e.smtp.Password),
		)
	}

	client, err := mail.NewClient(e.smtp.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}
