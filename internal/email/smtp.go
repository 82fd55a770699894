// Package email delivers nurturing and billing emails through each
// organization's own SMTP server.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSettings are an organization's stored SMTP credentials, password
// already decrypted.
type SMTPSettings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Secure    bool
	FromName  string
	FromEmail string
}

// Sender delivers one email per call. A fresh SMTP client is built per send
// because credentials vary per organization.
type Sender interface {
	Send(ctx context.Context, settings SMTPSettings, toEmail, subject, body string) error
}

// SMTPSender implements Sender using go-mail.
type SMTPSender struct {
	// AllowSelfSigned skips server certificate validation. The platform has
	// historically accepted tenant SMTP servers with self-signed
	// certificates; the toggle exists so operators can tighten it.
	AllowSelfSigned bool
}

// NewSMTPSender creates a sender with the given certificate posture.
func NewSMTPSender(allowSelfSigned bool) *SMTPSender {
	return &SMTPSender{AllowSelfSigned: allowSelfSigned}
}

// Send delivers one email through the organization's SMTP server.
func (s *SMTPSender) Send(ctx context.Context, settings SMTPSettings, toEmail, subject, body string) error {
	if settings.Host == "" || settings.Port == 0 {
		return fmt.Errorf("smtp settings incomplete")
	}

	msg := gomail.NewMsg()
	fromName := settings.FromName
	if fromName == "" {
		fromName = settings.Username
	}
	if err := msg.FromFormat(fromName, settings.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	opts := []gomail.Option{
		gomail.WithPort(settings.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(settings.Username),
		gomail.WithPassword(settings.Password),
		gomail.WithTimeout(15 * time.Second),
	}

	// Port 587 without the secure flag means STARTTLS submission.
	if settings.Port == 587 && !settings.Secure {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	} else if settings.Secure {
		opts = append(opts, gomail.WithSSLPort(false))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}

	if s.AllowSelfSigned {
		opts = append(opts, gomail.WithTLSConfig(&tls.Config{
			ServerName:         settings.Host,
			InsecureSkipVerify: true,
		}))
	}

	client, err := gomail.NewClient(settings.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
