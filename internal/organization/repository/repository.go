// Package repository reads organization-level settings the dispatchers need.
package repository

import (
	"context"
	"errors"
	"fmt"

	"zapflow_backend/internal/email"
	"zapflow_backend/platform/secrets"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoSMTPSettings = errors.New("organization has no smtp settings")

type Repository struct {
	pool    *pgxpool.Pool
	smtpKey []byte
}

func New(pool *pgxpool.Pool, smtpKey []byte) *Repository {
	return &Repository{pool: pool, smtpKey: smtpKey}
}

// SMTPSettings returns the organization's SMTP credentials with the password
// decrypted. Organizations without a configured host have no settings.
func (r *Repository) SMTPSettings(ctx context.Context, organizationID uuid.UUID) (email.SMTPSettings, error) {
	var (
		settings    email.SMTPSettings
		host        *string
		port        *int
		username    *string
		passwordEnc *string
		fromName    *string
		fromEmail   *string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT smtp_host, smtp_port, smtp_username, smtp_password_enc,
			smtp_secure, smtp_from_name, smtp_from_email
		FROM organizations
		WHERE id = $1
	`, organizationID).Scan(&host, &port, &username, &passwordEnc, &settings.Secure, &fromName, &fromEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return email.SMTPSettings{}, ErrNoSMTPSettings
	}
	if err != nil {
		return email.SMTPSettings{}, err
	}

	if host == nil || *host == "" || port == nil {
		return email.SMTPSettings{}, ErrNoSMTPSettings
	}

	settings.Host = *host
	settings.Port = *port
	if username != nil {
		settings.Username = *username
	}
	if fromName != nil {
		settings.FromName = *fromName
	}
	if fromEmail != nil {
		settings.FromEmail = *fromEmail
	}
	if settings.FromEmail == "" {
		settings.FromEmail = settings.Username
	}

	if passwordEnc != nil && *passwordEnc != "" {
		password, err := secrets.Decrypt(*passwordEnc, r.smtpKey)
		if err != nil {
			return email.SMTPSettings{}, fmt.Errorf("decrypt smtp password: %w", err)
		}
		settings.Password = password
	}

	return settings, nil
}

// NotificationChannels reports which billing reminder channels the
// organization has enabled.
func (r *Repository) NotificationChannels(ctx context.Context, organizationID uuid.UUID) (whatsappOn, emailOn bool, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT billing_notify_whatsapp, billing_notify_email
		FROM organizations
		WHERE id = $1
	`, organizationID).Scan(&whatsappOn, &emailOn)
	return whatsappOn, emailOn, err
}
