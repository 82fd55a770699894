// Package service sends invoice due and overdue reminders.
package service

import (
	"context"
	"errors"
	"fmt"

	"zapflow_backend/internal/billing/repository"
	"zapflow_backend/internal/email"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"

	connrepo "zapflow_backend/internal/connection/repository"
	orgrepo "zapflow_backend/internal/organization/repository"

	"github.com/google/uuid"
)

const reminderBatchSize = 100

// Repository is the slice of the invoice store the reminder sweep needs.
type Repository interface {
	PendingReminders(ctx context.Context, limit int) ([]repository.PendingReminder, error)
	MarkReminderSent(ctx context.Context, invoiceID uuid.UUID, kind repository.ReminderKind) error
}

// ConnectionStore resolves the organization's active WhatsApp connection.
type ConnectionStore interface {
	ActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (connrepo.Connection, error)
}

// OrganizationStore resolves notification preferences and SMTP credentials.
type OrganizationStore interface {
	SMTPSettings(ctx context.Context, organizationID uuid.UUID) (email.SMTPSettings, error)
	NotificationChannels(ctx context.Context, organizationID uuid.UUID) (whatsappOn, emailOn bool, err error)
}

type Service struct {
	repo        Repository
	connections ConnectionStore
	orgs        OrganizationStore
	senders     whatsapp.SenderFactory
	mail        email.Sender
	log         *logger.Logger
}

func New(repo Repository, connections ConnectionStore, orgs OrganizationStore, senders whatsapp.SenderFactory, mail email.Sender, log *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		connections: connections,
		orgs:        orgs,
		senders:     senders,
		mail:        mail,
		log:         log.WithDispatcher("billing"),
	}
}

// Run executes one reminder sweep. An invoice is stamped once at least one
// enabled channel delivered, or when the organization has no channel
// enabled; otherwise it is retried on the next sweep.
func (s *Service) Run(ctx context.Context) error {
	pending, err := s.repo.PendingReminders(ctx, reminderBatchSize)
	if err != nil {
		return fmt.Errorf("list pending reminders: %w", err)
	}

	for _, reminder := range pending {
		s.processReminder(ctx, reminder)
	}

	return nil
}

func (s *Service) processReminder(ctx context.Context, reminder repository.PendingReminder) {
	whatsappOn, emailOn, err := s.orgs.NotificationChannels(ctx, reminder.OrganizationID)
	if err != nil {
		s.log.DatabaseError("billing load channels", err)
		return
	}

	delivered := false
	if whatsappOn && reminder.Contact.Phone != "" {
		if s.sendWhatsApp(ctx, reminder) {
			delivered = true
		}
	}
	if emailOn && reminder.Contact.Email != "" {
		if s.sendEmail(ctx, reminder) {
			delivered = true
		}
	}

	if delivered || (!whatsappOn && !emailOn) {
		if err := s.repo.MarkReminderSent(ctx, reminder.InvoiceID, reminder.Kind); err != nil {
			s.log.DatabaseError("billing mark reminder", err)
		}
	}
}

func (s *Service) sendWhatsApp(ctx context.Context, reminder repository.PendingReminder) bool {
	conn, err := s.connections.ActiveByOrganization(ctx, reminder.OrganizationID)
	if err != nil {
		if !errors.Is(err, connrepo.ErrNotFound) {
			s.log.DatabaseError("billing load connection", err)
		}
		return false
	}

	sender, err := s.senders(conn.Gateway())
	if err != nil {
		s.log.ProviderError(conn.Provider, reminder.Contact.Phone, err)
		return false
	}

	res, err := sender.SendMessage(ctx, reminder.Contact.Phone, reminderText(reminder), "text", "")
	if err != nil {
		s.log.ProviderError(conn.Provider, reminder.Contact.Phone, err)
		return false
	}
	return res.Success
}

func (s *Service) sendEmail(ctx context.Context, reminder repository.PendingReminder) bool {
	settings, err := s.orgs.SMTPSettings(ctx, reminder.OrganizationID)
	if err != nil {
		if !errors.Is(err, orgrepo.ErrNoSMTPSettings) {
			s.log.DatabaseError("billing load smtp settings", err)
		}
		return false
	}

	subject := "Lembrete de fatura"
	if reminder.Kind == repository.ReminderOverdue {
		subject = "Fatura em atraso"
	}

	if err := s.mail.Send(ctx, settings, reminder.Contact.Email, subject, reminderText(reminder)); err != nil {
		s.log.Error("billing email failed", "invoiceId", reminder.InvoiceID.String(), "error", err.Error())
		return false
	}
	return true
}

func reminderText(reminder repository.PendingReminder) string {
	amount := formatBRL(reminder.AmountCents)
	date := reminder.DueDate.Format("02/01/2006")

	if reminder.Kind == repository.ReminderOverdue {
		return fmt.Sprintf("Olá %s, sua fatura de %s venceu em %s. Por favor, regularize o pagamento.",
			reminder.Contact.Name, amount, date)
	}
	return fmt.Sprintf("Olá %s, sua fatura de %s vence hoje (%s).",
		reminder.Contact.Name, amount, date)
}

func formatBRL(cents int64) string {
	reais := cents / 100
	rest := cents % 100
	if rest < 0 {
		rest = -rest
	}
	return fmt.Sprintf("R$ %d,%02d", reais, rest)
}
