// Package repository persists invoices and their reminder stamps.
package repository

import (
	"context"
	"time"

	"zapflow_backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReminderKind selects which reminder sweep an invoice belongs to.
type ReminderKind string

const (
	ReminderDue     ReminderKind = "due"
	ReminderOverdue ReminderKind = "overdue"
)

// PendingReminder is one open invoice that still needs a reminder.
type PendingReminder struct {
	InvoiceID      uuid.UUID
	OrganizationID uuid.UUID
	Kind           ReminderKind
	AmountCents    int64
	DueDate        time.Time
	Contact        messaging.Contact
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PendingReminders lists open invoices due today without a due reminder and
// overdue invoices without an overdue reminder.
func (r *Repository) PendingReminders(ctx context.Context, limit int) ([]PendingReminder, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.organization_id,
			CASE WHEN i.due_date < CURRENT_DATE THEN 'overdue' ELSE 'due' END,
			i.amount_cents, i.due_date,
			ct.name, ct.phone, COALESCE(ct.email, ''), COALESCE(ct.company, ''),
			COALESCE(ct.position, ''), COALESCE(ct.notes, '')
		FROM invoices i
		JOIN contacts ct ON ct.id = i.contact_id
		WHERE i.status = 'open'
		  AND (
			(i.due_date = CURRENT_DATE AND i.due_reminder_sent_at IS NULL)
			OR
			(i.due_date < CURRENT_DATE AND i.overdue_reminder_sent_at IS NULL)
		  )
		ORDER BY i.due_date ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PendingReminder
	for rows.Next() {
		var p PendingReminder
		if err := rows.Scan(
			&p.InvoiceID, &p.OrganizationID, &p.Kind, &p.AmountCents, &p.DueDate,
			&p.Contact.Name, &p.Contact.Phone, &p.Contact.Email, &p.Contact.Company,
			&p.Contact.Position, &p.Contact.Notes,
		); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// MarkReminderSent stamps the invoice so the sweep never repeats a reminder.
func (r *Repository) MarkReminderSent(ctx context.Context, invoiceID uuid.UUID, kind ReminderKind) error {
	column := "due_reminder_sent_at"
	if kind == ReminderOverdue {
		column = "overdue_reminder_sent_at"
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE invoices SET `+column+` = now() WHERE id = $1
	`, invoiceID)
	return err
}
