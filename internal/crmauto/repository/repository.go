// Package repository persists CRM stage automation rules and their runs.
package repository

import (
	"context"

	"zapflow_backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PendingRun is one (rule, deal) pair whose stage dwell time passed the
// rule's delay and that has not been executed yet.
type PendingRun struct {
	RuleID         uuid.UUID
	DealID         uuid.UUID
	OrganizationID uuid.UUID
	Message        string
	Contact        messaging.Contact
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PendingRuns lists deal/rule pairs ready to fire. A pair that already has a
// run row, sent or failed, never fires again.
func (r *Repository) PendingRuns(ctx context.Context, limit int) ([]PendingRun, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, d.id, a.organization_id, a.message,
			ct.name, ct.phone, COALESCE(ct.email, ''), COALESCE(ct.company, ''),
			COALESCE(ct.position, ''), COALESCE(ct.notes, '')
		FROM crm_automation_rules a
		JOIN crm_deals d ON d.stage_id = a.stage_id
		JOIN contacts ct ON ct.id = d.contact_id
		WHERE a.is_active
		  AND d.stage_entered_at <= now() - make_interval(hours => a.delay_hours)
		  AND NOT EXISTS (
			SELECT 1 FROM crm_automation_runs r
			WHERE r.rule_id = a.id AND r.deal_id = d.id
		  )
		ORDER BY d.stage_entered_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PendingRun
	for rows.Next() {
		var p PendingRun
		if err := rows.Scan(
			&p.RuleID, &p.DealID, &p.OrganizationID, &p.Message,
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

// RecordRun appends the run outcome. The unique (rule, deal) constraint makes
// concurrent sweeps record a pair at most once.
func (r *Repository) RecordRun(ctx context.Context, ruleID, dealID uuid.UUID, status string, errorMessage *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO crm_automation_runs (rule_id, deal_id, status, error_message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rule_id, deal_id) DO NOTHING
	`, ruleID, dealID, status, errorMessage)
	return err
}
