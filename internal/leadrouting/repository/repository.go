// Package repository persists per-connection lead distribution rosters and
// the assignment log.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("connection not found")

// Candidate is one roster member eligible for assignment in this round.
type Candidate struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AssignInTx runs fn inside one transaction with the connection row locked,
// so concurrent assignments on the same connection serialize on the cursor.
func (r *Repository) AssignInTx(ctx context.Context, connectionID uuid.UUID, fn func(tx pgx.Tx, enabled bool, lastIndex int) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var enabled bool
	var lastIndex int
	err = tx.QueryRow(ctx, `
		SELECT lead_distribution_enabled, lead_distribution_last_user_index
		FROM connections
		WHERE id = $1
		FOR UPDATE
	`, connectionID).Scan(&enabled, &lastIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := fn(tx, enabled, lastIndex); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Candidates lists active roster members under their daily cap, ordered by
// priority descending and then least recently assigned. Members whose daily
// counter belongs to an earlier date count as zero.
func (r *Repository) Candidates(ctx context.Context, tx pgx.Tx, connectionID uuid.UUID) ([]Candidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id
		FROM connection_lead_distribution
		WHERE connection_id = $1
		  AND is_active
		  AND (max_leads_per_day IS NULL
			OR leads_today_date < CURRENT_DATE
			OR leads_today < max_leads_per_day)
		ORDER BY priority DESC, last_lead_at ASC NULLS FIRST
	`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.UserID); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return candidates, nil
}

// RecordAssignment stamps the chosen member, advances the connection cursor
// and appends the assignment log, all within the caller's transaction.
func (r *Repository) RecordAssignment(ctx context.Context, tx pgx.Tx, connectionID, memberID uuid.UUID, userID, contactID uuid.UUID, newIndex int) error {
	if _, err := tx.Exec(ctx, `
		UPDATE connection_lead_distribution
		SET leads_today = CASE WHEN leads_today_date < CURRENT_DATE THEN 1 ELSE leads_today + 1 END,
			leads_today_date = CURRENT_DATE,
			last_lead_at = now()
		WHERE id = $1
	`, memberID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE connections
		SET lead_distribution_last_user_index = $2
		WHERE id = $1
	`, connectionID, newIndex); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO lead_distribution_log (connection_id, contact_id, user_id)
		VALUES ($1, $2, $3)
	`, connectionID, contactID, userID)
	return err
}

// RecordSkip logs an unassigned lead with the reason it could not be routed.
func (r *Repository) RecordSkip(ctx context.Context, tx pgx.Tx, connectionID, contactID uuid.UUID, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO lead_distribution_log (connection_id, contact_id, reason)
		VALUES ($1, $2, $3)
	`, connectionID, contactID, reason)
	return err
}
