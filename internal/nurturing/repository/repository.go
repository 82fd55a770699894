// Package repository persists nurturing sequences, enrollments and the
// append-only step log.
package repository

import (
	"context"
	"errors"
	"time"

	"zapflow_backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DueEnrollment is one claimed enrollment joined with sequence flags and
// contact attributes.
type DueEnrollment struct {
	ID             uuid.UUID
	SequenceID     uuid.UUID
	OrganizationID uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
	Contact        messaging.Contact
	CurrentStep    int
	EnrolledAt     time.Time
	PauseOnReply   bool
	ExitOnReply    bool
}

// Step is one sequence step definition, immutable during dispatch.
type Step struct {
	ID            uuid.UUID
	StepOrder     int
	Channel       string
	DelayValue    int
	DelayUnit     string
	Content       string
	EmailSubject  string
	MediaURL      string
	SkipIfReplied bool
}

// Delay converts the step's delay definition into a duration. Unknown units
// fall back to days.
func (s Step) Delay() time.Duration {
	switch s.DelayUnit {
	case "minutes":
		return time.Duration(s.DelayValue) * time.Minute
	case "hours":
		return time.Duration(s.DelayValue) * time.Hour
	default:
		return time.Duration(s.DelayValue) * 24 * time.Hour
	}
}

// StepLogEntry mirrors one nurturing_step_logs row for the ops surface.
type StepLogEntry struct {
	StepID       uuid.UUID
	Channel      string
	Status       string
	ErrorMessage *string
	SentAt       time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ScheduleInitialSteps stamps a first due time on fresh enrollments
// (current_step 0, nothing scheduled yet) of active sequences.
func (r *Repository) ScheduleInitialSteps(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments e
		SET next_step_at = now() + make_interval(
			mins  => CASE WHEN s.delay_unit = 'minutes' THEN s.delay_value ELSE 0 END,
			hours => CASE WHEN s.delay_unit = 'hours' THEN s.delay_value ELSE 0 END,
			days  => CASE WHEN s.delay_unit NOT IN ('minutes', 'hours') THEN s.delay_value ELSE 0 END)
		FROM nurturing_sequences q, nurturing_sequence_steps s
		WHERE e.status = 'active'
		  AND e.current_step = 0
		  AND e.next_step_at IS NULL
		  AND q.id = e.sequence_id
		  AND q.is_active
		  AND s.sequence_id = q.id
		  AND s.step_order = 1
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RequeueStale returns enrollments stuck in processing to the active pool.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'active', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDueEnrollments atomically claims up to limit due enrollments of
// active sequences, oldest due time first.
func (r *Repository) ClaimDueEnrollments(ctx context.Context, limit int) ([]DueEnrollment, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT e.id
			FROM nurturing_enrollments e
			JOIN nurturing_sequences q ON q.id = e.sequence_id
			WHERE e.status = 'active'
			  AND e.next_step_at IS NOT NULL
			  AND e.next_step_at <= now()
			  AND q.is_active
			ORDER BY e.next_step_at ASC
			LIMIT $1
			FOR UPDATE OF e SKIP LOCKED
		)
		UPDATE nurturing_enrollments e
		SET status = 'processing', claimed_at = now()
		FROM due, nurturing_sequences q, contacts ct
		WHERE e.id = due.id
		  AND q.id = e.sequence_id
		  AND ct.id = e.contact_id
		RETURNING e.id, e.sequence_id, q.organization_id, e.contact_id, e.conversation_id,
			ct.name, ct.phone, COALESCE(ct.email, ''), COALESCE(ct.company, ''),
			COALESCE(ct.position, ''), COALESCE(ct.notes, ''),
			e.current_step, e.enrolled_at, q.pause_on_reply, q.exit_on_reply
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DueEnrollment
	for rows.Next() {
		var e DueEnrollment
		if err := rows.Scan(
			&e.ID, &e.SequenceID, &e.OrganizationID, &e.ContactID, &e.ConversationID,
			&e.Contact.Name, &e.Contact.Phone, &e.Contact.Email, &e.Contact.Company,
			&e.Contact.Position, &e.Contact.Notes,
			&e.CurrentStep, &e.EnrolledAt, &e.PauseOnReply, &e.ExitOnReply,
		); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// StepByOrder fetches one step definition; ok is false past the end of the
// sequence.
func (r *Repository) StepByOrder(ctx context.Context, sequenceID uuid.UUID, order int) (Step, bool, error) {
	var s Step
	err := r.pool.QueryRow(ctx, `
		SELECT id, step_order, channel, delay_value, delay_unit,
			COALESCE(content, ''), COALESCE(email_subject, ''), COALESCE(media_url, ''),
			skip_if_replied
		FROM nurturing_sequence_steps
		WHERE sequence_id = $1 AND step_order = $2
	`, sequenceID, order).Scan(
		&s.ID, &s.StepOrder, &s.Channel, &s.DelayValue, &s.DelayUnit,
		&s.Content, &s.EmailSubject, &s.MediaURL, &s.SkipIfReplied,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Step{}, false, nil
	}
	if err != nil {
		return Step{}, false, err
	}
	return s, true, nil
}

// HasRepliedSince reports whether the conversation received any inbound
// message after the given time. Enrollments without a conversation have no
// reply signal.
func (r *Repository) HasRepliedSince(ctx context.Context, conversationID *uuid.UUID, since time.Time) (bool, error) {
	if conversationID == nil {
		return false, nil
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM conversation_messages
		WHERE conversation_id = $1 AND direction = 'inbound' AND created_at > $2
	`, *conversationID, since).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertStepLog appends one audit row. Log rows are never updated.
func (r *Repository) InsertStepLog(ctx context.Context, enrollmentID, stepID uuid.UUID, channel, status string, errorMessage *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO nurturing_step_logs (enrollment_id, step_id, channel, status, error_message)
		VALUES ($1, $2, $3, $4, $5)
	`, enrollmentID, stepID, channel, status, errorMessage)
	return err
}

// Advance moves the enrollment to the given step and schedules the next one.
func (r *Repository) Advance(ctx context.Context, enrollmentID uuid.UUID, newStep int, nextAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET current_step = $2, next_step_at = $3, status = 'active',
			claimed_at = NULL, last_activity_at = now()
		WHERE id = $1
	`, enrollmentID, newStep, nextAt)
	return err
}

// Complete terminates the enrollment and bumps the sequence counter.
func (r *Repository) Complete(ctx context.Context, enrollmentID, sequenceID uuid.UUID, finalStep int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'completed', current_step = $2, next_step_at = NULL,
			claimed_at = NULL, last_activity_at = now()
		WHERE id = $1
	`, enrollmentID, finalStep); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE nurturing_sequences
		SET completed_count = completed_count + 1
		WHERE id = $1
	`, sequenceID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Pause suspends the enrollment with a reason; it stays resumable.
func (r *Repository) Pause(ctx context.Context, enrollmentID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'paused', pause_reason = $2, claimed_at = NULL, last_activity_at = now()
		WHERE id = $1
	`, enrollmentID, reason)
	return err
}

// Exit terminates the enrollment without completing it.
func (r *Repository) Exit(ctx context.Context, enrollmentID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'exited', pause_reason = $2, next_step_at = NULL,
			claimed_at = NULL, last_activity_at = now()
		WHERE id = $1
	`, enrollmentID, reason)
	return err
}

// RescheduleCurrentStep retries the same step later; current_step is
// untouched.
func (r *Repository) RescheduleCurrentStep(ctx context.Context, enrollmentID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'active', next_step_at = $2, claimed_at = NULL
		WHERE id = $1
	`, enrollmentID, at)
	return err
}

// IncrementStepSent bumps the per-step delivery counter.
func (r *Repository) IncrementStepSent(ctx context.Context, stepID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_sequence_steps
		SET sent_count = sent_count + 1
		WHERE id = $1
	`, stepID)
	return err
}

// StepLogs lists an enrollment's audit trail for the ops surface.
func (r *Repository) StepLogs(ctx context.Context, enrollmentID uuid.UUID) ([]StepLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT step_id, channel, status, error_message, sent_at
		FROM nurturing_step_logs
		WHERE enrollment_id = $1
		ORDER BY sent_at ASC
	`, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StepLogEntry
	for rows.Next() {
		var e StepLogEntry
		if err := rows.Scan(&e.StepID, &e.Channel, &e.Status, &e.ErrorMessage, &e.SentAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return entries, nil
}
