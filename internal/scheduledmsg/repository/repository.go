// Package repository persists one-shot scheduled messages.
package repository

import (
	"context"
	"time"

	"zapflow_backend/internal/messaging"

	connrepo "zapflow_backend/internal/connection/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DueMessage is one claimed scheduled message joined with its contact and
// target connection.
type DueMessage struct {
	ID          uuid.UUID
	Body        string
	MessageType string
	MediaURL    string
	Phone       string
	Contact     messaging.Contact
	Connection  connrepo.Connection
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RequeueStale returns messages stuck in processing to the pending pool.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDueMessages atomically claims up to limit due messages, oldest first.
func (r *Repository) ClaimDueMessages(ctx context.Context, limit int) ([]DueMessage, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT m.id
			FROM scheduled_messages m
			WHERE m.status = 'pending' AND m.scheduled_at <= now()
			ORDER BY m.scheduled_at ASC
			LIMIT $1
			FOR UPDATE OF m SKIP LOCKED
		)
		UPDATE scheduled_messages m
		SET status = 'processing', claimed_at = now()
		FROM due, contacts ct, connections cn
		WHERE m.id = due.id
		  AND ct.id = m.contact_id
		  AND cn.id = m.connection_id
		RETURNING m.id, m.body, m.message_type, COALESCE(m.media_url, ''),
			ct.phone, ct.name, COALESCE(ct.email, ''), COALESCE(ct.company, ''),
			COALESCE(ct.position, ''), COALESCE(ct.notes, ''),
			cn.id, cn.organization_id, cn.name, cn.provider, cn.status,
			cn.api_url, cn.api_key, cn.instance_name, cn.instance_id, cn.wapi_token
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DueMessage
	for rows.Next() {
		var m DueMessage
		if err := rows.Scan(
			&m.ID, &m.Body, &m.MessageType, &m.MediaURL,
			&m.Phone, &m.Contact.Name, &m.Contact.Email, &m.Contact.Company,
			&m.Contact.Position, &m.Contact.Notes,
			&m.Connection.ID, &m.Connection.OrganizationID, &m.Connection.Name,
			&m.Connection.Provider, &m.Connection.Status,
			&m.Connection.APIURL, &m.Connection.APIKey, &m.Connection.InstanceName,
			&m.Connection.InstanceID, &m.Connection.WAPIToken,
		); err != nil {
			return nil, err
		}
		m.Contact.Phone = m.Phone
		results = append(results, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// MarkSent settles a message as delivered.
func (r *Repository) MarkSent(ctx context.Context, messageID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages
		SET status = 'sent', sent_at = now(), claimed_at = NULL, error_message = NULL
		WHERE id = $1
	`, messageID)
	return err
}

// MarkFailed settles a message as failed with a stored reason. Settled
// messages are never retried.
func (r *Repository) MarkFailed(ctx context.Context, messageID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_messages
		SET status = 'failed', error_message = $2, claimed_at = NULL
		WHERE id = $1
	`, messageID, reason)
	return err
}
