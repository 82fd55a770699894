// Package repository persists campaigns and their per-contact messages.
package repository

import (
	"context"
	"time"

	"zapflow_backend/internal/connection/repository"
	"zapflow_backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DueMessage is one claimed campaign message joined with everything the
// dispatcher needs to send it: contact attributes for interpolation and the
// connection credentials of the parent campaign.
type DueMessage struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	Phone      string
	TemplateID uuid.UUID
	Contact    messaging.Contact
	Connection repository.Connection
}

// TemplateItem is one content item of a message template, ordered by position.
type TemplateItem struct {
	Position    int
	MessageType string
	Body        string
	MediaURL    string
}

// Campaign mirrors the campaigns row for the ops surface.
type Campaign struct {
	ID          uuid.UUID
	Name        string
	Status      string
	SentCount   int
	FailedCount int
	Pending     int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StartDueCampaigns flips pending campaigns to running once any of their
// messages is due.
func (r *Repository) StartDueCampaigns(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = 'running', updated_at = now()
		WHERE status = 'pending'
		  AND id IN (
			SELECT DISTINCT campaign_id
			FROM campaign_messages
			WHERE status = 'pending' AND scheduled_at <= now()
		  )
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RequeueStale returns messages stuck in processing (a crashed pass) to the
// pending pool.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaign_messages
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDueMessages atomically claims up to limit due messages, oldest first.
// FOR UPDATE SKIP LOCKED keeps overlapping passes from double-sending.
func (r *Repository) ClaimDueMessages(ctx context.Context, limit int) ([]DueMessage, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT m.id
			FROM campaign_messages m
			JOIN campaigns c ON c.id = m.campaign_id
			JOIN connections cn ON cn.id = c.connection_id
			WHERE m.status = 'pending'
			  AND c.status = 'running'
			  AND cn.status = 'connected'
			  AND m.scheduled_at <= now()
			ORDER BY m.scheduled_at ASC
			LIMIT $1
			FOR UPDATE OF m SKIP LOCKED
		)
		UPDATE campaign_messages m
		SET status = 'processing', claimed_at = now()
		FROM due, campaigns c, contacts ct, connections cn
		WHERE m.id = due.id
		  AND c.id = m.campaign_id
		  AND ct.id = m.contact_id
		  AND cn.id = c.connection_id
		RETURNING m.id, m.campaign_id, m.phone, m.template_id,
			ct.name, ct.phone, COALESCE(ct.email, ''), COALESCE(ct.company, ''),
			COALESCE(ct.position, ''), COALESCE(ct.notes, ''),
			cn.id, cn.organization_id, cn.name, cn.provider, cn.status,
			cn.api_url, cn.api_key, cn.instance_name, cn.instance_id, cn.wapi_token,
			cn.webhook_token, cn.lead_distribution_enabled,
			cn.lead_distribution_last_user_index, cn.created_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DueMessage
	for rows.Next() {
		var m DueMessage
		if err := rows.Scan(
			&m.ID, &m.CampaignID, &m.Phone, &m.TemplateID,
			&m.Contact.Name, &m.Contact.Phone, &m.Contact.Email, &m.Contact.Company,
			&m.Contact.Position, &m.Contact.Notes,
			&m.Connection.ID, &m.Connection.OrganizationID, &m.Connection.Name,
			&m.Connection.Provider, &m.Connection.Status,
			&m.Connection.APIURL, &m.Connection.APIKey, &m.Connection.InstanceName,
			&m.Connection.InstanceID, &m.Connection.WAPIToken,
			&m.Connection.WebhookToken, &m.Connection.LeadDistributionEnabled,
			&m.Connection.LeadDistributionLastUserIndex, &m.Connection.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// TemplateItems lists the content items of a template in send order.
func (r *Repository) TemplateItems(ctx context.Context, templateID uuid.UUID) ([]TemplateItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT position, message_type, COALESCE(body, ''), COALESCE(media_url, '')
		FROM message_template_items
		WHERE template_id = $1
		ORDER BY position ASC
	`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TemplateItem
	for rows.Next() {
		var item TemplateItem
		if err := rows.Scan(&item.Position, &item.MessageType, &item.Body, &item.MediaURL); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

// MarkSent settles a claimed message as sent and bumps the campaign counter.
// The transition is one-way; sent messages are never retried or reverted.
func (r *Repository) MarkSent(ctx context.Context, messageID, campaignID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE campaign_messages
		SET status = 'sent', sent_at = now(), error_message = NULL
		WHERE id = $1
	`, messageID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE campaigns
		SET sent_count = sent_count + 1, updated_at = now()
		WHERE id = $1
	`, campaignID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkFailed settles a claimed message as failed with a translated reason.
func (r *Repository) MarkFailed(ctx context.Context, messageID, campaignID uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE campaign_messages
		SET status = 'failed', error_message = $2
		WHERE id = $1
	`, messageID, reason); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE campaigns
		SET failed_count = failed_count + 1, updated_at = now()
		WHERE id = $1
	`, campaignID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CompleteFinishedCampaigns closes out running campaigns with no message
// left to send.
func (r *Repository) CompleteFinishedCampaigns(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE campaigns c
		SET status = 'completed', updated_at = now()
		WHERE c.status = 'running'
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_messages m
			WHERE m.campaign_id = c.id AND m.status IN ('pending', 'processing')
		  )
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetProgress returns campaign counters for the ops surface.
func (r *Repository) GetProgress(ctx context.Context, id uuid.UUID) (Campaign, error) {
	var c Campaign
	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.status, c.sent_count, c.failed_count,
			(SELECT COUNT(*) FROM campaign_messages m
			 WHERE m.campaign_id = c.id AND m.status IN ('pending', 'processing'))
		FROM campaigns c
		WHERE c.id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Status, &c.SentCount, &c.FailedCount, &c.Pending)
	if err != nil {
		return Campaign{}, err
	}
	return c, nil
}
