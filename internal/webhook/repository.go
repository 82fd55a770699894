package webhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the inbound side of conversations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertContact finds or creates the contact for a normalized phone number.
// isNew reports whether the row was inserted by this call, which is what
// makes an inbound message a lead.
func (r *Repository) UpsertContact(ctx context.Context, organizationID uuid.UUID, phone, name string) (contactID uuid.UUID, isNew bool, err error) {
	err = r.pool.QueryRow(ctx, `
		INSERT INTO contacts (organization_id, phone, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, phone) DO UPDATE
		SET name = CASE WHEN contacts.name = '' THEN EXCLUDED.name ELSE contacts.name END,
			updated_at = now()
		RETURNING id, (xmax = 0)
	`, organizationID, phone, name).Scan(&contactID, &isNew)
	return contactID, isNew, err
}

// EnsureConversation finds or creates the conversation between a connection
// and a contact, stamping last_message_at either way.
func (r *Repository) EnsureConversation(ctx context.Context, organizationID, connectionID, contactID uuid.UUID) (uuid.UUID, error) {
	var conversationID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (organization_id, connection_id, contact_id, last_message_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (connection_id, contact_id) DO UPDATE
		SET last_message_at = now()
		RETURNING id
	`, organizationID, connectionID, contactID).Scan(&conversationID)
	return conversationID, err
}

// RecordInbound appends one inbound message. The nurturing dispatcher reads
// these rows as the reply signal.
func (r *Repository) RecordInbound(ctx context.Context, conversationID uuid.UUID, body, providerMessageID string) error {
	var idPtr *string
	if providerMessageID != "" {
		idPtr = &providerMessageID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, direction, body, provider_message_id)
		VALUES ($1, 'inbound', $2, $3)
	`, conversationID, body, idPtr)
	return err
}
