// Package repository persists WhatsApp gateway connections.
package repository

import (
	"context"
	"errors"
	"time"

	"zapflow_backend/internal/whatsapp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("connection not found")

// Connection is a messaging gateway credential record. Which credential
// fields are populated depends on Provider.
type Connection struct {
	ID                            uuid.UUID
	OrganizationID                uuid.UUID
	Name                          string
	Provider                      string
	Status                        string
	APIURL                        *string
	APIKey                        *string
	InstanceName                  *string
	InstanceID                    *string
	WAPIToken                     *string
	WebhookToken                  string
	LeadDistributionEnabled       bool
	LeadDistributionLastUserIndex int
	CreatedAt                     time.Time
}

// Gateway returns the credential view the provider layer consumes.
func (c Connection) Gateway() whatsapp.Connection {
	return whatsapp.Connection{
		Provider:     c.Provider,
		APIURL:       deref(c.APIURL),
		APIKey:       deref(c.APIKey),
		InstanceName: deref(c.InstanceName),
		InstanceID:   deref(c.InstanceID),
		WAPIToken:    deref(c.WAPIToken),
	}
}

// Connected reports whether the connection is eligible for dispatch.
func (c Connection) Connected() bool {
	return c.Status == "connected"
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const connectionColumns = `id, organization_id, name, provider, status, api_url, api_key,
	instance_name, instance_id, wapi_token, webhook_token,
	lead_distribution_enabled, lead_distribution_last_user_index, created_at`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Connection, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE id = $1
	`, id)
	return scanConnection(row)
}

// GetByWebhookToken resolves the connection an inbound webhook belongs to.
func (r *Repository) GetByWebhookToken(ctx context.Context, token string) (Connection, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE webhook_token = $1
	`, token)
	return scanConnection(row)
}

// ActiveByOrganization returns the organization's most recently created
// connected connection, used by nurturing WhatsApp steps.
func (r *Repository) ActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (Connection, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE organization_id = $1 AND status = 'connected'
		ORDER BY created_at DESC
		LIMIT 1
	`, organizationID)
	return scanConnection(row)
}

func scanConnection(row pgx.Row) (Connection, error) {
	var c Connection
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Provider, &c.Status,
		&c.APIURL, &c.APIKey, &c.InstanceName, &c.InstanceID, &c.WAPIToken,
		&c.WebhookToken, &c.LeadDistributionEnabled, &c.LeadDistributionLastUserIndex,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Connection{}, ErrNotFound
	}
	if err != nil {
		return Connection{}, err
	}
	return c, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
