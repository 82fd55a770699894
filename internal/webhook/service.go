package webhook

import (
	"context"
	"strings"

	"zapflow_backend/internal/events"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/phone"
	"zapflow_backend/platform/sanitize"

	connrepo "zapflow_backend/internal/connection/repository"
)

// InboundMessage is one message reported by a gateway webhook, already
// reduced to the fields both providers share.
type InboundMessage struct {
	Phone             string
	Name              string
	Body              string
	ProviderMessageID string
}

// Service records inbound messages and publishes the resulting domain events.
type Service struct {
	repo     *Repository
	eventBus events.Bus
	log      *logger.Logger
}

// NewService creates a new webhook service.
func NewService(repo *Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		log:      log,
	}
}

// ProcessInbound stores one inbound message against its conversation. A
// previously unknown phone number additionally publishes a LeadReceived
// event, which feeds lead distribution.
func (s *Service) ProcessInbound(ctx context.Context, conn connrepo.Connection, msg InboundMessage) error {
	// Gateways report the sender as a JID; keep only the number part.
	number := msg.Phone
	if at := strings.IndexByte(number, '@'); at >= 0 {
		number = number[:at]
	}
	number = phone.NormalizeE164(number)
	name := sanitize.Text(msg.Name)
	body := sanitize.Text(msg.Body)

	contactID, isNew, err := s.repo.UpsertContact(ctx, conn.OrganizationID, number, name)
	if err != nil {
		return err
	}

	conversationID, err := s.repo.EnsureConversation(ctx, conn.OrganizationID, conn.ID, contactID)
	if err != nil {
		return err
	}

	if err := s.repo.RecordInbound(ctx, conversationID, body, msg.ProviderMessageID); err != nil {
		return err
	}

	s.eventBus.Publish(ctx, events.InboundMessageReceived{
		BaseEvent:      events.NewBaseEvent(),
		ConnectionID:   conn.ID,
		ConversationID: conversationID,
		ContactID:      contactID,
	})

	if isNew {
		s.log.Info("lead received",
			"connectionId", conn.ID.String(),
			"contactId", contactID.String(),
		)
		s.eventBus.Publish(ctx, events.LeadReceived{
			BaseEvent:      events.NewBaseEvent(),
			ConnectionID:   conn.ID,
			OrganizationID: conn.OrganizationID,
			ContactID:      contactID,
			Phone:          number,
		})
	}

	return nil
}
