// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"zapflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// LeadReceived is published when a webhook delivers the first inbound
// message of a previously unknown contact.
type LeadReceived struct {
	BaseEvent
	ConnectionID   uuid.UUID `json:"connectionId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	ContactID      uuid.UUID `json:"contactId"`
	Phone          string    `json:"phone"`
}

func (e LeadReceived) EventName() string { return "webhook.lead.received" }

// InboundMessageReceived is published for every inbound message recorded by
// the webhook, known contact or not.
type InboundMessageReceived struct {
	BaseEvent
	ConnectionID   uuid.UUID `json:"connectionId"`
	ConversationID uuid.UUID `json:"conversationId"`
	ContactID      uuid.UUID `json:"contactId"`
}

func (e InboundMessageReceived) EventName() string { return "webhook.message.received" }
