// Package service assigns inbound leads to roster members round-robin.
package service

import (
	"context"

	"zapflow_backend/internal/events"
	"zapflow_backend/internal/leadrouting/repository"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Skip reasons stored in the distribution log.
const (
	ReasonDisabled  = "distribution_disabled"
	ReasonNoMembers = "no_available_members"
)

// Assignment is the outcome of one routing decision.
type Assignment struct {
	Assigned bool
	UserID   uuid.UUID
	Reason   string
}

// Repository is the slice of the lead distribution store the service needs.
type Repository interface {
	AssignInTx(ctx context.Context, connectionID uuid.UUID, fn func(tx pgx.Tx, enabled bool, lastIndex int) error) error
	Candidates(ctx context.Context, tx pgx.Tx, connectionID uuid.UUID) ([]repository.Candidate, error)
	RecordAssignment(ctx context.Context, tx pgx.Tx, connectionID, memberID uuid.UUID, userID, contactID uuid.UUID, newIndex int) error
	RecordSkip(ctx context.Context, tx pgx.Tx, connectionID, contactID uuid.UUID, reason string) error
}

type Service struct {
	repo Repository
	log  *logger.Logger
}

func New(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// SelectNext routes one lead on the given connection. The candidate list is
// recomputed on every call; the stored cursor only remembers the previous
// position, so roster edits take effect immediately.
func (s *Service) SelectNext(ctx context.Context, connectionID, contactID uuid.UUID) (Assignment, error) {
	var result Assignment

	err := s.repo.AssignInTx(ctx, connectionID, func(tx pgx.Tx, enabled bool, lastIndex int) error {
		if !enabled {
			result = Assignment{Reason: ReasonDisabled}
			return s.repo.RecordSkip(ctx, tx, connectionID, contactID, ReasonDisabled)
		}

		candidates, err := s.repo.Candidates(ctx, tx, connectionID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			result = Assignment{Reason: ReasonNoMembers}
			return s.repo.RecordSkip(ctx, tx, connectionID, contactID, ReasonNoMembers)
		}

		next := (lastIndex + 1) % len(candidates)
		if next < 0 {
			next = 0
		}
		chosen := candidates[next]

		result = Assignment{Assigned: true, UserID: chosen.UserID}
		return s.repo.RecordAssignment(ctx, tx, connectionID, chosen.ID, chosen.UserID, contactID, next)
	})
	if err != nil {
		return Assignment{}, err
	}

	return result, nil
}

// SubscribeToLeads wires the service to lead events published by the
// webhook intake.
func (s *Service) SubscribeToLeads(bus events.Bus) {
	bus.Subscribe(events.LeadReceived{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		lead, ok := event.(events.LeadReceived)
		if !ok {
			return nil
		}

		assignment, err := s.SelectNext(ctx, lead.ConnectionID, lead.ContactID)
		if err != nil {
			return err
		}

		if assignment.Assigned {
			s.log.Info("lead assigned",
				"connectionId", lead.ConnectionID.String(),
				"contactId", lead.ContactID.String(),
				"userId", assignment.UserID.String(),
			)
		} else {
			s.log.Info("lead not assigned",
				"connectionId", lead.ConnectionID.String(),
				"contactId", lead.ContactID.String(),
				"reason", assignment.Reason,
			)
		}
		return nil
	}))
}
