// Package service fires stage-dwell automation messages for CRM deals.
package service

import (
	"context"
	"errors"
	"fmt"

	"zapflow_backend/internal/crmauto/repository"
	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"

	connrepo "zapflow_backend/internal/connection/repository"

	"github.com/google/uuid"
)

const runBatchSize = 100

// Local failure messages stored with failed runs.
const (
	ErrNoPhone      = "Contato sem número de telefone."
	ErrNoConnection = "Nenhuma conexão de WhatsApp ativa."
)

// Repository is the slice of the automation store the sweep needs.
type Repository interface {
	PendingRuns(ctx context.Context, limit int) ([]repository.PendingRun, error)
	RecordRun(ctx context.Context, ruleID, dealID uuid.UUID, status string, errorMessage *string) error
}

// ConnectionStore resolves the organization's active WhatsApp connection.
type ConnectionStore interface {
	ActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (connrepo.Connection, error)
}

type Service struct {
	repo        Repository
	connections ConnectionStore
	senders     whatsapp.SenderFactory
	log         *logger.Logger
}

func New(repo Repository, connections ConnectionStore, senders whatsapp.SenderFactory, log *logger.Logger) *Service {
	return &Service{
		repo:        repo,
		connections: connections,
		senders:     senders,
		log:         log.WithDispatcher("crm-automation"),
	}
}

// Run executes one sweep. Each (rule, deal) pair is recorded exactly once,
// sent or failed; only batch-level errors propagate to the cron host.
func (s *Service) Run(ctx context.Context) error {
	pending, err := s.repo.PendingRuns(ctx, runBatchSize)
	if err != nil {
		return fmt.Errorf("list pending runs: %w", err)
	}

	for _, run := range pending {
		s.processRun(ctx, run)
	}

	return nil
}

func (s *Service) processRun(ctx context.Context, run repository.PendingRun) {
	if failure := s.send(ctx, run); failure != "" {
		s.record(ctx, run, "failed", &failure)
		return
	}
	s.record(ctx, run, "sent", nil)
}

func (s *Service) send(ctx context.Context, run repository.PendingRun) string {
	if run.Contact.Phone == "" {
		return ErrNoPhone
	}

	conn, err := s.connections.ActiveByOrganization(ctx, run.OrganizationID)
	if err != nil {
		if errors.Is(err, connrepo.ErrNotFound) {
			return ErrNoConnection
		}
		s.log.DatabaseError("crm load connection", err)
		return messaging.TranslateError(err.Error())
	}

	sender, err := s.senders(conn.Gateway())
	if err != nil {
		return messaging.TranslateError(err.Error())
	}

	content := messaging.Interpolate(run.Message, run.Contact, messaging.SingleBrace)

	res, err := sender.SendMessage(ctx, run.Contact.Phone, content, "text", "")
	if err != nil {
		s.log.ProviderError(conn.Provider, run.Contact.Phone, err)
		return messaging.TranslateError(err.Error())
	}
	if !res.Success {
		return messaging.TranslateError(res.Error)
	}
	return ""
}

func (s *Service) record(ctx context.Context, run repository.PendingRun, status string, errorMessage *string) {
	if err := s.repo.RecordRun(ctx, run.RuleID, run.DealID, status, errorMessage); err != nil {
		s.log.DatabaseError("crm record run", err)
	}
}
