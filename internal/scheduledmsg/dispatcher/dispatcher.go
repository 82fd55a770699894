// Package dispatcher delivers one-shot scheduled messages that came due.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/scheduledmsg/repository"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
)

const staleClaimAge = 10 * time.Minute

// Repository is the slice of the scheduled-message store the dispatcher
// needs.
type Repository interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ClaimDueMessages(ctx context.Context, limit int) ([]repository.DueMessage, error)
	MarkSent(ctx context.Context, messageID uuid.UUID) error
	MarkFailed(ctx context.Context, messageID uuid.UUID, reason string) error
}

type Dispatcher struct {
	repo      Repository
	senders   whatsapp.SenderFactory
	log       *logger.Logger
	batchSize int
}

func New(repo Repository, senders whatsapp.SenderFactory, cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		senders:   senders,
		log:       log.WithDispatcher("scheduled"),
		batchSize: cfg.GetDispatchBatchSize(),
	}
}

// Run executes one dispatch pass. Each message is settled exactly once, as
// sent or failed; only batch-level errors propagate to the cron host.
func (d *Dispatcher) Run(ctx context.Context) error {
	if _, err := d.repo.RequeueStale(ctx, staleClaimAge); err != nil {
		return fmt.Errorf("requeue stale messages: %w", err)
	}

	batch, err := d.repo.ClaimDueMessages(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim due messages: %w", err)
	}

	for _, msg := range batch {
		d.processMessage(ctx, msg)
	}

	return nil
}

func (d *Dispatcher) processMessage(ctx context.Context, msg repository.DueMessage) {
	sender, err := d.senders(msg.Connection.Gateway())
	if err != nil {
		d.settleFailed(ctx, msg, messaging.TranslateError(err.Error()))
		return
	}

	content := messaging.Interpolate(msg.Body, msg.Contact, messaging.DoubleBrace)

	res, err := sender.SendMessage(ctx, msg.Phone, content, msg.MessageType, msg.MediaURL)
	if err != nil {
		d.log.ProviderError(msg.Connection.Provider, msg.Phone, err)
		res = whatsapp.SendResult{Success: false, Error: err.Error()}
	}

	if !res.Success {
		d.settleFailed(ctx, msg, messaging.TranslateError(res.Error))
		return
	}

	if err := d.repo.MarkSent(ctx, msg.ID); err != nil {
		d.log.DatabaseError("scheduled mark sent", err)
	}
}

func (d *Dispatcher) settleFailed(ctx context.Context, msg repository.DueMessage, reason string) {
	if err := d.repo.MarkFailed(ctx, msg.ID, reason); err != nil {
		d.log.DatabaseError("scheduled mark failed", err)
	}
}
