// Package dispatcher drives due campaign messages to a terminal status.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"zapflow_backend/internal/campaign/repository"
	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrNoContent is recorded verbatim when a template resolves to zero items.
const ErrNoContent = "Mensagem sem conteúdo"

const staleClaimAge = 10 * time.Minute

// Repository defines the persistence the dispatcher needs.
type Repository interface {
	StartDueCampaigns(ctx context.Context) (int64, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ClaimDueMessages(ctx context.Context, limit int) ([]repository.DueMessage, error)
	TemplateItems(ctx context.Context, templateID uuid.UUID) ([]repository.TemplateItem, error)
	MarkSent(ctx context.Context, messageID, campaignID uuid.UUID) error
	MarkFailed(ctx context.Context, messageID, campaignID uuid.UUID, reason string) error
	CompleteFinishedCampaigns(ctx context.Context) (int64, error)
}

// Dispatcher is one stateless campaign pass. Each invocation starts due
// campaigns, sends a claimed batch and sweeps finished campaigns.
type Dispatcher struct {
	repo      Repository
	senders   whatsapp.SenderFactory
	log       *logger.Logger
	batchSize int
	itemDelay time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

func New(repo Repository, senders whatsapp.SenderFactory, cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		senders:   senders,
		log:       log.WithDispatcher("campaign"),
		batchSize: cfg.GetDispatchBatchSize(),
		itemDelay: cfg.GetCampaignItemDelay(),
		sleep:     sleepContext,
	}
}

// Run executes one dispatch pass. Per-message failures are settled as failed
// statuses and never abort the batch; only batch-level errors (the claim or
// sweep queries failing) propagate to the cron host.
func (d *Dispatcher) Run(ctx context.Context) error {
	if _, err := d.repo.RequeueStale(ctx, staleClaimAge); err != nil {
		return fmt.Errorf("requeue stale messages: %w", err)
	}

	started, err := d.repo.StartDueCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("start due campaigns: %w", err)
	}
	if started > 0 {
		d.log.Info("campaigns started", "count", started)
	}

	batch, err := d.repo.ClaimDueMessages(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim due messages: %w", err)
	}

	for _, msg := range batch {
		d.processMessage(ctx, msg)
	}

	completed, err := d.repo.CompleteFinishedCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("complete finished campaigns: %w", err)
	}
	if completed > 0 {
		d.log.Info("campaigns completed", "count", completed)
	}

	return nil
}

func (d *Dispatcher) processMessage(ctx context.Context, msg repository.DueMessage) {
	items, err := d.repo.TemplateItems(ctx, msg.TemplateID)
	if err != nil {
		d.settleFailed(ctx, msg, messaging.TranslateError(err.Error()))
		return
	}

	// A template with no content is a local validation failure; the gateway
	// is never called.
	if len(items) == 0 {
		d.settleFailed(ctx, msg, ErrNoContent)
		return
	}

	sender, err := d.senders(msg.Connection.Gateway())
	if err != nil {
		d.settleFailed(ctx, msg, messaging.TranslateError(err.Error()))
		return
	}

	results := make([]whatsapp.SendResult, 0, len(items))
	for i, item := range items {
		content := messaging.Interpolate(item.Body, msg.Contact, messaging.DoubleBrace)

		res, err := sender.SendMessage(ctx, msg.Phone, content, item.MessageType, item.MediaURL)
		if err != nil {
			// Transport-level failures collapse into the same handling as
			// provider-reported ones.
			res = whatsapp.SendResult{Success: false, Error: err.Error()}
			d.log.ProviderError(msg.Connection.Provider, msg.Phone, err)
		}
		results = append(results, res)

		if i < len(items)-1 {
			d.sleep(ctx, d.itemDelay)
		}
	}

	// The first item decides the message outcome; later item failures stay
	// in the results only. This mirrors the platform's historical behavior.
	first := results[0]
	if first.Success {
		if err := d.repo.MarkSent(ctx, msg.ID, msg.CampaignID); err != nil {
			d.log.DatabaseError("campaign mark sent", err)
		}
		return
	}

	d.settleFailed(ctx, msg, messaging.TranslateError(first.Error))
}

func (d *Dispatcher) settleFailed(ctx context.Context, msg repository.DueMessage, reason string) {
	if err := d.repo.MarkFailed(ctx, msg.ID, msg.CampaignID, reason); err != nil {
		d.log.DatabaseError("campaign mark failed", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
