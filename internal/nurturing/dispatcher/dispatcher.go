// Package dispatcher advances due nurturing enrollments one step per pass.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zapflow_backend/internal/email"
	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/nurturing/repository"
	orgrepo "zapflow_backend/internal/organization/repository"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	connrepo "zapflow_backend/internal/connection/repository"

	"github.com/google/uuid"
)

// Local failure messages. These never reach a gateway, so they are stored
// as-is instead of going through the error translator.
const (
	ErrNoPhone      = "Contato sem número de telefone."
	ErrNoEmail      = "Contato sem endereço de e-mail."
	ErrNoConnection = "Nenhuma conexão de WhatsApp ativa."
	ErrNoSMTP       = "Organização sem configuração de SMTP."
)

const staleClaimAge = 10 * time.Minute

// Repository is the slice of the nurturing store the dispatcher needs.
type Repository interface {
	ScheduleInitialSteps(ctx context.Context) (int64, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ClaimDueEnrollments(ctx context.Context, limit int) ([]repository.DueEnrollment, error)
	StepByOrder(ctx context.Context, sequenceID uuid.UUID, order int) (repository.Step, bool, error)
	HasRepliedSince(ctx context.Context, conversationID *uuid.UUID, since time.Time) (bool, error)
	InsertStepLog(ctx context.Context, enrollmentID, stepID uuid.UUID, channel, status string, errorMessage *string) error
	Advance(ctx context.Context, enrollmentID uuid.UUID, newStep int, nextAt time.Time) error
	Complete(ctx context.Context, enrollmentID, sequenceID uuid.UUID, finalStep int) error
	Pause(ctx context.Context, enrollmentID uuid.UUID, reason string) error
	Exit(ctx context.Context, enrollmentID uuid.UUID, reason string) error
	RescheduleCurrentStep(ctx context.Context, enrollmentID uuid.UUID, at time.Time) error
	IncrementStepSent(ctx context.Context, stepID uuid.UUID) error
}

// ConnectionStore resolves the organization's active WhatsApp connection.
type ConnectionStore interface {
	ActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (connrepo.Connection, error)
}

// OrganizationStore resolves per-organization SMTP credentials.
type OrganizationStore interface {
	SMTPSettings(ctx context.Context, organizationID uuid.UUID) (email.SMTPSettings, error)
}

type Dispatcher struct {
	repo        Repository
	connections ConnectionStore
	orgs        OrganizationStore
	senders     whatsapp.SenderFactory
	mail        email.Sender
	log         *logger.Logger
	batchSize   int
	stepDelay   time.Duration
	retryDelay  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(repo Repository, connections ConnectionStore, orgs OrganizationStore, senders whatsapp.SenderFactory, mail email.Sender, cfg config.DispatchConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		connections: connections,
		orgs:        orgs,
		senders:     senders,
		mail:        mail,
		log:         log.WithDispatcher("nurturing"),
		batchSize:   cfg.GetDispatchBatchSize(),
		stepDelay:   cfg.GetNurturingStepDelay(),
		retryDelay:  cfg.GetNurturingRetryDelay(),
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Run executes one dispatch pass. Per-enrollment failures are logged and
// rescheduled; only batch-level errors propagate to the cron host.
func (d *Dispatcher) Run(ctx context.Context) error {
	if _, err := d.repo.RequeueStale(ctx, staleClaimAge); err != nil {
		return fmt.Errorf("requeue stale enrollments: %w", err)
	}

	scheduled, err := d.repo.ScheduleInitialSteps(ctx)
	if err != nil {
		return fmt.Errorf("schedule initial steps: %w", err)
	}
	if scheduled > 0 {
		d.log.Info("enrollments scheduled", "count", scheduled)
	}

	batch, err := d.repo.ClaimDueEnrollments(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("claim due enrollments: %w", err)
	}

	for i, enrollment := range batch {
		d.processEnrollment(ctx, enrollment)

		if i < len(batch)-1 {
			d.sleep(ctx, d.stepDelay)
		}
	}

	return nil
}

func (d *Dispatcher) processEnrollment(ctx context.Context, e repository.DueEnrollment) {
	replied, err := d.repo.HasRepliedSince(ctx, e.ConversationID, e.EnrolledAt)
	if err != nil {
		d.log.DatabaseError("nurturing reply check", err)
		d.reschedule(ctx, e)
		return
	}

	if replied && e.ExitOnReply {
		if err := d.repo.Exit(ctx, e.ID, "contact replied"); err != nil {
			d.log.DatabaseError("nurturing exit", err)
		}
		return
	}
	if replied && e.PauseOnReply {
		if err := d.repo.Pause(ctx, e.ID, "contact replied"); err != nil {
			d.log.DatabaseError("nurturing pause", err)
		}
		return
	}

	step, ok, err := d.repo.StepByOrder(ctx, e.SequenceID, e.CurrentStep+1)
	if err != nil {
		d.log.DatabaseError("nurturing load step", err)
		d.reschedule(ctx, e)
		return
	}
	if !ok {
		// Past the last step.
		if err := d.repo.Complete(ctx, e.ID, e.SequenceID, e.CurrentStep); err != nil {
			d.log.DatabaseError("nurturing complete", err)
		}
		return
	}

	if replied && step.SkipIfReplied {
		d.logStep(ctx, e.ID, step, "skipped", nil)
		d.advanceOrComplete(ctx, e, step)
		return
	}

	sendErr := d.sendStep(ctx, e, step)
	if sendErr != "" {
		d.logStep(ctx, e.ID, step, "failed", &sendErr)
		// The same step is retried later; current_step stays put.
		if err := d.repo.RescheduleCurrentStep(ctx, e.ID, d.now().Add(d.retryDelay)); err != nil {
			d.log.DatabaseError("nurturing reschedule", err)
		}
		return
	}

	d.logStep(ctx, e.ID, step, "sent", nil)
	if err := d.repo.IncrementStepSent(ctx, step.ID); err != nil {
		d.log.DatabaseError("nurturing increment sent", err)
	}
	d.advanceOrComplete(ctx, e, step)
}

// sendStep delivers one step over its channel. It returns an empty string on
// success and a stored failure message otherwise.
func (d *Dispatcher) sendStep(ctx context.Context, e repository.DueEnrollment, step repository.Step) string {
	switch step.Channel {
	case "email":
		return d.sendEmail(ctx, e, step)
	default:
		return d.sendWhatsApp(ctx, e, step)
	}
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, e repository.DueEnrollment, step repository.Step) string {
	if e.Contact.Phone == "" {
		return ErrNoPhone
	}

	conn, err := d.connections.ActiveByOrganization(ctx, e.OrganizationID)
	if err != nil {
		if errors.Is(err, connrepo.ErrNotFound) {
			return ErrNoConnection
		}
		d.log.DatabaseError("nurturing load connection", err)
		return messaging.TranslateError(err.Error())
	}

	sender, err := d.senders(conn.Gateway())
	if err != nil {
		return messaging.TranslateError(err.Error())
	}

	content := messaging.Interpolate(step.Content, e.Contact, messaging.SingleBrace)
	messageType := "text"
	if step.MediaURL != "" {
		messageType = "image"
	}

	res, err := sender.SendMessage(ctx, e.Contact.Phone, content, messageType, step.MediaURL)
	if err != nil {
		d.log.ProviderError(conn.Provider, e.Contact.Phone, err)
		return messaging.TranslateError(err.Error())
	}
	if !res.Success {
		return messaging.TranslateError(res.Error)
	}
	return ""
}

func (d *Dispatcher) sendEmail(ctx context.Context, e repository.DueEnrollment, step repository.Step) string {
	if e.Contact.Email == "" {
		return ErrNoEmail
	}

	settings, err := d.orgs.SMTPSettings(ctx, e.OrganizationID)
	if err != nil {
		if errors.Is(err, orgrepo.ErrNoSMTPSettings) {
			return ErrNoSMTP
		}
		d.log.DatabaseError("nurturing load smtp settings", err)
		return messaging.TranslateError(err.Error())
	}

	subject := messaging.Interpolate(step.EmailSubject, e.Contact, messaging.SingleBrace)
	body := messaging.Interpolate(step.Content, e.Contact, messaging.SingleBrace)

	if err := d.mail.Send(ctx, settings, e.Contact.Email, subject, body); err != nil {
		return messaging.TranslateError(err.Error())
	}
	return ""
}

// advanceOrComplete moves the enrollment past the step it just handled,
// scheduling the next step by its own delay, or completes the enrollment
// when no further step exists.
func (d *Dispatcher) advanceOrComplete(ctx context.Context, e repository.DueEnrollment, step repository.Step) {
	next, ok, err := d.repo.StepByOrder(ctx, e.SequenceID, step.StepOrder+1)
	if err != nil {
		d.log.DatabaseError("nurturing load next step", err)
		d.reschedule(ctx, e)
		return
	}

	if !ok {
		if err := d.repo.Complete(ctx, e.ID, e.SequenceID, step.StepOrder); err != nil {
			d.log.DatabaseError("nurturing complete", err)
		}
		return
	}

	if err := d.repo.Advance(ctx, e.ID, step.StepOrder, d.now().Add(next.Delay())); err != nil {
		d.log.DatabaseError("nurturing advance", err)
	}
}

func (d *Dispatcher) reschedule(ctx context.Context, e repository.DueEnrollment) {
	if err := d.repo.RescheduleCurrentStep(ctx, e.ID, d.now().Add(d.retryDelay)); err != nil {
		d.log.DatabaseError("nurturing reschedule", err)
	}
}

func (d *Dispatcher) logStep(ctx context.Context, enrollmentID uuid.UUID, step repository.Step, status string, errorMessage *string) {
	if err := d.repo.InsertStepLog(ctx, enrollmentID, step.ID, step.Channel, status, errorMessage); err != nil {
		d.log.DatabaseError("nurturing step log", err)
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
