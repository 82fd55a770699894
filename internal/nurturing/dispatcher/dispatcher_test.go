package dispatcher

import (
	"context"
	"testing"
	"time"

	"zapflow_backend/internal/email"
	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/nurturing/repository"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"

	connrepo "zapflow_backend/internal/connection/repository"

	"github.com/google/uuid"
)

type fakeRepo struct {
	due     []repository.DueEnrollment
	steps   map[int]repository.Step
	replied bool

	logs         []string
	advancedTo   int
	advancedAt   time.Time
	advanced     bool
	completed    bool
	paused       bool
	exited       bool
	rescheduled  bool
	rescheduleAt time.Time
	sentSteps    int
}

func (f *fakeRepo) ScheduleInitialSteps(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) ClaimDueEnrollments(ctx context.Context, limit int) ([]repository.DueEnrollment, error) {
	due := f.due
	f.due = nil
	return due, nil
}

func (f *fakeRepo) StepByOrder(ctx context.Context, sequenceID uuid.UUID, order int) (repository.Step, bool, error) {
	step, ok := f.steps[order]
	return step, ok, nil
}

func (f *fakeRepo) HasRepliedSince(ctx context.Context, conversationID *uuid.UUID, since time.Time) (bool, error) {
	return f.replied, nil
}

func (f *fakeRepo) InsertStepLog(ctx context.Context, enrollmentID, stepID uuid.UUID, channel, status string, errorMessage *string) error {
	f.logs = append(f.logs, status)
	return nil
}

func (f *fakeRepo) Advance(ctx context.Context, enrollmentID uuid.UUID, newStep int, nextAt time.Time) error {
	f.advanced = true
	f.advancedTo = newStep
	f.advancedAt = nextAt
	return nil
}

func (f *fakeRepo) Complete(ctx context.Context, enrollmentID, sequenceID uuid.UUID, finalStep int) error {
	f.completed = true
	return nil
}

func (f *fakeRepo) Pause(ctx context.Context, enrollmentID uuid.UUID, reason string) error {
	f.paused = true
	return nil
}

func (f *fakeRepo) Exit(ctx context.Context, enrollmentID uuid.UUID, reason string) error {
	f.exited = true
	return nil
}

func (f *fakeRepo) RescheduleCurrentStep(ctx context.Context, enrollmentID uuid.UUID, at time.Time) error {
	f.rescheduled = true
	f.rescheduleAt = at
	return nil
}

func (f *fakeRepo) IncrementStepSent(ctx context.Context, stepID uuid.UUID) error {
	f.sentSteps++
	return nil
}

type fakeConnections struct {
	conn connrepo.Connection
	err  error
}

func (f *fakeConnections) ActiveByOrganization(ctx context.Context, organizationID uuid.UUID) (connrepo.Connection, error) {
	return f.conn, f.err
}

type fakeOrgs struct {
	settings email.SMTPSettings
	err      error
}

func (f *fakeOrgs) SMTPSettings(ctx context.Context, organizationID uuid.UUID) (email.SMTPSettings, error) {
	return f.settings, f.err
}

type fakeSender struct {
	result whatsapp.SendResult
	err    error
	calls  int
}

func (f *fakeSender) SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (whatsapp.SendResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeSender) PairingCode(ctx context.Context) (string, error) { return "", nil }

type fakeMail struct {
	err   error
	calls int
}

func (f *fakeMail) Send(ctx context.Context, settings email.SMTPSettings, toEmail, subject, body string) error {
	f.calls++
	return f.err
}

type testConfig struct{}

func (testConfig) GetDispatchBatchSize() int             { return 50 }
func (testConfig) GetCampaignItemDelay() time.Duration   { return 0 }
func (testConfig) GetNurturingStepDelay() time.Duration  { return 0 }
func (testConfig) GetNurturingRetryDelay() time.Duration { return time.Hour }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(repo *fakeRepo, sender *fakeSender, mail *fakeMail) *Dispatcher {
	factory := func(conn whatsapp.Connection) (whatsapp.Sender, error) {
		return sender, nil
	}
	d := New(repo, &fakeConnections{}, &fakeOrgs{}, factory, mail, testConfig{}, logger.New("development"))
	d.now = func() time.Time { return testNow }
	d.sleep = func(ctx context.Context, delay time.Duration) {}
	return d
}

func enrollment(currentStep int) repository.DueEnrollment {
	return repository.DueEnrollment{
		ID:          uuid.New(),
		SequenceID:  uuid.New(),
		ContactID:   uuid.New(),
		Contact:     messaging.Contact{Name: "Maria", Phone: "+5511999990000", Email: "maria@example.com"},
		CurrentStep: currentStep,
		EnrolledAt:  testNow.Add(-48 * time.Hour),
	}
}

func TestRun_SuccessAdvancesAndSchedulesNextStep(t *testing.T) {
	repo := &fakeRepo{
		due: []repository.DueEnrollment{enrollment(0)},
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi {nome}"},
			2: {ID: uuid.New(), StepOrder: 2, Channel: "whatsapp", DelayValue: 2, DelayUnit: "hours"},
		},
	}
	sender := &fakeSender{result: whatsapp.SendResult{Success: true}}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.advanced || repo.advancedTo != 1 {
		t.Fatalf("expected advance to step 1, got advanced=%v to=%d", repo.advanced, repo.advancedTo)
	}
	if want := testNow.Add(2 * time.Hour); !repo.advancedAt.Equal(want) {
		t.Fatalf("expected next step at %v, got %v", want, repo.advancedAt)
	}
	if repo.sentSteps != 1 {
		t.Fatalf("expected step sent counter bump, got %d", repo.sentSteps)
	}
	if len(repo.logs) != 1 || repo.logs[0] != "sent" {
		t.Fatalf("expected one sent log, got %v", repo.logs)
	}
}

func TestRun_FailureReschedulesSameStep(t *testing.T) {
	repo := &fakeRepo{
		due: []repository.DueEnrollment{enrollment(0)},
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi"},
		},
	}
	sender := &fakeSender{result: whatsapp.SendResult{Success: false, Error: "rate limit"}}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.advanced || repo.completed {
		t.Fatalf("failed step must not advance or complete")
	}
	if !repo.rescheduled {
		t.Fatalf("expected reschedule")
	}
	if want := testNow.Add(time.Hour); !repo.rescheduleAt.Equal(want) {
		t.Fatalf("expected retry at %v, got %v", want, repo.rescheduleAt)
	}
	if len(repo.logs) != 1 || repo.logs[0] != "failed" {
		t.Fatalf("expected one failed log, got %v", repo.logs)
	}
}

func TestRun_LastStepSuccessCompletes(t *testing.T) {
	repo := &fakeRepo{
		due: []repository.DueEnrollment{enrollment(0)},
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi"},
		},
	}
	sender := &fakeSender{result: whatsapp.SendResult{Success: true}}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.completed {
		t.Fatalf("expected completion after last step")
	}
	if repo.advanced {
		t.Fatalf("must not advance past the last step")
	}
}

func TestRun_SkipIfRepliedAdvancesWithoutSending(t *testing.T) {
	repo := &fakeRepo{
		due:     []repository.DueEnrollment{enrollment(0)},
		replied: true,
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi", SkipIfReplied: true},
			2: {ID: uuid.New(), StepOrder: 2, Channel: "whatsapp", DelayValue: 30, DelayUnit: "minutes"},
		},
	}
	sender := &fakeSender{}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.calls != 0 {
		t.Fatalf("skipped step must not send, got %d calls", sender.calls)
	}
	if len(repo.logs) != 1 || repo.logs[0] != "skipped" {
		t.Fatalf("expected skipped log, got %v", repo.logs)
	}
	if !repo.advanced || repo.advancedTo != 1 {
		t.Fatalf("expected advance past skipped step")
	}
}

func TestRun_ExitOnReply(t *testing.T) {
	e := enrollment(0)
	e.ExitOnReply = true

	repo := &fakeRepo{
		due:     []repository.DueEnrollment{e},
		replied: true,
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi"},
		},
	}
	sender := &fakeSender{}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.exited {
		t.Fatalf("expected exit on reply")
	}
	if sender.calls != 0 || len(repo.logs) != 0 {
		t.Fatalf("exited enrollment must not process its step")
	}
}

func TestRun_PauseOnReply(t *testing.T) {
	e := enrollment(0)
	e.PauseOnReply = true

	repo := &fakeRepo{
		due:     []repository.DueEnrollment{e},
		replied: true,
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi"},
		},
	}
	sender := &fakeSender{}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.paused {
		t.Fatalf("expected pause on reply")
	}
	if sender.calls != 0 {
		t.Fatalf("paused enrollment must not send")
	}
}

func TestRun_MissingPhoneFailsLocally(t *testing.T) {
	e := enrollment(0)
	e.Contact.Phone = ""

	repo := &fakeRepo{
		due: []repository.DueEnrollment{e},
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "whatsapp", Content: "oi"},
		},
	}
	sender := &fakeSender{}

	if err := newTestDispatcher(repo, sender, &fakeMail{}).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.calls != 0 {
		t.Fatalf("missing phone must not reach the gateway")
	}
	if !repo.rescheduled {
		t.Fatalf("local failure still reschedules the step")
	}
	if len(repo.logs) != 1 || repo.logs[0] != "failed" {
		t.Fatalf("expected failed log, got %v", repo.logs)
	}
}

func TestRun_EmailStepUsesMailSender(t *testing.T) {
	repo := &fakeRepo{
		due: []repository.DueEnrollment{enrollment(0)},
		steps: map[int]repository.Step{
			1: {ID: uuid.New(), StepOrder: 1, Channel: "email", Content: "oi {nome}", EmailSubject: "Olá"},
		},
	}
	sender := &fakeSender{}
	mail := &fakeMail{}

	if err := newTestDispatcher(repo, sender, mail).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mail.calls != 1 {
		t.Fatalf("expected one email, got %d", mail.calls)
	}
	if sender.calls != 0 {
		t.Fatalf("email step must not use the gateway")
	}
	if !repo.completed {
		t.Fatalf("expected completion after the only step")
	}
}
