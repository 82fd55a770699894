package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapflow_backend/internal/campaign/repository"
	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	due       []repository.DueMessage
	items     map[uuid.UUID][]repository.TemplateItem
	itemsErr  error
	sent      []uuid.UUID
	failed    map[uuid.UUID]string
	completed int64
}

func (f *fakeRepo) StartDueCampaigns(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) ClaimDueMessages(ctx context.Context, limit int) ([]repository.DueMessage, error) {
	due := f.due
	f.due = nil
	return due, nil
}

func (f *fakeRepo) TemplateItems(ctx context.Context, templateID uuid.UUID) ([]repository.TemplateItem, error) {
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	return f.items[templateID], nil
}

func (f *fakeRepo) MarkSent(ctx context.Context, messageID, campaignID uuid.UUID) error {
	f.sent = append(f.sent, messageID)
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, messageID, campaignID uuid.UUID, reason string) error {
	if f.failed == nil {
		f.failed = make(map[uuid.UUID]string)
	}
	f.failed[messageID] = reason
	return nil
}

func (f *fakeRepo) CompleteFinishedCampaigns(ctx context.Context) (int64, error) {
	return f.completed, nil
}

type fakeSender struct {
	results []whatsapp.SendResult
	errs    []error
	calls   int
}

func (f *fakeSender) SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (whatsapp.SendResult, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var res whatsapp.SendResult
	if i < len(f.results) {
		res = f.results[i]
	}
	return res, err
}

func (f *fakeSender) PairingCode(ctx context.Context) (string, error) { return "", nil }

type testConfig struct{}

func (testConfig) GetDispatchBatchSize() int             { return 50 }
func (testConfig) GetCampaignItemDelay() time.Duration   { return 0 }
func (testConfig) GetNurturingStepDelay() time.Duration  { return 0 }
func (testConfig) GetNurturingRetryDelay() time.Duration { return time.Hour }

func newTestDispatcher(repo *fakeRepo, sender *fakeSender) *Dispatcher {
	factory := func(conn whatsapp.Connection) (whatsapp.Sender, error) {
		return sender, nil
	}
	d := New(repo, factory, testConfig{}, logger.New("development"))
	d.sleep = func(ctx context.Context, delay time.Duration) {}
	return d
}

func dueMessage(templateID uuid.UUID) repository.DueMessage {
	return repository.DueMessage{
		ID:         uuid.New(),
		CampaignID: uuid.New(),
		Phone:      "+5511999990000",
		TemplateID: templateID,
		Contact:    messaging.Contact{Name: "Maria"},
	}
}

func TestRun_FirstItemSuccessMarksSent(t *testing.T) {
	templateID := uuid.New()
	msg := dueMessage(templateID)

	repo := &fakeRepo{
		due: []repository.DueMessage{msg},
		items: map[uuid.UUID][]repository.TemplateItem{
			templateID: {
				{MessageType: "text", Body: "Olá {{nome}}"},
				{MessageType: "text", Body: "segunda mensagem"},
			},
		},
	}
	sender := &fakeSender{
		results: []whatsapp.SendResult{
			{Success: true, MessageID: "a"},
			{Success: false, Error: "rate limit"},
		},
	}

	if err := newTestDispatcher(repo, sender).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.sent) != 1 || repo.sent[0] != msg.ID {
		t.Fatalf("expected message marked sent, got sent=%v failed=%v", repo.sent, repo.failed)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("later item failure must not fail the message: %v", repo.failed)
	}
	if sender.calls != 2 {
		t.Fatalf("expected both items sent, got %d calls", sender.calls)
	}
}

func TestRun_FirstItemFailureMarksFailed(t *testing.T) {
	templateID := uuid.New()
	msg := dueMessage(templateID)

	repo := &fakeRepo{
		due: []repository.DueMessage{msg},
		items: map[uuid.UUID][]repository.TemplateItem{
			templateID: {
				{MessageType: "text", Body: "primeira"},
				{MessageType: "text", Body: "segunda"},
			},
		},
	}
	sender := &fakeSender{
		results: []whatsapp.SendResult{
			{Success: false, Error: "instance not found"},
			{Success: true},
		},
	}

	if err := newTestDispatcher(repo, sender).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.sent) != 0 {
		t.Fatalf("message must not be marked sent: %v", repo.sent)
	}
	reason := repo.failed[msg.ID]
	if reason != "Instância do WhatsApp não encontrada. Verifique a conexão." {
		t.Fatalf("expected translated reason, got %q", reason)
	}
	if sender.calls != 2 {
		t.Fatalf("remaining items still send after first failure, got %d calls", sender.calls)
	}
}

func TestRun_EmptyTemplateFailsLocally(t *testing.T) {
	templateID := uuid.New()
	msg := dueMessage(templateID)

	repo := &fakeRepo{
		due:   []repository.DueMessage{msg},
		items: map[uuid.UUID][]repository.TemplateItem{},
	}
	sender := &fakeSender{}

	if err := newTestDispatcher(repo, sender).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.calls != 0 {
		t.Fatalf("gateway must not be called for empty templates, got %d calls", sender.calls)
	}
	if repo.failed[msg.ID] != ErrNoContent {
		t.Fatalf("expected %q, got %q", ErrNoContent, repo.failed[msg.ID])
	}
}

func TestRun_TransportErrorTranslated(t *testing.T) {
	templateID := uuid.New()
	msg := dueMessage(templateID)

	repo := &fakeRepo{
		due: []repository.DueMessage{msg},
		items: map[uuid.UUID][]repository.TemplateItem{
			templateID: {{MessageType: "text", Body: "oi"}},
		},
	}
	sender := &fakeSender{
		errs: []error{errors.New("dial tcp: connection refused")},
	}

	if err := newTestDispatcher(repo, sender).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.failed[msg.ID] != "Não foi possível conectar ao servidor da API." {
		t.Fatalf("expected translated transport failure, got %q", repo.failed[msg.ID])
	}
}

func TestRun_PerMessageIsolation(t *testing.T) {
	templateID := uuid.New()
	bad := dueMessage(uuid.New())
	good := dueMessage(templateID)

	repo := &fakeRepo{
		due: []repository.DueMessage{bad, good},
		items: map[uuid.UUID][]repository.TemplateItem{
			templateID: {{MessageType: "text", Body: "oi"}},
		},
	}
	sender := &fakeSender{
		results: []whatsapp.SendResult{{Success: true}},
	}

	if err := newTestDispatcher(repo, sender).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.failed[bad.ID] != ErrNoContent {
		t.Fatalf("expected first message to fail locally, got %q", repo.failed[bad.ID])
	}
	if len(repo.sent) != 1 || repo.sent[0] != good.ID {
		t.Fatalf("expected second message to still send, got %v", repo.sent)
	}
}
