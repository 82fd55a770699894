package dispatcher

import (
	"context"
	"testing"
	"time"

	"zapflow_backend/internal/messaging"
	"zapflow_backend/internal/scheduledmsg/repository"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	due    []repository.DueMessage
	sent   []uuid.UUID
	failed map[uuid.UUID]string
}

func (f *fakeRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) ClaimDueMessages(ctx context.Context, limit int) ([]repository.DueMessage, error) {
	due := f.due
	f.due = nil
	return due, nil
}

func (f *fakeRepo) MarkSent(ctx context.Context, messageID uuid.UUID) error {
	f.sent = append(f.sent, messageID)
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, messageID uuid.UUID, reason string) error {
	if f.failed == nil {
		f.failed = make(map[uuid.UUID]string)
	}
	f.failed[messageID] = reason
	return nil
}

type fakeSender struct {
	result      whatsapp.SendResult
	lastContent string
}

func (f *fakeSender) SendMessage(ctx context.Context, destination, content, messageType, mediaURL string) (whatsapp.SendResult, error) {
	f.lastContent = content
	return f.result, nil
}

func (f *fakeSender) PairingCode(ctx context.Context) (string, error) { return "", nil }

type testConfig struct{}

func (testConfig) GetDispatchBatchSize() int             { return 50 }
func (testConfig) GetCampaignItemDelay() time.Duration   { return 0 }
func (testConfig) GetNurturingStepDelay() time.Duration  { return 0 }
func (testConfig) GetNurturingRetryDelay() time.Duration { return time.Hour }

func TestRun_SendsAndInterpolates(t *testing.T) {
	msg := repository.DueMessage{
		ID:          uuid.New(),
		Body:        "Olá {{nome}}, sua consulta é amanhã.",
		MessageType: "text",
		Phone:       "+5511999990000",
		Contact:     messaging.Contact{Name: "Maria"},
	}
	repo := &fakeRepo{due: []repository.DueMessage{msg}}
	sender := &fakeSender{result: whatsapp.SendResult{Success: true}}
	factory := func(conn whatsapp.Connection) (whatsapp.Sender, error) { return sender, nil }

	d := New(repo, factory, testConfig{}, logger.New("development"))
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.lastContent != "Olá Maria, sua consulta é amanhã." {
		t.Fatalf("expected interpolated content, got %q", sender.lastContent)
	}
	if len(repo.sent) != 1 || repo.sent[0] != msg.ID {
		t.Fatalf("expected message marked sent")
	}
}

func TestRun_FailureIsTranslatedAndFinal(t *testing.T) {
	msg := repository.DueMessage{
		ID:    uuid.New(),
		Body:  "oi",
		Phone: "+5511999990000",
	}
	repo := &fakeRepo{due: []repository.DueMessage{msg}}
	sender := &fakeSender{result: whatsapp.SendResult{Success: false, Error: "invalid number"}}
	factory := func(conn whatsapp.Connection) (whatsapp.Sender, error) { return sender, nil }

	d := New(repo, factory, testConfig{}, logger.New("development"))
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.failed[msg.ID] != "Número de telefone inválido." {
		t.Fatalf("expected translated reason, got %q", repo.failed[msg.ID])
	}
	if len(repo.sent) != 0 {
		t.Fatalf("failed message must not be marked sent")
	}
}
