package scheduler

import (
	"context"
	"testing"

	"zapflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
)

type testConfig struct {
	redisURL string
}

func (c testConfig) GetRedisURL() string       { return c.redisURL }
func (c testConfig) GetRedisTLSInsecure() bool { return false }
func (c testConfig) GetAsynqQueueName() string { return "dispatch" }
func (c testConfig) GetAsynqConcurrency() int  { return 1 }

func TestNewClient_RequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testConfig{}); err == nil {
		t.Fatalf("expected error without redis url")
	}
}

func TestTriggerDispatch_EnqueuesTask(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig{redisURL: "redis://" + mr.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.TriggerDispatch(context.Background(), TaskCampaignDispatch); err != nil {
		t.Fatalf("trigger dispatch: %v", err)
	}

	if len(mr.Keys()) == 0 {
		t.Fatalf("expected the task to be written to redis")
	}
}

func TestNewWorkerAndCron_Construct(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig{redisURL: "redis://" + mr.Addr()}
	log := logger.New("development")

	if _, err := NewWorker(cfg, Runners{}, log); err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := NewCron(cfg, log); err != nil {
		t.Fatalf("new cron: %v", err)
	}
}
