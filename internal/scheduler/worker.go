package scheduler

import (
	"context"
	"fmt"

	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Runner is one dispatch pass. All dispatchers and sweeps satisfy it.
type Runner interface {
	Run(ctx context.Context) error
}

// Runners binds each task type to its dispatch pass.
type Runners struct {
	Campaigns Runner
	Scheduled Runner
	Nurturing Runner
	Billing   Runner
	CRM       Runner
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	runners Runners
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runners Runners, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		runners: runners,
		log:     log,
	}

	mux.HandleFunc(TaskCampaignDispatch, w.handlerFor("campaign", runners.Campaigns))
	mux.HandleFunc(TaskScheduledDispatch, w.handlerFor("scheduled", runners.Scheduled))
	mux.HandleFunc(TaskNurturingDispatch, w.handlerFor("nurturing", runners.Nurturing))
	mux.HandleFunc(TaskBillingReminders, w.handlerFor("billing", runners.Billing))
	mux.HandleFunc(TaskCRMAutomation, w.handlerFor("crm-automation", runners.CRM))

	return w, nil
}

// handlerFor adapts a Runner to an asynq handler. A failed pass is logged
// and swallowed: the next periodic task retries the same due work, so asynq
// retries would only pile up duplicate passes.
func (w *Worker) handlerFor(name string, runner Runner) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		if runner == nil {
			return nil
		}
		if err := runner.Run(ctx); err != nil {
			w.log.DispatchError(name, err)
		}
		return nil
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
