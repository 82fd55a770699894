package scheduler

import (
	"fmt"

	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Each dispatcher runs on its own cadence. Campaigns fire most often so a
// freshly due campaign starts within half a minute.
var periodicEntries = []struct {
	Spec     string
	TaskType string
}{
	{"@every 30s", TaskCampaignDispatch},
	{"@every 1m", TaskScheduledDispatch},
	{"@every 1m", TaskNurturingDispatch},
	{"@every 1h", TaskBillingReminders},
	{"@every 2m", TaskCRMAutomation},
}

// NewCron builds the periodic enqueuer. It only emits tasks; the Worker
// consumes them, so several cron processes may run, with distributed locking
// left to asynq.
func NewCron(cfg config.SchedulerConfig, log *logger.Logger) (*asynq.Scheduler, error) {
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

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			log.Error("cron enqueue failed", "task", task.Type(), "error", err.Error())
		},
	})

	for _, entry := range periodicEntries {
		if _, err := scheduler.Register(entry.Spec, NewDispatchTask(entry.TaskType), asynq.Queue(queue)); err != nil {
			return nil, fmt.Errorf("register %s: %w", entry.TaskType, err)
		}
	}

	return scheduler, nil
}
