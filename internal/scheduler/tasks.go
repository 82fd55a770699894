package scheduler

import "github.com/hibiken/asynq"

const TaskCampaignDispatch = "dispatch.campaigns"

const TaskScheduledDispatch = "dispatch.scheduled"

const TaskNurturingDispatch = "dispatch.nurturing"

const TaskBillingReminders = "billing.reminders"

const TaskCRMAutomation = "crm.automation"

// Dispatch tasks carry no payload; each pass rereads its due work from the
// database.
func NewDispatchTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil)
}
