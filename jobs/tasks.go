package jobs

import "github.com/hibiken/asynq"

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPrune removes expired session records.
	TaskSessionPrune = "sessions:prune"
	// TaskAuditPrune trims audit entries past the retention window.
	TaskAuditPrune = "audit:prune"
)

// NewSessionPruneTask constructs the session prune task.
func NewSessionPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionPrune, nil)
}

// NewAuditPruneTask constructs the audit prune task.
func NewAuditPruneTask() *asynq.Task {
	return asynq.NewTask(TaskAuditPrune, nil)
}
