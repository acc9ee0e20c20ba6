package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
)

const auditRetention = 90 * 24 * time.Hour

// Execer runs a single SQL statement. The pgx pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MaintenanceJobs holds the housekeeping handlers for session and audit
// tables.
type MaintenanceJobs struct {
	db     Execer
	logger *slog.Logger
}

// NewMaintenanceJobs constructs MaintenanceJobs.
func NewMaintenanceJobs(db Execer, logger *slog.Logger) *MaintenanceJobs {
	return &MaintenanceJobs{db: db, logger: logger}
}

// HandleSessionPrune deletes session records past their expiry.
func (j *MaintenanceJobs) HandleSessionPrune(ctx context.Context, _ *asynq.Task) error {
	tag, err := j.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	j.logger.Info("session prune", slog.Int64("removed", tag.RowsAffected()))
	return nil
}

// HandleAuditPrune deletes audit entries older than the retention window.
func (j *MaintenanceJobs) HandleAuditPrune(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().Add(-auditRetention)
	tag, err := j.db.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("audit prune", slog.Int64("removed", tag.RowsAffected()))
	return nil
}

// Handlers returns the task registrations for the worker.
func (j *MaintenanceJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSessionPrune, Handler: j.HandleSessionPrune},
		{Type: TaskAuditPrune, Handler: j.HandleAuditPrune},
	}
}

// CronEntries returns the periodic schedule for the housekeeping tasks.
func (j *MaintenanceJobs) CronEntries() []CronRegistration {
	return []CronRegistration{
		{Spec: "@every 1h", Task: NewSessionPruneTask()},
		{Spec: "0 3 * * *", Task: NewAuditPruneTask()},
	}
}
