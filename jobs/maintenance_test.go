package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	_ "github.com/wardenhq/warden/testing"
)

type fakeExecer struct {
	sql  string
	args []any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return f.tag, f.err
}

func newMaintenance(db Execer) *MaintenanceJobs {
	return NewMaintenanceJobs(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleSessionPruneTargetsExpiry(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 3")}
	jobs := newMaintenance(db)

	require.NoError(t, jobs.HandleSessionPrune(context.Background(), NewSessionPruneTask()))
	require.Contains(t, db.sql, "FROM sessions")
	require.Contains(t, db.sql, "expires_at < NOW()")
	require.Empty(t, db.args)
}

func TestHandleAuditPruneTargetsOccurredAt(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 7")}
	jobs := newMaintenance(db)

	require.NoError(t, jobs.HandleAuditPrune(context.Background(), NewAuditPruneTask()))
	require.Contains(t, db.sql, "FROM audit_logs")
	require.Contains(t, db.sql, "occurred_at < $1")
	require.NotContains(t, db.sql, "created_at", "audit_logs has no created_at column")

	require.Len(t, db.args, 1)
	cutoff, ok := db.args[0].(time.Time)
	require.True(t, ok)
	wantCutoff := time.Now().Add(-auditRetention)
	require.WithinDuration(t, wantCutoff, cutoff, time.Minute)
}

func TestHandlersCoverScheduledTasks(t *testing.T) {
	jobs := newMaintenance(&fakeExecer{tag: pgconn.NewCommandTag("DELETE 0")})

	handled := make(map[string]bool)
	for _, h := range jobs.Handlers() {
		require.NotNil(t, h.Handler, "handler for %s", h.Type)
		handled[h.Type] = true
	}
	for _, entry := range jobs.CronEntries() {
		require.NotEmpty(t, entry.Spec)
		require.True(t, handled[entry.Task.Type()], "no handler registered for scheduled task %s", entry.Task.Type())
	}
}

func TestPruneHandlersPropagateErrors(t *testing.T) {
	db := &fakeExecer{err: context.DeadlineExceeded}
	jobs := newMaintenance(db)

	require.Error(t, jobs.HandleSessionPrune(context.Background(), NewSessionPruneTask()))
	require.Error(t, jobs.HandleAuditPrune(context.Background(), NewAuditPruneTask()))
}
