package tasks

import "context"

// ScheduledTaskFunc is the signature of all scheduled tasks. The context
// provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the available tasks keyed by the name used in the
// scheduler.tasks configuration section.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Ledger != nil {
		tasks["sql_maintenance"] = newSQLMaintenanceTask(deps)
	}
	if deps.Reports != nil {
		tasks["temp_sweep"] = newTempSweepTask(deps)
		tasks["record_audit"] = newRecordAuditTask(deps)
	}
	if deps.Cache != nil {
		tasks["attachment_cache_prune"] = newAttachmentCachePruneTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
