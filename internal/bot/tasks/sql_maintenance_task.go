package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask compacts and analyzes the ledger database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		startTime := time.Now()

		if err := deps.Ledger.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "Ledger maintenance failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Ledger maintenance completed", "duration", time.Since(startTime))
		return nil
	}
}
