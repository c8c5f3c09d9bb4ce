package tasks

import (
	"context"
	"fmt"
)

// newTempSweepTask removes temporary record files left behind by writes that
// never reached the rename step.
func newTempSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "temp_sweep")

	return func(ctx context.Context) error {
		removed, err := deps.Reports.SweepTemp(deps.Config.Reports.TempMaxAge)
		if err != nil {
			return fmt.Errorf("temp sweep failed: %w", err)
		}
		if removed > 0 {
			log.InfoContext(ctx, "Removed stale temporary files", "count", removed)
		} else {
			log.DebugContext(ctx, "No stale temporary files")
		}
		return nil
	}
}
