package tasks

import (
	"context"
	"fmt"
	"sort"
)

// newRecordAuditTask parses every stored record and reports corrupt ones.
// Corrupt records are only logged; repairing them is left to an operator.
func newRecordAuditTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "record_audit")

	return func(ctx context.Context) error {
		res, err := deps.Reports.Verify(ctx)
		if err != nil {
			return fmt.Errorf("record audit failed: %w", err)
		}

		ids := make([]string, 0, len(res.Corrupt))
		for id := range res.Corrupt {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			log.ErrorContext(ctx, "Corrupt statistics record", "stats_id", id, "error", res.Corrupt[id])
		}

		if deps.Ledger != nil {
			if counts, err := deps.Ledger.SubmissionCounts(ctx); err == nil {
				log.InfoContext(ctx, "Ledger submission totals", "counts", counts)
			} else {
				log.WarnContext(ctx, "Could not read ledger totals", "error", err)
			}
		}

		log.InfoContext(ctx, "Record audit completed",
			"records", res.Records,
			"reports", res.Reports,
			"corrupt", len(res.Corrupt))
		return nil
	}
}
