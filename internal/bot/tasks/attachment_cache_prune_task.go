package tasks

import (
	"context"
	"fmt"
)

// newAttachmentCachePruneTask deletes downloaded attachments older than the
// configured maximum age.
func newAttachmentCachePruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "attachment_cache_prune")

	return func(ctx context.Context) error {
		removed, err := deps.Cache.PruneCache(deps.Config.Transport.Telegram.CacheMaxAge)
		if err != nil {
			return fmt.Errorf("attachment cache prune failed: %w", err)
		}
		log.DebugContext(ctx, "Pruned attachment cache", "removed", removed)
		return nil
	}
}
