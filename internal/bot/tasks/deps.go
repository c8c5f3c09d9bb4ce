// Package tasks implements the bot's scheduled maintenance jobs.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/selfreportbot/internal/config"
	"github.com/edgard/selfreportbot/internal/database"
	"github.com/edgard/selfreportbot/internal/report"
)

// ReportMaintainer is the part of the report store maintenance tasks use.
type ReportMaintainer interface {
	Verify(ctx context.Context) (report.AuditResult, error)
	SweepTemp(maxAge time.Duration) (int, error)
}

// CachePruner is implemented by transports that keep downloaded attachments
// on local disk.
type CachePruner interface {
	PruneCache(maxAge time.Duration) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks. Ledger
// and Cache may be nil; tasks needing them are then not registered.
type TaskDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Ledger  database.Store
	Reports ReportMaintainer
	Cache   CachePruner
}
