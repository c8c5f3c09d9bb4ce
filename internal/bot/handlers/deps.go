// Package handlers implements the bot's reactions to inbound chat events:
// ingestion of statistics submissions and cleanup of delivered conversations.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/config"
	"github.com/edgard/selfreportbot/internal/database"
	"github.com/edgard/selfreportbot/internal/report"
)

// ReportAppender persists a validated report.
type ReportAppender interface {
	Append(ctx context.Context, statsID string, r report.Report) (int, error)
}

// Ledger records handler outcomes for operators.
type Ledger interface {
	RecordSubmission(ctx context.Context, s *database.Submission) error
	RecordCleanup(ctx context.Context, c *database.Cleanup) error
}

// HandlerDeps provides dependencies for the event handlers. Ledger may be
// nil; Now defaults to time.Now.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Reports   ReportAppender
	Ledger    Ledger
	Transport interface {
		chat.Replier
		chat.ChatCleaner
	}
	Now func() time.Time
}

func (d HandlerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
