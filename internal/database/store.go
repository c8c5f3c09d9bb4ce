package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the ledger operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RecordSubmission inserts the outcome of one handled message.
	RecordSubmission(ctx context.Context, s *Submission) error

	// RecordCleanup inserts the result of one cleanup run.
	RecordCleanup(ctx context.Context, c *Cleanup) error

	// SubmissionCounts returns the number of submissions per outcome.
	SubmissionCounts(ctx context.Context) (map[string]int, error)

	// RecentSubmissions returns the latest submissions for statsID, newest first.
	RecentSubmissions(ctx context.Context, statsID string, limit int) ([]Submission, error)

	// RunSQLMaintenance performs VACUUM and ANALYZE.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by db.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "ledger"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) RecordSubmission(ctx context.Context, sub *Submission) error {
	if sub == nil {
		return fmt.Errorf("cannot record nil submission")
	}
	if sub.Outcome == "" {
		return fmt.Errorf("submission must have an outcome")
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO submissions (account_id, chat_id, message_id, stats_id, outcome, reason, record_entries, received_at)
        VALUES (:account_id, :chat_id, :message_id, :stats_id, :outcome, :reason, :record_entries, :received_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording submission", "message_id", sub.MessageID, "error", err)
		return fmt.Errorf("failed to record submission (message %d): %w", sub.MessageID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		sub.ID = id
	}

	s.logger.DebugContext(ctx, "Submission recorded", "id", sub.ID, "outcome", sub.Outcome, "stats_id", sub.StatsID)
	return nil
}

func (s *sqlxStore) RecordCleanup(ctx context.Context, c *Cleanup) error {
	if c == nil {
		return fmt.Errorf("cannot record nil cleanup")
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO cleanups (account_id, chat_id, message_id, final_state, contacts_total, contacts_deleted,
                              contacts_skipped, contacts_failed, error, completed_at)
        VALUES (:account_id, :chat_id, :message_id, :final_state, :contacts_total, :contacts_deleted,
                :contacts_skipped, :contacts_failed, :error, :completed_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, c)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording cleanup", "chat_id", c.ChatID, "error", err)
		return fmt.Errorf("failed to record cleanup (chat %d): %w", c.ChatID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		c.ID = id
	}
	return nil
}

func (s *sqlxStore) SubmissionCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Outcome string `db:"outcome"`
		Count   int    `db:"count"`
	}
	query := `SELECT outcome, COUNT(*) AS count FROM submissions GROUP BY outcome;`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Count
	}
	return counts, nil
}

func (s *sqlxStore) RecentSubmissions(ctx context.Context, statsID string, limit int) ([]Submission, error) {
	if statsID == "" {
		return nil, fmt.Errorf("stats_id cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}

	var subs []Submission
	query := `
        SELECT id, account_id, chat_id, message_id, stats_id, outcome, reason, record_entries, received_at
        FROM submissions
        WHERE stats_id = ?
        ORDER BY received_at DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &subs, query, statsID, limit); err != nil {
		return nil, fmt.Errorf("failed to get submissions for %s: %w", statsID, err)
	}
	return subs, nil
}

// RunSQLMaintenance runs VACUUM then ANALYZE. VACUUM cannot run inside a
// transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "VACUUM failed", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed", "error", err)
		return fmt.Errorf("database maintenance (ANALYZE) failed: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}
