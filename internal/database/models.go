package database

import "time"

// Submission is one handled inbound message and its ingestion outcome.
type Submission struct {
	ID            int64     `db:"id"`
	AccountID     int64     `db:"account_id"`
	ChatID        int64     `db:"chat_id"`
	MessageID     int64     `db:"message_id"`
	StatsID       string    `db:"stats_id"`
	Outcome       string    `db:"outcome"`
	Reason        string    `db:"reason"`
	RecordEntries int       `db:"record_entries"`
	ReceivedAt    time.Time `db:"received_at"`
}

// Cleanup is one run of the post-delivery cleanup.
type Cleanup struct {
	ID              int64     `db:"id"`
	AccountID       int64     `db:"account_id"`
	ChatID          int64     `db:"chat_id"`
	MessageID       int64     `db:"message_id"`
	FinalState      string    `db:"final_state"`
	ContactsTotal   int       `db:"contacts_total"`
	ContactsDeleted int       `db:"contacts_deleted"`
	ContactsSkipped int       `db:"contacts_skipped"`
	ContactsFailed  int       `db:"contacts_failed"`
	Error           string    `db:"error"`
	CompletedAt     time.Time `db:"completed_at"`
}
