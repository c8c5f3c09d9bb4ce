package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/database"
	"github.com/edgard/selfreportbot/internal/report"
)

const (
	// TelemetryPrefix marks a lightweight core version ping.
	TelemetryPrefix = "core_version "
	// StatisticsFileName is the only attachment name accepted.
	StatisticsFileName = "statistics.txt"

	defaultMaxAttachmentBytes = 1 << 20
)

// Outcome is the result class of an ingested message.
type Outcome int

const (
	OutcomeAcknowledged Outcome = iota + 1
	OutcomeAccepted
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcknowledged:
		return "acknowledged"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Rejection reasons. Input errors wrap the first three, store failures wrap
// ErrStorage.
var (
	ErrMissingAttachment  = errors.New("missing or misnamed attachment")
	ErrMalformedJSON      = errors.New("malformed JSON")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrStorage            = errors.New("storage error")
)

// Result describes how a message was handled. Reason is set for rejected
// messages; Err carries the detailed cause.
type Result struct {
	Outcome Outcome
	Reason  string
	StatsID string
	Entries int
	Err     error
}

// IsStoreError reports whether a rejection was caused by persistence rather
// than by the sender's input.
func (r Result) IsStoreError() bool {
	return errors.Is(r.Err, ErrStorage)
}

// Ingester turns inbound messages into stored statistics reports.
type Ingester struct {
	deps     HandlerDeps
	logger   *slog.Logger
	maxBytes int64
}

// NewIngester returns an Ingester using deps.
func NewIngester(deps HandlerDeps) *Ingester {
	maxBytes := int64(defaultMaxAttachmentBytes)
	if deps.Config != nil && deps.Config.Reports.MaxAttachmentBytes > 0 {
		maxBytes = deps.Config.Reports.MaxAttachmentBytes
	}
	return &Ingester{
		deps:     deps,
		logger:   deps.Logger.With("handler", "ingest"),
		maxBytes: maxBytes,
	}
}

// Handle processes one inbound message: a telemetry ping is acknowledged, a
// statistics attachment is validated and appended to its record, anything
// else is rejected with the fixed rejection reply.
func (h *Ingester) Handle(ctx context.Context, account chat.AccountID, msg *chat.Message) Result {
	log := h.logger.With("account_id", account, "chat_id", msg.ChatID, "message_id", msg.ID)

	res := h.ingest(ctx, msg)

	switch res.Outcome {
	case OutcomeAcknowledged:
		log.InfoContext(ctx, "Received core version ping")
		h.reply(ctx, log, account, msg.ChatID, h.deps.Config.Messages.Thanks)

	case OutcomeAccepted:
		log.InfoContext(ctx, "Successfully saved statistics", "stats_id", res.StatsID, "entries", res.Entries)
		if err := h.deps.Transport.SendReaction(ctx, account, msg, h.deps.Config.Messages.Reaction); err != nil {
			log.ErrorContext(ctx, "Failed to send reaction", "error", err)
		}

	case OutcomeRejected:
		if res.IsStoreError() {
			log.ErrorContext(ctx, "Could not store statistics", "kind", "store", "stats_id", res.StatsID, "error", res.Err)
		} else {
			log.WarnContext(ctx, "Could not parse self-reporting message", "kind", "input", "reason", res.Reason, "error", res.Err)
		}
		h.reply(ctx, log, account, msg.ChatID, h.deps.Config.Messages.Rejection)
	}

	h.record(ctx, log, account, msg, res)
	return res
}

func (h *Ingester) ingest(ctx context.Context, msg *chat.Message) Result {
	if strings.HasPrefix(msg.Text, TelemetryPrefix) {
		return Result{Outcome: OutcomeAcknowledged}
	}

	if msg.FileName != StatisticsFileName || !msg.HasAttachment() {
		return reject(fmt.Errorf("%w: got %q", ErrMissingAttachment, msg.FileName))
	}

	r, err := h.readReport(msg.File)
	if err != nil {
		return reject(err)
	}

	statsID, err := extractStatsID(r)
	if err != nil {
		return reject(err)
	}
	if err := report.ValidateID(statsID); err != nil {
		return reject(err)
	}

	r[report.TimestampField] = h.deps.now().Unix()

	entries, err := h.deps.Reports.Append(ctx, statsID, r)
	if err != nil {
		res := reject(fmt.Errorf("%w: %w", ErrStorage, err))
		res.StatsID = statsID
		return res
	}
	return Result{Outcome: OutcomeAccepted, StatsID: statsID, Entries: entries}
}

// readReport decodes the attachment at path as exactly one JSON object.
// Numbers are kept as json.Number so they are stored as sent.
func (h *Ingester) readReport(path string) (report.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open attachment: %v", ErrMissingAttachment, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read attachment: %v", ErrMissingAttachment, err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAttachmentTooLarge, h.maxBytes)
	}
	// The decoder would silently replace invalid sequences with U+FFFD.
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrMalformedJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r report.Report
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedJSON)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedJSON)
	}
	return r, nil
}

func extractStatsID(r report.Report) (string, error) {
	raw, ok := r[report.IDField]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedJSON, report.IDField)
	}
	statsID, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", report.ErrInvalidIdentifier, report.IDField)
	}
	return statsID, nil
}

func reject(err error) Result {
	reason := err.Error()
	for _, sentinel := range []error{ErrMissingAttachment, ErrMalformedJSON, ErrAttachmentTooLarge, ErrStorage} {
		if errors.Is(err, sentinel) {
			reason = sentinel.Error()
			break
		}
	}
	return Result{Outcome: OutcomeRejected, Reason: reason, Err: err}
}

func (h *Ingester) reply(ctx context.Context, log *slog.Logger, account chat.AccountID, chatID chat.ChatID, text string) {
	msgID, err := h.deps.Transport.SendText(ctx, account, chatID, text)
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
		return
	}
	log.DebugContext(ctx, "Reply sent", "reply_id", msgID)
}

func (h *Ingester) record(ctx context.Context, log *slog.Logger, account chat.AccountID, msg *chat.Message, res Result) {
	if h.deps.Ledger == nil {
		return
	}
	sub := &database.Submission{
		AccountID:     int64(account),
		ChatID:        int64(msg.ChatID),
		MessageID:     int64(msg.ID),
		StatsID:       res.StatsID,
		Outcome:       res.Outcome.String(),
		Reason:        res.Reason,
		RecordEntries: res.Entries,
		ReceivedAt:    h.deps.now().UTC(),
	}
	if err := h.deps.Ledger.RecordSubmission(ctx, sub); err != nil {
		log.WarnContext(ctx, "Failed to record submission in ledger", "error", err)
	}
}
