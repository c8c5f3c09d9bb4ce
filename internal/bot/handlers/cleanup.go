package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/database"
)

// CleanupState is a step of the post-delivery cleanup.
type CleanupState int

const (
	StateIdle CleanupState = iota
	StateCleaningChat
	StateCleaningContacts
	StateDone
)

func (s CleanupState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCleaningChat:
		return "cleaning_chat"
	case StateCleaningContacts:
		return "cleaning_contacts"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CleanupReport is the outcome of one cleanup run. State is the last state
// reached; it is StateDone only if the chat was deleted.
type CleanupReport struct {
	ChatID   chat.ChatID
	Contacts []chat.ContactID
	Deleted  []chat.ContactID
	Skipped  []chat.ContactID
	Failed   map[chat.ContactID]error
	State    CleanupState
}

// Cleaner deletes the chat of a delivered bot message together with the
// chat's non-special contacts.
type Cleaner struct {
	deps   HandlerDeps
	logger *slog.Logger
}

// NewCleaner returns a Cleaner using deps.
func NewCleaner(deps HandlerDeps) *Cleaner {
	return &Cleaner{
		deps:   deps,
		logger: deps.Logger.With("handler", "cleanup"),
	}
}

// Run cleans up after msg was delivered. The chat is deleted before any
// contact because contacts still in a chat cannot be deleted. Contact
// deletions are independent: a failure is logged and the next contact is
// tried. Nothing is retried.
func (c *Cleaner) Run(ctx context.Context, account chat.AccountID, msg *chat.Message) (CleanupReport, error) {
	log := c.logger.With("account_id", account, "chat_id", msg.ChatID, "message_id", msg.ID)
	rep := CleanupReport{
		ChatID: msg.ChatID,
		Failed: make(map[chat.ContactID]error),
		State:  StateIdle,
	}

	var runErr error
	for rep.State != StateDone && runErr == nil {
		switch rep.State {
		case StateIdle:
			contacts, err := c.deps.Transport.GetChatContacts(ctx, account, msg.ChatID)
			if err != nil {
				runErr = fmt.Errorf("get contacts of chat %d: %w", msg.ChatID, err)
				break
			}
			rep.Contacts = contacts
			rep.State = StateCleaningChat

		case StateCleaningChat:
			if err := c.deps.Transport.DeleteChat(ctx, account, msg.ChatID); err != nil {
				runErr = fmt.Errorf("delete chat %d: %w", msg.ChatID, err)
				break
			}
			log.InfoContext(ctx, "Cleaned up chat")
			rep.State = StateCleaningContacts

		case StateCleaningContacts:
			for _, contactID := range rep.Contacts {
				if contactID.IsSpecial() {
					rep.Skipped = append(rep.Skipped, contactID)
					continue
				}
				if err := c.deps.Transport.DeleteContact(ctx, account, contactID); err != nil {
					log.ErrorContext(ctx, "Could not delete contact", "contact_id", contactID, "error", err)
					rep.Failed[contactID] = err
					continue
				}
				log.InfoContext(ctx, "Cleaned up contact", "contact_id", contactID)
				rep.Deleted = append(rep.Deleted, contactID)
			}
			rep.State = StateDone
		}
	}

	if runErr != nil {
		log.ErrorContext(ctx, "Cleanup aborted", "state", rep.State, "error", runErr)
	}
	c.record(ctx, log, account, msg, rep, runErr)
	return rep, runErr
}

func (c *Cleaner) record(ctx context.Context, log *slog.Logger, account chat.AccountID, msg *chat.Message, rep CleanupReport, runErr error) {
	if c.deps.Ledger == nil {
		return
	}
	entry := &database.Cleanup{
		AccountID:       int64(account),
		ChatID:          int64(msg.ChatID),
		MessageID:       int64(msg.ID),
		FinalState:      rep.State.String(),
		ContactsTotal:   len(rep.Contacts),
		ContactsDeleted: len(rep.Deleted),
		ContactsSkipped: len(rep.Skipped),
		ContactsFailed:  len(rep.Failed),
		CompletedAt:     c.deps.now().UTC(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := c.deps.Ledger.RecordCleanup(ctx, entry); err != nil {
		log.WarnContext(ctx, "Failed to record cleanup in ledger", "error", err)
	}
}
