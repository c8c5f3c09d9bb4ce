// Package chat defines the transport-neutral types and capability interfaces
// the bot core uses to talk to a chat network.
package chat

import (
	"context"
	"errors"
)

// LastSpecialContactID is the highest reserved contact id (self, device,
// info and similar system contacts). Contacts at or below it are never
// deleted.
const LastSpecialContactID ContactID = 9

var (
	// ErrUnsupported is returned by transports for operations their network
	// has no equivalent for.
	ErrUnsupported = errors.New("operation not supported by transport")
	// ErrNotFound is returned when a message or chat cannot be resolved.
	ErrNotFound = errors.New("not found")
)

type (
	AccountID int64
	ChatID    int64
	MessageID int64
	ContactID int64
)

// IsSpecial reports whether the contact is a reserved system contact.
func (id ContactID) IsSpecial() bool {
	return id <= LastSpecialContactID
}

// Message is an inbound or outbound chat message as seen by the core.
// File is a local path to the attachment, FileName its declared name.
type Message struct {
	ID       MessageID
	ChatID   ChatID
	FromID   ContactID
	Text     string
	File     string
	FileName string
	IsInfo   bool
}

// HasAttachment reports whether the message carries a file.
func (m *Message) HasAttachment() bool {
	return m != nil && m.File != ""
}

// Replier sends replies and reactions.
type Replier interface {
	SendText(ctx context.Context, account AccountID, chatID ChatID, text string) (MessageID, error)
	SendReaction(ctx context.Context, account AccountID, msg *Message, reactions ...string) error
}

// MessageFetcher resolves message ids to messages.
type MessageFetcher interface {
	GetMessage(ctx context.Context, account AccountID, id MessageID) (*Message, error)
}

// ChatCleaner removes chats and contacts.
type ChatCleaner interface {
	GetChatContacts(ctx context.Context, account AccountID, chatID ChatID) ([]ContactID, error)
	DeleteChat(ctx context.Context, account AccountID, chatID ChatID) error
	DeleteContact(ctx context.Context, account AccountID, contactID ContactID) error
}

// AccountManager enumerates and configures the accounts served by a transport.
type AccountManager interface {
	AccountIDs(ctx context.Context) ([]AccountID, error)
	SetConfig(ctx context.Context, account AccountID, key, value string) error
	Info(ctx context.Context, account AccountID) (map[string]string, error)
}

// Transport is the full capability set a chat network adapter provides.
// Run performs network I/O until ctx is cancelled; events are delivered on
// the channel returned by Events, which is closed when Run returns.
type Transport interface {
	Replier
	MessageFetcher
	ChatCleaner
	AccountManager

	Events() <-chan Envelope
	Run(ctx context.Context) error
	Close() error
}
