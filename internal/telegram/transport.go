// Package telegram implements the chat transport on top of the Telegram Bot
// API. Telegram serves a single bot account and has no contact store, so the
// cleanup and account configuration operations are unsupported.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/logger"
)

// Account is the id under which the bot's only account is reported.
const Account chat.AccountID = 1

const (
	eventQueueSize   = 128
	messageCacheSize = 1024
	downloadTimeout  = 30 * time.Second
	sendTimeout      = 10 * time.Second
	defaultFileURL   = "https://api.telegram.org/file/bot"
)

// Options configures the Telegram transport.
type Options struct {
	Token string
	// CacheDir receives downloaded documents.
	CacheDir string
	// MaxFileBytes caps how much of a document is downloaded. One byte past
	// the cap is kept so oversized files stay detectable.
	MaxFileBytes int64
}

// Transport is a chat.Transport backed by the Telegram Bot API.
type Transport struct {
	logger *slog.Logger
	bot    *bot.Bot
	events chan chat.Envelope
	files  *fileCache

	mu       sync.Mutex
	messages map[chat.MessageID]*chat.Message
	order    []chat.MessageID
}

var _ chat.Transport = (*Transport)(nil)

// New creates the Telegram client. The token is checked against the API.
func New(opts Options, log *slog.Logger) (*Transport, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram")

	files, err := newFileCache(opts.CacheDir, opts.MaxFileBytes, defaultFileURL+opts.Token, http.DefaultClient)
	if err != nil {
		return nil, err
	}

	t := newTransport(files, log)
	b, err := bot.New(opts.Token,
		bot.WithMiddlewares(logger.Middleware(log)),
		bot.WithDefaultHandler(t.handleUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", stripURL(err))
	}
	t.bot = b
	log.Info("Telegram bot instance created", "token_prefix", tokenPrefix(opts.Token))
	return t, nil
}

func newTransport(files *fileCache, log *slog.Logger) *Transport {
	return &Transport{
		logger:   log,
		events:   make(chan chat.Envelope, eventQueueSize),
		files:    files,
		messages: make(map[chat.MessageID]*chat.Message),
	}
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}

func (t *Transport) Events() <-chan chat.Envelope {
	return t.events
}

// Run long-polls for updates until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	defer close(t.events)
	t.logger.InfoContext(ctx, "Starting Telegram long polling")
	t.bot.Start(ctx)
	return ctx.Err()
}

// Close is a no-op; polling stops with the context passed to Run.
func (t *Transport) Close() error { return nil }

func (t *Transport) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	t.publish(ctx, t.resolve(ctx, b, update.Message))
}

// resolve converts a Telegram message and downloads its document, if any.
// A failed download leaves File empty so the message is still answered.
func (t *Transport) resolve(ctx context.Context, b *bot.Bot, m *models.Message) *chat.Message {
	msg := toChatMessage(m)
	if m.Document == nil {
		return msg
	}

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	path, err := t.files.download(dlCtx, b, m.Document.FileID)
	if err != nil {
		t.logger.WarnContext(ctx, "Failed to download document", "message_id", m.ID, "file_name", m.Document.FileName, "error", err)
		return msg
	}
	msg.File = path
	return msg
}

func (t *Transport) publish(ctx context.Context, msg *chat.Message) {
	t.remember(msg)
	env := chat.Envelope{
		Account: Account,
		Event:   chat.NewMessageEvent{ChatID: msg.ChatID, MsgID: msg.ID, Msg: msg},
	}
	select {
	case t.events <- env:
	case <-ctx.Done():
	}
}

func (t *Transport) remember(msg *chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.messages[msg.ID]; !ok {
		t.order = append(t.order, msg.ID)
	}
	t.messages[msg.ID] = msg
	for len(t.order) > messageCacheSize {
		delete(t.messages, t.order[0])
		t.order = t.order[1:]
	}
}

// toChatMessage maps a Telegram message. Captions count as text.
func toChatMessage(m *models.Message) *chat.Message {
	msg := &chat.Message{
		ID:     chat.MessageID(m.ID),
		ChatID: chat.ChatID(m.Chat.ID),
		Text:   m.Text,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.FromID = chat.ContactID(m.From.ID)
	}
	if m.Document != nil {
		msg.FileName = m.Document.FileName
	}
	return msg
}

// GetMessage returns a recently received message. Telegram cannot look up
// messages by id, so only messages still in the local cache resolve.
func (t *Transport) GetMessage(_ context.Context, _ chat.AccountID, id chat.MessageID) (*chat.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg, ok := t.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, chat.ErrNotFound)
	}
	return msg, nil
}

func (t *Transport) SendText(ctx context.Context, _ chat.AccountID, chatID chat.ChatID, text string) (chat.MessageID, error) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	sent, err := t.bot.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID: int64(chatID),
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", stripURL(err))
	}
	return chat.MessageID(sent.ID), nil
}

func (t *Transport) SendReaction(ctx context.Context, _ chat.AccountID, msg *chat.Message, reactions ...string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := t.bot.SetMessageReaction(sendCtx, &bot.SetMessageReactionParams{
		ChatID:    int64(msg.ChatID),
		MessageID: int(msg.ID),
		Reaction:  reactionTypes(reactions),
	})
	if err != nil {
		return fmt.Errorf("set message reaction: %w", stripURL(err))
	}
	return nil
}

// reactionTypes converts emoji to Telegram reactions. Telegram lists its
// reaction emoji without the variation selector.
func reactionTypes(reactions []string) []models.ReactionType {
	out := make([]models.ReactionType, 0, len(reactions))
	for _, r := range reactions {
		emoji := strings.TrimSuffix(r, "\uFE0F")
		if emoji == "" {
			continue
		}
		out = append(out, models.ReactionType{
			Type: models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{
				Type:  models.ReactionTypeTypeEmoji,
				Emoji: emoji,
			},
		})
	}
	return out
}

func (t *Transport) GetChatContacts(context.Context, chat.AccountID, chat.ChatID) ([]chat.ContactID, error) {
	return nil, chat.ErrUnsupported
}

func (t *Transport) DeleteChat(context.Context, chat.AccountID, chat.ChatID) error {
	return chat.ErrUnsupported
}

func (t *Transport) DeleteContact(context.Context, chat.AccountID, chat.ContactID) error {
	return chat.ErrUnsupported
}

func (t *Transport) AccountIDs(context.Context) ([]chat.AccountID, error) {
	return []chat.AccountID{Account}, nil
}

func (t *Transport) SetConfig(context.Context, chat.AccountID, string, string) error {
	return chat.ErrUnsupported
}

func (t *Transport) Info(ctx context.Context, _ chat.AccountID) (map[string]string, error) {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("get me: %w", stripURL(err))
	}
	return map[string]string{
		"id":       strconv.FormatInt(me.ID, 10),
		"username": me.Username,
		"name":     me.FirstName,
	}, nil
}

// PruneCache removes downloaded documents older than maxAge.
func (t *Transport) PruneCache(maxAge time.Duration) (int, error) {
	return t.files.prune(maxAge)
}
