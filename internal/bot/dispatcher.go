package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/edgard/selfreportbot/internal/bot/handlers"
	"github.com/edgard/selfreportbot/internal/chat"
)

// IngestHandler handles inbound messages.
type IngestHandler interface {
	Handle(ctx context.Context, account chat.AccountID, msg *chat.Message) handlers.Result
}

// CleanupHandler cleans up after a delivered message.
type CleanupHandler interface {
	Run(ctx context.Context, account chat.AccountID, msg *chat.Message) (handlers.CleanupReport, error)
}

// Dispatcher routes transport events to the matching handler.
type Dispatcher struct {
	logger  *slog.Logger
	fetcher chat.MessageFetcher
	ingest  IngestHandler
	cleanup CleanupHandler
}

// NewDispatcher creates a Dispatcher. fetcher resolves message ids carried
// by events that do not include the message itself.
func NewDispatcher(logger *slog.Logger, fetcher chat.MessageFetcher, ingest IngestHandler, cleanup CleanupHandler) *Dispatcher {
	return &Dispatcher{
		logger:  logger.With("component", "dispatcher"),
		fetcher: fetcher,
		ingest:  ingest,
		cleanup: cleanup,
	}
}

// Dispatch handles one event. It never panics and never returns an error:
// failures are logged and confined to the event that caused them.
func (d *Dispatcher) Dispatch(ctx context.Context, env chat.Envelope) {
	log := d.logger.With("account_id", env.Account)
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "Panic while handling event",
				"event", fmt.Sprintf("%T", env.Event),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if err := d.dispatch(ctx, log, env); err != nil {
		log.ErrorContext(ctx, "Error while handling event", "event", fmt.Sprintf("%T", env.Event), "error", err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, env chat.Envelope) error {
	switch ev := env.Event.(type) {
	case chat.InfoEvent:
		log.InfoContext(ctx, ev.Msg, "source", "transport")

	case chat.WarningEvent:
		log.WarnContext(ctx, ev.Msg, "source", "transport")

	case chat.ErrorEvent:
		log.ErrorContext(ctx, ev.Msg, "source", "transport")

	case chat.MsgDeliveredEvent:
		msg, err := d.fetcher.GetMessage(ctx, env.Account, ev.MsgID)
		if err != nil {
			return fmt.Errorf("resolve delivered message %d: %w", ev.MsgID, err)
		}
		_, err = d.cleanup.Run(ctx, env.Account, msg)
		return err

	case chat.NewMessageEvent:
		msg := ev.Msg
		if msg == nil {
			var err error
			msg, err = d.fetcher.GetMessage(ctx, env.Account, ev.MsgID)
			if err != nil {
				return fmt.Errorf("resolve incoming message %d: %w", ev.MsgID, err)
			}
		}
		if msg.IsInfo {
			log.DebugContext(ctx, "Ignoring info message", "message_id", msg.ID)
			return nil
		}
		d.ingest.Handle(ctx, env.Account, msg)

	case chat.UnknownEvent:
		log.InfoContext(ctx, "Unhandled event", "kind", ev.Kind, "raw", ev.Raw)

	default:
		log.InfoContext(ctx, "Unhandled event", "kind", fmt.Sprintf("%T", ev))
	}
	return nil
}
