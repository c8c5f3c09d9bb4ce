// Package bot wires the transport, the event handlers and the scheduler
// together and owns their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/selfreportbot/internal/chat"
	"github.com/edgard/selfreportbot/internal/config"
)

// Retention settings applied to every account at startup.
const (
	KeyDeleteServerAfter = "delete_server_after"
	KeyDeleteDeviceAfter = "delete_device_after"
)

const workerQueueSize = 64

// Bot runs the event loop for every account served by the transport.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	transport  chat.Transport
	dispatcher *Dispatcher
	scheduler  *Scheduler
}

// NewBot creates a Bot. scheduler may be nil.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	transport chat.Transport,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		cfg:        cfg,
		transport:  transport,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}
}

// Run configures the accounts, then processes events until ctx is cancelled
// or a component fails. Events of one account are handled sequentially in
// arrival order; accounts are handled concurrently.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	if err := b.initAccounts(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := b.transport.Run(gCtx)
		if gCtx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("transport stopped unexpectedly")
		}
		b.logger.Error("Transport stopped", "error", err)
		return fmt.Errorf("transport: %w", err)
	})

	g.Go(func() error {
		return b.route(gCtx, g)
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(gCtx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// route fans envelopes out to one worker goroutine per account. Workers are
// started lazily on the first event of an account.
func (b *Bot) route(ctx context.Context, g *errgroup.Group) error {
	queues := make(map[chat.AccountID]chan chat.Envelope)
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	events := b.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-events:
			if !ok {
				return nil
			}
			q, exists := queues[env.Account]
			if !exists {
				q = make(chan chat.Envelope, workerQueueSize)
				queues[env.Account] = q
				account := env.Account
				g.Go(func() error {
					b.work(ctx, account, q)
					return nil
				})
			}
			select {
			case q <- env:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (b *Bot) work(ctx context.Context, account chat.AccountID, q <-chan chat.Envelope) {
	b.logger.Debug("Account worker started", "account_id", account)
	for env := range q {
		if ctx.Err() != nil {
			continue
		}
		b.dispatcher.Dispatch(ctx, env)
	}
	b.logger.Debug("Account worker stopped", "account_id", account)
}

// initAccounts logs every account and applies the retention settings.
// Transports without retention settings report chat.ErrUnsupported, which
// is tolerated.
func (b *Bot) initAccounts(ctx context.Context) error {
	accounts, err := b.transport.AccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		b.logger.Warn("Transport reports no accounts")
	}

	settings := []struct{ key, value string }{
		{KeyDeleteServerAfter, b.cfg.Accounts.DeleteServerAfter},
		{KeyDeleteDeviceAfter, b.cfg.Accounts.DeleteDeviceAfter},
	}

	for _, account := range accounts {
		log := b.logger.With("account_id", account)

		info, err := b.transport.Info(ctx, account)
		switch {
		case err == nil:
			log.InfoContext(ctx, "Account info", "info", info)
		case errors.Is(err, chat.ErrUnsupported):
		default:
			log.WarnContext(ctx, "Could not get account info", "error", err)
		}

		for _, s := range settings {
			err := b.transport.SetConfig(ctx, account, s.key, s.value)
			if errors.Is(err, chat.ErrUnsupported) {
				log.DebugContext(ctx, "Transport has no retention setting", "key", s.key)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to set %s for account %d: %w", s.key, account, err)
			}
			log.InfoContext(ctx, "Applied account setting", "key", s.key, "value", s.value)
		}
	}
	return nil
}
