// Package deltachat implements the chat transport on top of the JSON-RPC
// interface of deltachat-rpc-server.
package deltachat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/edgard/selfreportbot/internal/chat"
)

const (
	eventQueueSize  = 128
	shutdownTimeout = 5 * time.Second
)

// Options configures the spawned RPC server.
type Options struct {
	// ServerPath is the deltachat-rpc-server executable.
	ServerPath string
	// AccountsDir holds the accounts database; created if missing.
	AccountsDir string
}

// Client is a chat.Transport backed by one deltachat-rpc-server process.
type Client struct {
	logger *slog.Logger
	rpc    *rpcClient
	events chan chat.Envelope

	cmd   *exec.Cmd
	stdin io.Closer
}

var _ chat.Transport = (*Client)(nil)

// Start spawns the RPC server and connects to its stdio.
func Start(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.AccountsDir != "" {
		if err := os.MkdirAll(opts.AccountsDir, 0o700); err != nil {
			return nil, fmt.Errorf("create accounts dir: %w", err)
		}
	}

	cmd := exec.Command(opts.ServerPath)
	cmd.Env = os.Environ()
	if opts.AccountsDir != "" {
		abs, err := filepath.Abs(opts.AccountsDir)
		if err != nil {
			return nil, fmt.Errorf("resolve accounts dir: %w", err)
		}
		cmd.Env = append(cmd.Env, "DC_ACCOUNTS_PATH="+abs)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("rpc server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("rpc server stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.ServerPath, err)
	}

	c := newClient(stdout, stdin, logger)
	c.cmd = cmd
	c.stdin = stdin
	c.logger.Info("Started rpc server", "path", opts.ServerPath, "pid", cmd.Process.Pid)
	return c, nil
}

func newClient(r io.Reader, w io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "deltachat")
	return &Client{
		logger: log,
		rpc:    newRPCClient(r, w, log),
		events: make(chan chat.Envelope, eventQueueSize),
	}
}

func (c *Client) Events() <-chan chat.Envelope {
	return c.events
}

// Run starts network I/O for all accounts and forwards core events until
// ctx is cancelled or the server goes away.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	if err := c.rpc.Call(ctx, nil, "start_io_for_all_accounts"); err != nil {
		return fmt.Errorf("start io: %w", err)
	}
	defer c.stopIO()

	for {
		var raw rawEvent
		if err := c.rpc.Call(ctx, &raw, "get_next_event"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("get next event: %w", err)
		}

		env, err := decodeEvent(raw)
		if err != nil {
			c.logger.WarnContext(ctx, "Dropping undecodable event", "error", err)
			continue
		}

		if ev, ok := env.Event.(chat.NewMessageEvent); ok {
			msg, err := c.GetMessage(ctx, env.Account, ev.MsgID)
			if err != nil {
				c.logger.WarnContext(ctx, "Could not load incoming message", "account_id", env.Account, "message_id", ev.MsgID, "error", err)
				continue
			}
			if msg.IsInfo || msg.FromID.IsSpecial() {
				continue
			}
			ev.Msg = msg
			env.Event = ev
		}

		select {
		case c.events <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) stopIO() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.rpc.Call(ctx, nil, "stop_io_for_all_accounts"); err != nil && !errors.Is(err, ErrClosed) {
		c.logger.Warn("Could not stop io", "error", err)
	}
}

// Close terminates the RPC server. It waits up to shutdownTimeout for the
// process to exit after its stdin is closed, then kills it.
func (c *Client) Close() error {
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.cmd == nil {
		return nil
	}

	exited := make(chan error, 1)
	go func() { exited <- c.cmd.Wait() }()
	select {
	case err := <-exited:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Debug("Rpc server exited", "code", exitErr.ExitCode())
			return nil
		}
		return err
	case <-time.After(shutdownTimeout):
		c.logger.Warn("Rpc server did not exit, killing it")
		_ = c.cmd.Process.Kill()
		return <-exited
	}
}

func (c *Client) SendText(ctx context.Context, account chat.AccountID, chatID chat.ChatID, text string) (chat.MessageID, error) {
	var id int64
	if err := c.rpc.Call(ctx, &id, "misc_send_text_message", account, chatID, text); err != nil {
		return 0, err
	}
	return chat.MessageID(id), nil
}

func (c *Client) SendReaction(ctx context.Context, account chat.AccountID, msg *chat.Message, reactions ...string) error {
	if reactions == nil {
		reactions = []string{}
	}
	return c.rpc.Call(ctx, nil, "send_reaction", account, msg.ID, reactions)
}

func (c *Client) GetMessage(ctx context.Context, account chat.AccountID, id chat.MessageID) (*chat.Message, error) {
	var m *message
	if err := c.rpc.Call(ctx, &m, "get_message", account, id); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %d: %w", id, chat.ErrNotFound)
	}
	return m.toChat(), nil
}

func (c *Client) GetChatContacts(ctx context.Context, account chat.AccountID, chatID chat.ChatID) ([]chat.ContactID, error) {
	var ids []int64
	if err := c.rpc.Call(ctx, &ids, "get_chat_contacts", account, chatID); err != nil {
		return nil, err
	}
	contacts := make([]chat.ContactID, len(ids))
	for i, id := range ids {
		contacts[i] = chat.ContactID(id)
	}
	return contacts, nil
}

func (c *Client) DeleteChat(ctx context.Context, account chat.AccountID, chatID chat.ChatID) error {
	return c.rpc.Call(ctx, nil, "delete_chat", account, chatID)
}

func (c *Client) DeleteContact(ctx context.Context, account chat.AccountID, contactID chat.ContactID) error {
	return c.rpc.Call(ctx, nil, "delete_contact", account, contactID)
}

func (c *Client) AccountIDs(ctx context.Context) ([]chat.AccountID, error) {
	var ids []int64
	if err := c.rpc.Call(ctx, &ids, "get_all_account_ids"); err != nil {
		return nil, err
	}
	accounts := make([]chat.AccountID, len(ids))
	for i, id := range ids {
		accounts[i] = chat.AccountID(id)
	}
	return accounts, nil
}

func (c *Client) SetConfig(ctx context.Context, account chat.AccountID, key, value string) error {
	return c.rpc.Call(ctx, nil, "set_config", account, key, value)
}

func (c *Client) Info(ctx context.Context, account chat.AccountID) (map[string]string, error) {
	var info map[string]string
	if err := c.rpc.Call(ctx, &info, "get_info", account); err != nil {
		return nil, err
	}
	return info, nil
}
