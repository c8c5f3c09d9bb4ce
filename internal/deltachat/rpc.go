package deltachat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by calls made after the connection to the RPC
// server was lost or closed.
var ErrClosed = errors.New("deltachat: rpc connection closed")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcClient is a JSON-RPC 2.0 client over a byte stream. Requests are
// written as one JSON document each; responses may arrive in any order and
// are matched to their caller by id.
type rpcClient struct {
	logger *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	pending map[int64]chan rpcResponse
	closed  bool
	err     error

	nextID atomic.Int64
	done   chan struct{}
}

func newRPCClient(r io.Reader, w io.Writer, logger *slog.Logger) *rpcClient {
	c := &rpcClient{
		logger:  logger,
		enc:     json.NewEncoder(w),
		pending: make(map[int64]chan rpcResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *rpcClient) readLoop(r io.Reader) {
	defer close(c.done)
	dec := json.NewDecoder(r)
	for {
		var resp rpcResponse
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			} else {
				err = fmt.Errorf("%w: %v", ErrClosed, err)
			}
			c.shutdown(err)
			return
		}
		if resp.ID == nil {
			c.logger.Debug("Ignoring message without id from rpc server")
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*resp.ID]
		delete(c.pending, *resp.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Ignoring response for unknown request", "id", *resp.ID)
			continue
		}
		ch <- resp
	}
}

func (c *rpcClient) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call invokes method with positional params and decodes the result into
// result, which may be nil to discard it.
func (c *rpcClient) Call(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.enc.Encode(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return c.closeErr()
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *rpcClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *rpcClient) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the read side of the connection ends.
func (c *rpcClient) Done() <-chan struct{} {
	return c.done
}
