package deltachat

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/edgard/selfreportbot/internal/logger"
)

type serverRequest struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type handlerFunc func(params []json.RawMessage) (any, *RPCError)

// fakeServer answers JSON-RPC requests over in-memory pipes. Each request
// is handled on its own goroutine; unknown methods never get a response.
type fakeServer struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    []serverRequest

	clientR *io.PipeReader
	serverW *io.PipeWriter
	serverR *io.PipeReader
	clientW *io.PipeWriter
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{t: t, handlers: make(map[string]handlerFunc), stop: make(chan struct{})}
	s.clientR, s.serverW = io.Pipe()
	s.serverR, s.clientW = io.Pipe()
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) handle(method string, fn handlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

func (s *fakeServer) reply(method string, result any) {
	s.handle(method, func([]json.RawMessage) (any, *RPCError) { return result, nil })
}

func (s *fakeServer) client() *Client {
	return newClient(s.clientR, s.clientW, logger.Discard())
}

func (s *fakeServer) Calls() []serverRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]serverRequest(nil), s.calls...)
}

func (s *fakeServer) serve() {
	defer s.wg.Done()
	dec := json.NewDecoder(s.serverR)
	var writeMu sync.Mutex
	enc := json.NewEncoder(s.serverW)
	for {
		var req serverRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, req)
		fn, ok := s.handlers[req.Method]
		s.mu.Unlock()
		if !ok {
			continue
		}
		s.wg.Add(1)
		go func(req serverRequest) {
			defer s.wg.Done()
			result, rpcErr := fn(req.Params)
			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			writeMu.Lock()
			_ = enc.Encode(resp)
			writeMu.Unlock()
		}(req)
	}
}

// Close ends both directions of the connection.
func (s *fakeServer) Close() {
	s.once.Do(func() { close(s.stop) })
	_ = s.serverW.Close()
	_ = s.clientW.Close()
	s.wg.Wait()
}

// queueEvents serves get_next_event from events, blocking once they run out.
func (s *fakeServer) queueEvents(events ...string) {
	queue := make(chan string, len(events))
	for _, ev := range events {
		queue <- ev
	}
	s.handle("get_next_event", func([]json.RawMessage) (any, *RPCError) {
		select {
		case ev := <-queue:
			return json.RawMessage(ev), nil
		case <-s.stop:
			return nil, &RPCError{Code: -1, Message: "shutting down"}
		}
	})
}
