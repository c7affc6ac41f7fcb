package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTPStreamTransport implements the MCP "Streamable HTTP" transport over
// a single duplex websocket connection: requests, responses, server
// notifications, and server-initiated requests all share one socket
// rather than the sse transport's separate POST/GET pair.
type HTTPStreamTransport struct {
	config *ServerConfig
	logger *slog.Logger
	dialer *websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex

	pending   map[string]chan *JSONRPCResponse
	pendingMu sync.Mutex

	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	authToken string
}

// NewHTTPStreamTransport creates a new websocket-backed http-stream
// transport.
func NewHTTPStreamTransport(cfg *ServerConfig) *HTTPStreamTransport {
	return &HTTPStreamTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "http-stream"),
		dialer:   websocket.DefaultDialer,
		pending:  make(map[string]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect dials the websocket and starts the read loop.
func (t *HTTPStreamTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for http-stream transport")
	}

	token, err := resolveAuthToken(ctx, t.config)
	if err != nil {
		return fmt.Errorf("resolve auth: %w", err)
	}
	t.authToken = token

	header := http.Header{}
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}
	if t.authToken != "" {
		header.Set("Authorization", "Bearer "+t.authToken)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: HTTP %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	t.conn = conn
	t.connected.Store(true)
	t.logger.Info("http-stream transport connected", "url", t.config.URL)

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// Close closes the websocket connection.
func (t *HTTPStreamTransport) Close() error {
	t.connected.Store(false)
	close(t.stopChan)
	t.connMu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.connMu.Unlock()
	t.wg.Wait()
	return nil
}

// Call sends a JSON-RPC request over the socket and waits for its
// correlated response.
func (t *HTTPStreamTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := uuid.New().String()
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

// Notify sends a notification with no expected response.
func (t *HTTPStreamTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.writeJSON(notif)
}

// Events returns the notification channel.
func (t *HTTPStreamTransport) Events() <-chan *JSONRPCNotification { return t.events }

// Requests returns the server-initiated-request channel.
func (t *HTTPStreamTransport) Requests() <-chan *JSONRPCRequest { return t.requests }

// Respond answers a server-initiated request over the same socket.
func (t *HTTPStreamTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}
	return t.writeJSON(resp)
}

// Connected reports whether the websocket is currently up.
func (t *HTTPStreamTransport) Connected() bool { return t.connected.Load() }

func (t *HTTPStreamTransport) writeJSON(v any) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	return t.conn.WriteJSON(v)
}

// readLoop demultiplexes incoming frames into responses (by ID match),
// server-initiated requests (ID present, from the server), and
// notifications (no ID).
func (t *HTTPStreamTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)

	for {
		var envelope struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      any             `json:"id,omitempty"`
			Method  string          `json:"method,omitempty"`
			Params  json.RawMessage `json:"params,omitempty"`
			Result  json.RawMessage `json:"result,omitempty"`
			Error   *JSONRPCError   `json:"error,omitempty"`
		}

		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		if err := conn.ReadJSON(&envelope); err != nil {
			select {
			case <-t.stopChan:
			default:
				t.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		switch {
		case envelope.Method == "" && envelope.ID != nil:
			// A response to one of our own calls.
			id, ok := envelope.ID.(string)
			if !ok {
				continue
			}
			t.pendingMu.Lock()
			ch, ok := t.pending[id]
			t.pendingMu.Unlock()
			if !ok {
				continue
			}
			ch <- &JSONRPCResponse{JSONRPC: envelope.JSONRPC, ID: envelope.ID, Result: envelope.Result, Error: envelope.Error}
		case envelope.Method != "" && envelope.ID != nil:
			req := &JSONRPCRequest{JSONRPC: envelope.JSONRPC, ID: envelope.ID, Method: envelope.Method, Params: envelope.Params}
			select {
			case t.requests <- req:
			default:
				t.logger.Warn("request channel full, dropping")
			}
		case envelope.Method != "":
			notif := &JSONRPCNotification{JSONRPC: envelope.JSONRPC, Method: envelope.Method, Params: envelope.Params}
			select {
			case t.events <- notif:
			default:
				t.logger.Warn("notification channel full, dropping")
			}
		}
	}
}
