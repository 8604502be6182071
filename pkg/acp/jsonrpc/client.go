// Package jsonrpc implements JSON-RPC 2.0 over a child process's stdio,
// one JSON value per newline-terminated frame.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Apothic-AI/bufo/internal/common/logger"
)

// NotificationHandler receives inbound notifications in stream order.
// It runs on the read loop and must not block.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler serves agent-initiated requests (fs reads, permission
// prompts). A returned *RemoteError is sent verbatim; any other error is
// reported as an internal error.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (interface{}, error)

type callResult struct {
	result json.RawMessage
	err    error
}

// Client handles JSON-RPC 2.0 communication over stdin/stdout streams.
//
// One background read loop is the sole resolver of pending calls and the sole
// source of notifications. Liveness and the pending table share one mutex, so
// "check liveness, then register" is atomic: a call registered concurrently
// with Fail either observes the terminal error immediately or is resolved by
// Fail's sweep. No caller can block past connection death.
type Client struct {
	stdin  io.Writer
	stdout io.Reader

	requestID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan callResult
	failErr error

	sendMu sync.Mutex

	onNotification NotificationHandler
	onRequest      RequestHandler

	logger   *logger.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// NewClient creates a new JSON-RPC client over the given streams.
func NewClient(stdin io.Writer, stdout io.Reader, log *logger.Logger) *Client {
	return &Client{
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[int64]chan callResult),
		logger:  log.WithFields(zap.String("component", "jsonrpc-client")),
		done:    make(chan struct{}),
	}
}

// SetNotificationHandler sets the handler for incoming notifications.
// Must be called before Start.
func (c *Client) SetNotificationHandler(handler NotificationHandler) {
	c.onNotification = handler
}

// SetRequestHandler sets the handler for agent-initiated requests.
// Must be called before Start.
func (c *Client) SetRequestHandler(handler RequestHandler) {
	c.onRequest = handler
}

// Start begins reading frames from stdout.
func (c *Client) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

// Stop stops the client. Pending calls resolve with ErrClientClosed.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Fail marks the connection dead with a terminal error, resolves every
// pending call with it, and makes all future calls fail immediately with the
// same error. Only the first call has any effect.
func (c *Client) Fail(err error) {
	if err == nil {
		err = ErrClientClosed
	}

	c.mu.Lock()
	if c.failErr != nil {
		c.mu.Unlock()
		return
	}
	c.failErr = err
	abandoned := make([]chan callResult, 0, len(c.pending))
	for id, ch := range c.pending {
		abandoned = append(abandoned, ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, ch := range abandoned {
		ch <- callResult{err: err}
	}

	if len(abandoned) > 0 {
		c.logger.Warn("failed pending calls on dead connection",
			zap.Int("count", len(abandoned)), zap.Error(err))
	}
}

// Err returns the terminal error set by Fail, or nil while the connection is
// alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failErr
}

// Call sends a request and waits for its response. The result payload is
// returned on success; on failure the error is one of *RemoteError (agent
// rejected the call), *TimeoutError (ctx deadline expired), the terminal
// error set by Fail, ErrClientClosed, or ctx.Err() for plain cancellation.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	req := &Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}

	respCh := make(chan callResult, 1)
	c.mu.Lock()
	if c.failErr != nil {
		err := c.failErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	start := time.Now()
	if err := c.send(req); err != nil {
		// A write failure usually means the process died mid-call; prefer
		// the terminal error when one has been recorded.
		c.mu.Lock()
		if c.failErr != nil {
			err = c.failErr
		}
		c.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-respCh:
		return res.result, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Method: method, Timeout: time.Since(start).Round(time.Millisecond)}
		}
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// Notify sends a notification (no response expected).
func (c *Client) Notify(method string, params interface{}) error {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	notif := &Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
	}

	return c.send(notif)
}

// send writes one complete frame. The mutex keeps concurrent callers from
// interleaving partial frames on the pipe.
func (c *Client) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	data = append(data, '\n')

	c.sendMu.Lock()
	_, err = c.stdin.Write(data)
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	c.logger.Debug("sent message", zap.String("data", string(data)))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.stdout)
	// Increase buffer size for large messages
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		c.logger.Debug("received message", zap.String("data", string(line)))

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			// A malformed frame kills that frame only, never the stream.
			c.logger.Warn("discarding malformed frame",
				zap.Error(err), zap.String("data", truncateForLog(line)))
			continue
		}

		switch {
		case msg.isResponse():
			c.handleResponse(&msg)
		case msg.isRequest():
			// Handlers do filesystem and permission work; keep them off
			// the read loop.
			go c.handleRequest(ctx, &msg)
		case msg.isNotification():
			c.handleNotification(&msg)
		default:
			c.logger.Warn("received unknown message format", zap.String("data", truncateForLog(line)))
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("read loop error", zap.Error(err))
	}
	c.logger.Debug("agent stdout closed")
}

// handleResponse resolves the matching pending call exactly once. The entry
// is removed under the lock before delivery, so a duplicate or late frame for
// the same id finds nothing and is logged as a no-op.
func (c *Client) handleResponse(msg *message) {
	id, ok := msg.responseID()
	if !ok {
		c.logger.Warn("received response with undecodable id", zap.String("id", string(msg.ID)))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("received response for unknown request", zap.Int64("id", id))
		return
	}

	if msg.Error != nil {
		ch <- callResult{err: msg.Error}
		return
	}
	ch <- callResult{result: msg.Result}
}

func (c *Client) handleNotification(msg *message) {
	if c.onNotification != nil {
		c.onNotification(msg.Method, msg.Params)
	}
}

func (c *Client) handleRequest(ctx context.Context, msg *message) {
	if c.onRequest == nil {
		c.respondError(msg.ID, &RemoteError{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("no handler for method %q", msg.Method),
		})
		return
	}

	result, err := c.onRequest(ctx, msg.Method, msg.Params)
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			remote = &RemoteError{Code: CodeInternalError, Message: err.Error()}
		}
		c.respondError(msg.ID, remote)
		return
	}
	c.respond(msg.ID, result)
}

func (c *Client) respond(id json.RawMessage, result interface{}) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		c.respondError(id, &RemoteError{Code: CodeInternalError, Message: err.Error()})
		return
	}
	if err := c.send(&Response{JSONRPC: "2.0", ID: id, Result: resultJSON}); err != nil {
		c.logger.Warn("failed to send response", zap.Error(err))
	}
}

func (c *Client) respondError(id json.RawMessage, remote *RemoteError) {
	if err := c.send(&Response{JSONRPC: "2.0", ID: id, Error: remote}); err != nil {
		c.logger.Warn("failed to send error response", zap.Error(err))
	}
}

func truncateForLog(data []byte) string {
	const max = 256
	if len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
