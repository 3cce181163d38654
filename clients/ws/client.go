// Package ws provides an automation engine backed by a remote engine gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/agiopen-org/lux-desktop/internal/automation"
	wsprotocol "github.com/agiopen-org/lux-desktop/internal/gateway/ws"
)

// ErrConnClosed is returned for requests issued on, or pending when, the
// connection goes away.
var ErrConnClosed = errors.New("engine connection closed")

// Client is an automation.Engine speaking to the gateway over WebSocket.
type Client struct {
	conn           *websocket.Conn
	reqSeq         atomic.Uint64
	requestTimeout time.Duration
	ctx            context.Context
	cancel         context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan wsprotocol.Frame
	runs    map[string]chan automation.Update
	err     error
	done    chan struct{}
}

var _ automation.Engine = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout bounds the wait for each response frame.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	clientCtx, cancel := context.WithCancel(context.Background())

	c := &Client{
		conn:    conn,
		ctx:     clientCtx,
		cancel:  cancel,
		pending: make(map[string]chan wsprotocol.Frame),
		runs:    make(map[string]chan automation.Update),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	go c.readLoop()
	return c, nil
}

// Start asks the engine to begin req.RunID and returns its update stream.
func (c *Client) Start(ctx context.Context, req automation.StartRequest) (<-chan automation.Update, error) {
	updates := make(chan automation.Update, 64)

	// Registered before the request so no early update is missed.
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.runs[req.RunID] = updates
	c.mu.Unlock()

	if _, err := c.call(ctx, wsprotocol.MethodStartAutomation, wsprotocol.StartParams(req)); err != nil {
		c.mu.Lock()
		if c.runs[req.RunID] == updates {
			delete(c.runs, req.RunID)
		}
		c.mu.Unlock()
		return nil, err
	}
	return updates, nil
}

// Stop asks the engine to cancel the live run.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, wsprotocol.MethodStopAutomation, nil)
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) call(ctx context.Context, method wsprotocol.Method, params any) (wsprotocol.Frame, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id := fmt.Sprintf("req-%d", c.reqSeq.Add(1))
	frame, err := wsprotocol.NewRequestFrame(id, method, params)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return wsprotocol.Frame{}, err
	}

	resp := make(chan wsprotocol.Frame, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return wsprotocol.Frame{}, c.err
	}
	c.pending[id] = resp
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return wsprotocol.Frame{}, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case f := <-resp:
		return result(method, f)
	case <-c.done:
		// A response read just before the connection dropped still counts.
		select {
		case f := <-resp:
			return result(method, f)
		default:
			return wsprotocol.Frame{}, ErrConnClosed
		}
	case <-ctx.Done():
		return wsprotocol.Frame{}, ctx.Err()
	}
}

func result(method wsprotocol.Method, f wsprotocol.Frame) (wsprotocol.Frame, error) {
	if f.OK == nil || !*f.OK {
		return f, fmt.Errorf("%s: %s", method, f.Error)
	}
	return f, nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			slog.Debug("engine connection read ended", "error", err)
			return
		}
		frame, err := wsprotocol.UnmarshalFrame(data)
		if err != nil {
			slog.Warn("engine sent malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case wsprotocol.FrameTypeResponse:
			c.mu.Lock()
			resp, ok := c.pending[frame.ID]
			c.mu.Unlock()
			if ok {
				resp <- frame
			}
		case wsprotocol.FrameTypeEvent:
			c.handleEvent(frame)
		}
	}
}

func (c *Client) handleEvent(frame wsprotocol.Frame) {
	c.mu.Lock()
	updates, ok := c.runs[frame.RunID]
	c.mu.Unlock()
	if !ok {
		return
	}

	switch frame.Event {
	case wsprotocol.EventAutomationUpdate:
		var u automation.Update
		if err := json.Unmarshal(frame.Payload, &u); err != nil {
			slog.Warn("engine sent malformed update", "run_id", frame.RunID, "error", err)
			return
		}
		select {
		case updates <- u:
		case <-c.ctx.Done():
		}
	case wsprotocol.EventAutomationClosed:
		c.closeRun(frame.RunID)
	}
}

func (c *Client) closeRun(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if updates, ok := c.runs[runID]; ok {
		delete(c.runs, runID)
		close(updates)
	}
}

// shutdown fails pending requests and ends every open run stream.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = ErrConnClosed
	for id, updates := range c.runs {
		delete(c.runs, id)
		close(updates)
	}
	close(c.done)
}
