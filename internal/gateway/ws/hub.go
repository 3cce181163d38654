package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/agiopen-org/lux-desktop/internal/automation"
)

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub exposes one automation engine to WebSocket clients. Updates of a run
// are pushed only to the client that started it, and only that client may stop
// or replace the run while it is live.
type Hub struct {
	engine automation.Engine

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	owner    *Client // client whose run is live
	ownerRun string
}

// NewHub creates a hub serving engine.
func NewHub(engine automation.Engine) *Hub {
	return &Hub{
		engine:  engine,
		clients: make(map[*Client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

// unregister removes a client and stops the run it owns, if any.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	owned := h.owner == c
	if owned {
		h.owner, h.ownerRun = nil, ""
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		slog.Info("ws client disconnected", "clients", n)
	}
	if owned {
		if err := h.engine.Stop(context.Background()); err != nil {
			slog.Warn("stop orphaned run", "error", err)
		}
	}
}

const errRunOwned = "run in progress belongs to another client"

// ownedByOther reports whether a live run belongs to a client other than c.
func (h *Hub) ownedByOther(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.owner != nil && h.owner != c
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local desktop shell
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameTypeRequest:
			c.handleRequest(ctx, frame)
		default:
			slog.Debug("ws unknown frame type", "type", frame.Type)
		}
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch Method(frame.Method) {
	case MethodStartAutomation:
		var params StartParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(ctx, frame.ID, "invalid params")
			return
		}
		if params.RunID == "" {
			c.sendError(ctx, frame.ID, "run_id is required")
			return
		}
		if c.hub.ownedByOther(c) {
			c.sendError(ctx, frame.ID, errRunOwned)
			return
		}

		updates, err := c.hub.engine.Start(ctx, params)
		if err != nil {
			slog.Warn("ws start rejected", "run_id", params.RunID, "error", err)
			c.sendError(ctx, frame.ID, err.Error())
			return
		}

		c.hub.mu.Lock()
		c.hub.owner, c.hub.ownerRun = c, params.RunID
		c.hub.mu.Unlock()

		// The response is queued before any update of the run.
		c.sendOK(ctx, frame.ID, StartResult{RunID: params.RunID})
		go c.forward(ctx, params.RunID, updates)

	case MethodStopAutomation:
		if c.hub.ownedByOther(c) {
			c.sendError(ctx, frame.ID, errRunOwned)
			return
		}
		if err := c.hub.engine.Stop(ctx); err != nil {
			c.sendError(ctx, frame.ID, err.Error())
			return
		}
		c.sendOK(ctx, frame.ID, map[string]string{"status": "stopping"})

	default:
		c.sendError(ctx, frame.ID, "unknown method: "+frame.Method)
	}
}

// forward pushes every update of a run to the client, then marks the end of
// the stream.
func (c *Client) forward(ctx context.Context, runID string, updates <-chan automation.Update) {
	for u := range updates {
		f, err := NewEventFrame(EventAutomationUpdate, runID, u)
		if err != nil {
			slog.Error("marshal update frame", "run_id", runID, "error", err)
			continue
		}
		c.push(ctx, f)
	}

	c.hub.mu.Lock()
	if c.hub.ownerRun == runID {
		c.hub.owner, c.hub.ownerRun = nil, ""
	}
	c.hub.mu.Unlock()

	f, err := NewEventFrame(EventAutomationClosed, runID, nil)
	if err != nil {
		slog.Error("marshal closed frame", "run_id", runID, "error", err)
		return
	}
	c.push(ctx, f)
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// push queues a frame, waiting for room so run updates are never dropped.
func (c *Client) push(ctx context.Context, f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-ctx.Done():
	}
}

func (c *Client) sendOK(ctx context.Context, id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	c.push(ctx, f)
}

func (c *Client) sendError(ctx context.Context, id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	c.push(ctx, f)
}

// Close shuts down all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
