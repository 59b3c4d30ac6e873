package web

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	// maxPending is the backlog after which a client counts as stalled.
	maxPending = 512
)

// Client is one websocket connection. Outgoing messages are queued; an
// unsent node_updated is replaced by a newer one for the same node, so a
// slow browser sees the latest text of a streaming node instead of every
// delta.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	broker *MessageBroker

	mu      sync.Mutex
	pending []*WebMessage
	updates map[string]int // node id -> index of its queued node_updated
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewClient creates a client for conn.
func NewClient(hub *Hub, conn *websocket.Conn, broker *MessageBroker) *Client {
	return &Client{
		ID:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		broker:  broker,
		updates: make(map[string]int),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// enqueue queues msg. It returns false once the client is closed or its
// backlog is full.
func (c *Client) enqueue(msg *WebMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	coalesce := msg.Type == MessageTypeNodeUpdated && msg.NodeID != ""
	if coalesce {
		if i, ok := c.updates[msg.NodeID]; ok {
			c.pending[i] = msg
			return true
		}
	}
	if len(c.pending) >= maxPending {
		return false
	}
	if coalesce {
		c.updates[msg.NodeID] = len(c.pending)
	}
	c.pending = append(c.pending, msg)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// take drains the queue.
func (c *Client) take() []*WebMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	clear(c.updates)
	return out
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// ReadPump reads client commands until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("client %s: read failed: %v", c.ID, err)
			}
			return
		}

		var msg WebMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(&WebMessage{Type: MessageTypeError, Error: "malformed message: " + err.Error(), Timestamp: time.Now()})
			continue
		}

		if err := c.handleMessage(&msg); err != nil {
			logger.Debug("client %s: %v", c.ID, err)
			c.enqueue(&WebMessage{Type: MessageTypeError, NodeID: msg.NodeID, Error: err.Error(), Timestamp: time.Now()})
		}
	}
}

// WritePump writes queued messages and keeps the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.wake:
			for _, msg := range c.take() {
				if err := c.write(msg); err != nil {
					logger.Debug("client %s: write failed: %v", c.ID, err)
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) write(msg *WebMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("failed to marshal %s message: %v", msg.Type, err)
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) handleMessage(msg *WebMessage) error {
	switch msg.Type {
	case MessageTypeComplete:
		return c.broker.Complete(msg.NodeID)
	case MessageTypeCancel:
		if !c.broker.Cancel(msg.NodeID) {
			return fmt.Errorf("nothing running on %s", msg.NodeID)
		}
	case MessageTypeRendered:
		c.broker.Rendered(msg.NodeID)
	case MessageTypeGetState:
		c.enqueue(c.broker.Snapshot())
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
	return nil
}
