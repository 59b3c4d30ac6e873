package web

import (
	"sync"

	"github.com/codefionn/canvaschat/internal/logger"
)

// Hub fans canvas events out to the connected clients.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	events   chan *WebMessage
	quit     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. Run must be started before events are delivered.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		events:  make(chan *WebMessage, 256),
		quit:    make(chan struct{}),
	}
}

// Run delivers broadcast events until Stop.
func (h *Hub) Run() {
	logger.Debug("websocket hub started")
	for {
		select {
		case msg := <-h.events:
			h.deliver(msg)
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			logger.Debug("websocket hub stopped")
			return
		}
	}
}

func (h *Hub) deliver(msg *WebMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.enqueue(msg) {
			logger.Warn("dropping stalled client %s", client.ID)
			client.close()
			delete(h.clients, client)
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register adds a client. Clients registering after Stop are closed.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.quit:
		client.close()
		return
	default:
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	logger.Debug("client %s connected", client.ID)
}

// Unregister removes a client and stops its writer.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
	if ok {
		logger.Debug("client %s disconnected", client.ID)
	}
}

// Broadcast queues msg for every client. It never blocks; when the hub is
// backed up the event is dropped and clients can resync with get_snapshot.
func (h *Hub) Broadcast(msg *WebMessage) {
	select {
	case h.events <- msg:
	default:
		logger.Warn("hub backlog full, dropping %s event", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
