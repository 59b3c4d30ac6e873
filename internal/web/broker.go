package web

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/orchestrator"
)

var (
	// ErrUnknownNode is returned for node ids the canvas does not hold.
	ErrUnknownNode = errors.New("unknown node")
	// ErrAlreadyRunning is returned when a completion is already streaming.
	ErrAlreadyRunning = errors.New("completion already running")
	// ErrNoRunner is returned before an orchestrator is bound.
	ErrNoRunner = errors.New("no orchestrator bound")
)

// Canvas is the part of the graph store the web host uses.
type Canvas interface {
	Snapshot() canvas.Snapshot
	Node(id string) (*canvas.Node, bool)
	Subscribe(fn func(canvas.Event)) func()
	RequestMenu(nodeID string)
	NotifyRendered(nodeID string)
}

// Runner controls running completions.
type Runner interface {
	Cancel(nodeID string) bool
	Running(nodeID string) bool
}

// MessageBroker relays canvas changes and completion states to the hub and
// turns client commands into canvas requests.
type MessageBroker struct {
	canvas Canvas
	hub    *Hub

	mu          sync.RWMutex
	runner      Runner
	unsubscribe func()
}

// NewMessageBroker creates a broker for c.
func NewMessageBroker(c Canvas, hub *Hub) *MessageBroker {
	return &MessageBroker{canvas: c, hub: hub}
}

// SetRunner binds the orchestrator controlling completions.
func (mb *MessageBroker) SetRunner(r Runner) {
	mb.mu.Lock()
	mb.runner = r
	mb.mu.Unlock()
}

func (mb *MessageBroker) getRunner() Runner {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.runner
}

// Start forwards store events to the hub.
func (mb *MessageBroker) Start() {
	unsubscribe := mb.canvas.Subscribe(func(ev canvas.Event) {
		if ev.Kind == canvas.EventRender {
			return
		}
		mb.hub.Broadcast(EventMessage(ev))
	})
	mb.mu.Lock()
	mb.unsubscribe = unsubscribe
	mb.mu.Unlock()
}

// Stop detaches from the store.
func (mb *MessageBroker) Stop() {
	mb.mu.Lock()
	unsubscribe := mb.unsubscribe
	mb.unsubscribe = nil
	mb.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Observe broadcasts an orchestrator state transition. It is meant to be
// passed to orchestrator.WithStateObserver.
func (mb *MessageBroker) Observe(tr orchestrator.Transition) {
	msg := &WebMessage{
		Type:         MessageTypeState,
		NodeID:       tr.NodeID,
		CompletionID: tr.CompletionID,
		From:         string(tr.From),
		To:           string(tr.To),
		Timestamp:    time.Now(),
	}
	if tr.Err != nil {
		msg.Error = tr.Err.Error()
	}
	mb.hub.Broadcast(msg)
}

// Complete asks the host to complete nodeID.
func (mb *MessageBroker) Complete(nodeID string) error {
	runner := mb.getRunner()
	if runner == nil {
		return ErrNoRunner
	}
	if _, ok := mb.canvas.Node(nodeID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if runner.Running(nodeID) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, nodeID)
	}
	logger.Debug("completion requested for %s", nodeID)
	mb.canvas.RequestMenu(nodeID)
	return nil
}

// Cancel stops the completion running on nodeID.
func (mb *MessageBroker) Cancel(nodeID string) bool {
	runner := mb.getRunner()
	if runner == nil {
		return false
	}
	return runner.Cancel(nodeID)
}

// Rendered reports that the client has drawn nodeID.
func (mb *MessageBroker) Rendered(nodeID string) {
	mb.canvas.NotifyRendered(nodeID)
}

// Snapshot returns the current graph.
func (mb *MessageBroker) Snapshot() *WebMessage {
	return SnapshotMessage(mb.canvas.Snapshot())
}
