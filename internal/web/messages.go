package web

import (
	"time"

	"github.com/codefionn/canvaschat/internal/canvas"
)

// Message types
const (
	// server -> client
	MessageTypeSnapshot    = "snapshot"
	MessageTypeNodeCreated = "node_created"
	MessageTypeNodeUpdated = "node_updated"
	MessageTypeEdgeAdded   = "edge_added"
	MessageTypeSaved       = "saved"
	MessageTypeRender      = "render"
	MessageTypeState       = "state"
	MessageTypeError       = "error"

	// client -> server
	MessageTypeComplete = "complete"
	MessageTypeCancel   = "cancel"
	MessageTypeRendered = "rendered"
	MessageTypeGetState = "get_snapshot"
)

// WebMessage represents a message sent over WebSocket
type WebMessage struct {
	Type   string       `json:"type"`
	NodeID string       `json:"node_id,omitempty"`
	Node   *NodeInfo    `json:"node,omitempty"`
	Edge   *canvas.Edge `json:"edge,omitempty"`
	// Snapshot messages only
	Nodes []*NodeInfo   `json:"nodes,omitempty"`
	Edges []canvas.Edge `json:"edges,omitempty"`
	// State messages only
	CompletionID string    `json:"completion_id,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// NodeInfo is the wire form of a canvas node.
type NodeInfo struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
	Color      string          `json:"color,omitempty"`
	KeepLoaded bool            `json:"keep_loaded,omitempty"`
	Data       canvas.NodeData `json:"data"`
}

// NewNodeInfo converts a node.
func NewNodeInfo(n *canvas.Node) *NodeInfo {
	if n == nil {
		return nil
	}
	return &NodeInfo{
		ID:         n.ID,
		Text:       n.Text,
		X:          n.X,
		Y:          n.Y,
		Width:      n.Width,
		Height:     n.Height,
		Color:      n.Color,
		KeepLoaded: n.KeepLoaded,
		Data:       n.Data.Clone(),
	}
}

// SnapshotMessage renders a whole graph.
func SnapshotMessage(snap canvas.Snapshot) *WebMessage {
	nodes := make([]*NodeInfo, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodes = append(nodes, NewNodeInfo(n))
	}
	return &WebMessage{Type: MessageTypeSnapshot, Nodes: nodes, Edges: snap.Edges, Timestamp: time.Now()}
}

// EventMessage renders a store change event.
func EventMessage(ev canvas.Event) *WebMessage {
	msg := &WebMessage{Timestamp: time.Now()}
	switch ev.Kind {
	case canvas.EventNodeCreated:
		msg.Type = MessageTypeNodeCreated
	case canvas.EventNodeUpdated:
		msg.Type = MessageTypeNodeUpdated
	case canvas.EventEdgeAdded:
		msg.Type = MessageTypeEdgeAdded
	case canvas.EventSaved:
		msg.Type = MessageTypeSaved
	default:
		msg.Type = MessageTypeRender
	}
	if ev.Node != nil {
		msg.Node = NewNodeInfo(ev.Node)
		msg.NodeID = ev.Node.ID
	}
	msg.Edge = ev.Edge
	return msg
}
