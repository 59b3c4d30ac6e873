package canvas

import (
	"fmt"
	"sync"

	"github.com/codefionn/canvaschat/internal/logger"
)

// EventKind names a store change.
type EventKind string

const (
	EventNodeCreated EventKind = "node_created"
	EventNodeUpdated EventKind = "node_updated"
	EventEdgeAdded   EventKind = "edge_added"
	EventSaved       EventKind = "saved"
	EventRender      EventKind = "render"
)

// Event describes one change. Node and Edge are copies.
type Event struct {
	Kind EventKind `json:"kind"`
	Node *Node     `json:"node,omitempty"`
	Edge *Edge     `json:"edge,omitempty"`
}

// Snapshot is a consistent copy of the whole graph, nodes and edges in
// insertion order.
type Snapshot struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// MemoryStore is an in-memory GraphStore. The host adapters (canvas file,
// web server) load it, subscribe to its events and persist it through the
// save handler.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	edges []Edge

	hooksMu   sync.Mutex
	nextHook  int
	listeners map[int]func(Event)
	rendered  map[int]func(string)
	menu      map[int]func(string)
	save      func(Snapshot) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:     make(map[string]*Node),
		listeners: make(map[int]func(Event)),
		rendered:  make(map[int]func(string)),
		menu:      make(map[int]func(string)),
	}
}

// SetSaveHandler installs the function RequestSave persists through.
func (s *MemoryStore) SetSaveHandler(fn func(Snapshot) error) {
	s.hooksMu.Lock()
	s.save = fn
	s.hooksMu.Unlock()
}

// Subscribe registers fn for every change event.
func (s *MemoryStore) Subscribe(fn func(Event)) func() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	id := s.nextHook
	s.nextHook++
	s.listeners[id] = fn
	return func() {
		s.hooksMu.Lock()
		delete(s.listeners, id)
		s.hooksMu.Unlock()
	}
}

func (s *MemoryStore) Node(id string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns all nodes in insertion order.
func (s *MemoryStore) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

func (s *MemoryStore) CreateNode(spec NodeSpec) (*Node, error) {
	id := spec.ID
	if id == "" {
		id = NewID()
	}
	node := &Node{
		ID:     id,
		Text:   spec.Text,
		X:      spec.X,
		Y:      spec.Y,
		Width:  spec.Width,
		Height: spec.Height,
		Color:  spec.Color,
		Data:   spec.Data.Clone(),
	}

	s.mu.Lock()
	if _, exists := s.nodes[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	s.nodes[id] = node
	s.order = append(s.order, id)
	out := node.Clone()
	s.mu.Unlock()

	s.publish(Event{Kind: EventNodeCreated, Node: out.Clone()})
	return out, nil
}

func (s *MemoryStore) update(id string, fn func(n *Node)) error {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	fn(node)
	out := node.Clone()
	s.mu.Unlock()

	s.publish(Event{Kind: EventNodeUpdated, Node: out})
	return nil
}

func (s *MemoryStore) SetNodeData(id string, update func(*NodeData)) error {
	return s.update(id, func(n *Node) { update(&n.Data) })
}

func (s *MemoryStore) SetNodeText(id, text string) error {
	return s.update(id, func(n *Node) { n.Text = text })
}

func (s *MemoryStore) ResizeNode(id string, size Size) error {
	return s.update(id, func(n *Node) {
		n.Width = size.Width
		n.Height = size.Height
	})
}

// MoveNode sets the position of a node.
func (s *MemoryStore) MoveNode(id string, pos Point) error {
	return s.update(id, func(n *Node) {
		n.X = pos.X
		n.Y = pos.Y
	})
}

func (s *MemoryStore) SetNodeColor(id, color string) error {
	return s.update(id, func(n *Node) { n.Color = color })
}

func (s *MemoryStore) SetKeepLoaded(id string, keep bool) error {
	return s.update(id, func(n *Node) { n.KeepLoaded = keep })
}

func (s *MemoryStore) AddEdge(edge Edge) error {
	s.mu.Lock()
	if _, ok := s.nodes[edge.FromNode]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.FromNode)
	}
	if _, ok := s.nodes[edge.ToNode]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.ToNode)
	}
	if edge.ID == "" {
		edge.ID = edge.FromNode + "->" + edge.ToNode
	}
	s.edges = append(s.edges, edge)
	s.mu.Unlock()

	s.publish(Event{Kind: EventEdgeAdded, Edge: &edge})
	return nil
}

// LoadEdge appends an edge without checking its endpoints. The canvas file
// adapter uses it so that dangling edges survive a load/save round trip.
func (s *MemoryStore) LoadEdge(edge Edge) {
	s.mu.Lock()
	s.edges = append(s.edges, edge)
	s.mu.Unlock()
}

func (s *MemoryStore) IncomingEdge(id string) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.edges {
		if s.edges[i].ToNode == id {
			edge := s.edges[i]
			return &edge, true
		}
	}
	return nil, false
}

func (s *MemoryStore) OutgoingEdges(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, edge := range s.edges {
		if edge.FromNode == id {
			out = append(out, edge)
		}
	}
	return out
}

// Edges returns all edges in insertion order.
func (s *MemoryStore) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Edge(nil), s.edges...)
}

func (s *MemoryStore) IntersectingNodes(rect Rect) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Node
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Rect().Intersects(rect) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Snapshot copies the whole graph.
func (s *MemoryStore) Snapshot() Snapshot {
	return Snapshot{Nodes: s.Nodes(), Edges: s.Edges()}
}

// RequestSave persists the graph through the save handler, if any.
func (s *MemoryStore) RequestSave() {
	s.hooksMu.Lock()
	save := s.save
	s.hooksMu.Unlock()

	if save != nil {
		if err := save(s.Snapshot()); err != nil {
			logger.Error("canvas save failed: %v", err)
			return
		}
	}
	s.publish(Event{Kind: EventSaved})
}

func (s *MemoryStore) RequestRender() {
	s.publish(Event{Kind: EventRender})
}

func (s *MemoryStore) OnNodeRendered(fn func(nodeID string)) func() {
	return s.addHook(s.rendered, fn)
}

func (s *MemoryStore) OnMenuRequested(fn func(nodeID string)) func() {
	return s.addHook(s.menu, fn)
}

// NotifyRendered is called by the host once it has drawn nodeID.
func (s *MemoryStore) NotifyRendered(nodeID string) {
	for _, fn := range s.hooks(s.rendered) {
		fn(nodeID)
	}
}

// RequestMenu is called by the host when the user opens the context menu
// of nodeID.
func (s *MemoryStore) RequestMenu(nodeID string) {
	for _, fn := range s.hooks(s.menu) {
		fn(nodeID)
	}
}

func (s *MemoryStore) addHook(set map[int]func(string), fn func(string)) func() {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	id := s.nextHook
	s.nextHook++
	set[id] = fn
	return func() {
		s.hooksMu.Lock()
		delete(set, id)
		s.hooksMu.Unlock()
	}
}

func (s *MemoryStore) hooks(set map[int]func(string)) []func(string) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	out := make([]func(string), 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

func (s *MemoryStore) publish(ev Event) {
	s.hooksMu.Lock()
	listeners := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.hooksMu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

var _ GraphStore = (*MemoryStore)(nil)
