package canvas

import "errors"

var (
	// ErrNodeNotFound is returned by store mutations on unknown ids.
	ErrNodeNotFound = errors.New("node not found")
	// ErrGraphInconsistency marks an edge pointing at a node that does not
	// exist. Walks treat it as "no parent".
	ErrGraphInconsistency = errors.New("graph inconsistency")
	// ErrDuplicateNode is returned when a NodeSpec reuses an existing id.
	ErrDuplicateNode = errors.New("node already exists")
)

// GraphStore is the host canvas as seen by the orchestrator. Node returns
// copies; changes go through the mutation methods.
type GraphStore interface {
	Node(id string) (*Node, bool)
	CreateNode(spec NodeSpec) (*Node, error)
	SetNodeData(id string, update func(*NodeData)) error
	SetNodeText(id, text string) error
	ResizeNode(id string, size Size) error
	SetNodeColor(id, color string) error
	SetKeepLoaded(id string, keep bool) error

	AddEdge(edge Edge) error
	// IncomingEdge returns the inbound edge of id. When a node has several
	// inbound edges the first one added wins.
	IncomingEdge(id string) (*Edge, bool)
	OutgoingEdges(id string) []Edge

	// IntersectingNodes returns every node whose box overlaps rect.
	IntersectingNodes(rect Rect) []*Node

	RequestSave()
	RequestRender()

	// OnNodeRendered and OnMenuRequested subscribe to host UI events. The
	// returned function unsubscribes.
	OnNodeRendered(fn func(nodeID string)) func()
	OnMenuRequested(fn func(nodeID string)) func()
}
