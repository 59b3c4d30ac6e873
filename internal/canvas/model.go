// Package canvas holds the node/edge model of a conversation canvas, the
// GraphStore interface the rest of the module mutates it through, and the
// ancestor walk that turns a node into a linear conversation.
package canvas

import (
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/google/uuid"
)

// Role is the author of the message a node carries.
type Role = llm.Role

// MetaType classifies what a node is for.
type MetaType string

const (
	MetaAIEnabled         MetaType = "ai-enabled"
	MetaArtifact          MetaType = "artifact"
	MetaAdditionalContent MetaType = "additional-content"
)

// Side is the side of a node an edge attaches to.
type Side string

const (
	SideTop    Side = "top"
	SideRight  Side = "right"
	SideBottom Side = "bottom"
	SideLeft   Side = "left"
)

// Point is a canvas position.
type Point struct {
	X float64
	Y float64
}

// Size is a canvas extent.
type Size struct {
	Width  float64
	Height float64
}

// Rect is an axis aligned box on the canvas.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Intersects reports whether the two boxes overlap. Touching edges do not
// count as overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// NodeData is the conversation payload stored on a node.
type NodeData struct {
	Role         Role         `json:"role,omitempty"`
	MetaType     MetaType     `json:"metaType,omitempty"`
	Message      *llm.Message `json:"message,omitempty"`
	FinishReason string       `json:"finishReason,omitempty"`
	// ToolCalls mirrors the calls accumulated while streaming.
	ToolCalls []llm.ToolCall `json:"toolCalls,omitempty"`

	DisableFunctions            bool `json:"disableFunctions,omitempty"`
	IncludeOriginalSystemPrompt bool `json:"includeOriginalSystemPrompt,omitempty"`
	HasArtifacts                bool `json:"hasArtifacts,omitempty"`
	IsToolResult                bool `json:"isToolResult,omitempty"`

	// Artifact nodes only.
	Identifier  string `json:"identifier,omitempty"`
	Src         string `json:"src,omitempty"`
	Completed   bool   `json:"completed,omitempty"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Clone returns a deep copy.
func (d NodeData) Clone() NodeData {
	out := d
	out.Message = d.Message.Clone()
	out.ToolCalls = append([]llm.ToolCall(nil), d.ToolCalls...)
	return out
}

// IsArtifact reports whether the node renders a generated artifact.
func (d *NodeData) IsArtifact() bool {
	return d.MetaType == MetaArtifact
}

// Node is one turn or artifact on the canvas.
type Node struct {
	ID         string
	Text       string
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Color      string
	KeepLoaded bool
	Data       NodeData
}

// Rect returns the bounding box of the node.
func (n *Node) Rect() Rect {
	return Rect{X: n.X, Y: n.Y, Width: n.Width, Height: n.Height}
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Data = n.Data.Clone()
	return &out
}

// NodeSpec describes a node to create. An empty ID is filled with NewID.
type NodeSpec struct {
	ID     string
	Text   string
	X      float64
	Y      float64
	Width  float64
	Height float64
	Color  string
	Data   NodeData
}

// Edge links a conversational parent (From) to its child (To).
type Edge struct {
	ID       string `json:"id"`
	FromNode string `json:"fromNode"`
	FromSide Side   `json:"fromSide"`
	ToNode   string `json:"toNode"`
	ToSide   Side   `json:"toSide"`
	Color    string `json:"color,omitempty"`
}

// NewID returns a fresh node identifier.
func NewID() string {
	return uuid.NewString()
}
