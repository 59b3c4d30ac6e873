package consts

import "time"

// Canvas geometry
const (
	// NodeGap is the vertical distance between a node and the node placed below it
	NodeGap = 50
	// HorizontalGap is added to the right edge of a blocking node when shifting a candidate
	HorizontalGap = 150
	// PlacementLookahead extends the candidate rectangle downwards so that later growth does not collide
	PlacementLookahead = 1500
	// FollowUpOffsetX is the extra horizontal offset for tool follow-up completions
	FollowUpOffsetX = 50
)

// Node sizes
const (
	CompletionNodeWidth = 800
	InputNodeWidth      = 400
	ArtifactNodeWidth   = 1280
	ArtifactNodeHeight  = 720
	AdditionalNodeSize  = 400
	// ToolNodeMaxHeight caps the vertical offset used to line up the first tool node
	ToolNodeMaxHeight = 568
	DrawNodeWidth     = 534
	DrawNodeHeight    = 672
	// MinNodeHeight is used when a node is auto-sized from empty text
	MinNodeHeight = 60
)

// Token budgets
const (
	// DefaultTokenBudget is the maximum number of tokens sent to a completion source
	DefaultTokenBudget = 150000
	// ToolResultTokenBudget caps the size of a single serialized tool result
	ToolResultTokenBudget = 50000
	// ToolResultKeepRatio is the share of a tool result kept on each truncation step
	ToolResultKeepRatio = 0.75
)

// Conversation shape
const (
	// ReferenceEveryN makes every Nth user turn anchor to an older node
	ReferenceEveryN = 3
)

// Timing
const (
	// ResizeThrottle is the minimum interval between two resize passes of a streaming node
	ResizeThrottle = 100 * time.Millisecond
	// HTTPTimeout is used by the built-in tools' HTTP clients
	HTTPTimeout = 30 * time.Second
	// ShutdownTimeout bounds graceful shutdown of the web host
	ShutdownTimeout = 5 * time.Second
)

// Canvas color tags
const (
	ColorRed    = "1"
	ColorOrange = "2"
	ColorYellow = "3"
	ColorGreen  = "4"
	ColorCyan   = "5"
	ColorPurple = "6"
)
