package canvas

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/logger"
)

// ParentFunc resolves the conversational parent of a node, or nil.
type ParentFunc func(n *Node) *Node

// StoreParent resolves parents through the first inbound edge of store. An
// edge whose source is missing is logged and treated as no parent.
func StoreParent(store GraphStore) ParentFunc {
	return func(n *Node) *Node {
		if n == nil {
			return nil
		}
		edge, ok := store.IncomingEdge(n.ID)
		if !ok {
			return nil
		}
		parent, ok := store.Node(edge.FromNode)
		if !ok {
			logger.Warn("%v: edge %s points from missing node %s", ErrGraphInconsistency, edge.ID, edge.FromNode)
			return nil
		}
		return parent
	}
}

// Ancestors returns the ancestors of node, oldest first. The node itself is
// not included. The walk stops at a missing parent or at the first node it
// has already visited.
func Ancestors(node *Node, parent ParentFunc) []*Node {
	if node == nil || parent == nil {
		return nil
	}

	seen := map[string]struct{}{node.ID: {}}
	var chain []*Node
	for current := parent(node); current != nil; current = parent(current) {
		if _, ok := seen[current.ID]; ok {
			break
		}
		seen[current.ID] = struct{}{}
		chain = append(chain, current)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// CountRoleOccurrences walks the ancestors of node nearest first and counts
// those whose role is role. reference is the ancestor at which the count
// first became a multiple of everyN, or nil.
func CountRoleOccurrences(node *Node, parent ParentFunc, role Role, everyN int) (count int, reference *Node) {
	ancestors := Ancestors(node, parent)
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].Data.Role != role {
			continue
		}
		count++
		if reference == nil && everyN > 0 && count%everyN == 0 {
			reference = ancestors[i]
		}
	}
	return count, reference
}

// Text metrics for EstimateHeight; they approximate the host's default
// Markdown rendering.
const (
	charWidth     = 8.0
	lineHeight    = 24.0
	nodePadding   = 48.0
	maxAutoHeight = 4000.0
)

// EstimateHeight guesses the rendered height of text in a node of width.
func EstimateHeight(text string, width float64) float64 {
	if width <= 0 {
		width = consts.InputNodeWidth
	}
	perLine := math.Max(1, math.Floor((width-nodePadding)/charWidth))

	lines := 0.0
	for _, line := range strings.Split(text, "\n") {
		n := float64(utf8.RuneCountInString(line))
		lines += math.Max(1, math.Ceil(n/perLine))
	}

	height := lines*lineHeight + nodePadding
	return math.Min(math.Max(height, consts.MinNodeHeight), maxAutoHeight)
}
