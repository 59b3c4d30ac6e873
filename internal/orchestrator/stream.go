package orchestrator

import (
	"fmt"
	"math"

	"github.com/codefionn/canvaschat/internal/artifacts"
	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/placement"
	"github.com/codefionn/canvaschat/internal/tools"
)

// noResponse is the tool node content until its result arrives.
const noResponse = "NO RESPONSE"

// consume drains stream into the completion node.
func (inv *invocation) consume(stream llm.Stream) error {
	defer stream.Close()

	store := inv.o.store
	acc := llm.NewToolCallAccumulator(func(c llm.MergeConflict) {
		inv.log.Warn("tool call delta: %v", c)
	})
	guard := newRepetitionGuard()

	for {
		if inv.ctx.Err() != nil {
			return ErrCancelled
		}
		if !stream.Next() {
			break
		}
		ev := stream.Event()

		if ev.TextDelta != "" {
			if err := inv.addText(ev.TextDelta); err != nil {
				return err
			}
			if pattern, loop := guard.Add(ev.TextDelta); loop {
				inv.log.Warn("repetition of %q", truncateForLog(pattern))
				return ErrRepetition
			}
		}

		if len(ev.ToolCallDeltas) > 0 && acc.Apply(ev.ToolCallDeltas...) {
			inv.calls = acc.ToolCalls()
			calls := append([]llm.ToolCall(nil), inv.calls...)
			if err := store.SetNodeData(inv.completionID, func(d *canvas.NodeData) {
				d.ToolCalls = calls
			}); err != nil {
				return err
			}
			inv.toggleColor()
		}

		if ev.FinishReason != "" {
			inv.finishReason = ev.FinishReason
		}
	}

	if err := stream.Err(); err != nil {
		return inv.streamErr(err)
	}
	if inv.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// toggleColor flips the completion node between yellow and green so the
// host shows progress while only tool calls arrive.
func (inv *invocation) toggleColor() {
	if inv.color == consts.ColorYellow {
		inv.color = consts.ColorGreen
	} else {
		inv.color = consts.ColorYellow
	}
	if err := inv.o.store.SetNodeColor(inv.completionID, inv.color); err != nil {
		inv.log.Warn("toggle color: %v", err)
	}
}

func truncateForLog(s string) string {
	const max = 80
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

func (inv *invocation) addText(delta string) error {
	inv.text += delta

	blocks := artifacts.ExtractBlocks(inv.text)
	rendered := inv.text
	if len(blocks) > 0 {
		rendered = artifacts.ReplaceBlocks(inv.text, blocks)
	}
	if err := inv.o.store.SetNodeText(inv.completionID, rendered); err != nil {
		return err
	}

	inv.materialize(blocks, false)
	inv.resize.Trigger()
	return nil
}

// materialize creates or updates one artifact node per artifact block.
// Artifacts count as completed only once the whole stream has finished.
func (inv *invocation) materialize(blocks []artifacts.Block, final bool) {
	store := inv.o.store
	changed := false

	for _, block := range artifacts.Artifacts(blocks) {
		completed := final
		fp := artifacts.Fingerprint(block)

		id, ok := inv.findArtifact(block.Identifier)
		if ok && inv.fingerprints[block.Identifier] == fp && inv.completed[block.Identifier] == completed {
			continue
		}

		update := func(d *canvas.NodeData) {
			d.MetaType = canvas.MetaArtifact
			d.Identifier = block.Identifier
			d.Src = block.Content
			d.Completed = completed
			d.Title = block.Title
			d.ContentType = block.ContentType
			d.Language = block.Language
		}

		if ok {
			if err := store.SetNodeData(id, update); err != nil {
				inv.log.Warn("update artifact %s: %v", block.Identifier, err)
				continue
			}
		} else {
			node, err := inv.createArtifact(update)
			if err != nil {
				inv.log.Warn("create artifact %s: %v", block.Identifier, err)
				continue
			}
			inv.artifactNodes[block.Identifier] = node.ID
		}
		inv.fingerprints[block.Identifier] = fp
		inv.completed[block.Identifier] = completed
		changed = true
	}

	if changed {
		store.RequestSave()
		store.RequestRender()
	}
}

// findArtifact looks up the node of identifier, first in the invocation
// cache and then among the completion node's children.
func (inv *invocation) findArtifact(identifier string) (string, bool) {
	if id, ok := inv.artifactNodes[identifier]; ok {
		return id, true
	}
	store := inv.o.store
	for _, edge := range store.OutgoingEdges(inv.completionID) {
		node, ok := store.Node(edge.ToNode)
		if !ok {
			continue
		}
		if node.Data.IsArtifact() && node.Data.Identifier == identifier {
			inv.artifactNodes[identifier] = node.ID
			return node.ID, true
		}
	}
	return "", false
}

func (inv *invocation) createArtifact(update func(*canvas.NodeData)) (*canvas.Node, error) {
	store := inv.o.store
	completion, ok := store.Node(inv.completionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", canvas.ErrNodeNotFound, inv.completionID)
	}

	var data canvas.NodeData
	update(&data)
	return placement.AddNeighbour(store, completion, consts.NodeGap, placement.NeighbourOptions{
		Offset:    &canvas.Point{X: completion.Width + consts.NodeGap, Y: 0},
		EdgeColor: consts.ColorOrange,
		Size:      canvas.Size{Width: consts.ArtifactNodeWidth, Height: consts.ArtifactNodeHeight},
		Data:      data,
	})
}

// finish persists the final assistant message on the completion node.
func (inv *invocation) finish() {
	store := inv.o.store
	id := inv.completionID

	blocks := artifacts.ExtractBlocks(inv.text)
	inv.materialize(blocks, true)

	if inv.finishReason == "" {
		inv.finishReason = llm.FinishStop
	}

	msg := llm.AssistantMessage(inv.text, inv.calls...)
	calls := append([]llm.ToolCall(nil), inv.calls...)
	hasArtifacts := len(artifacts.Artifacts(blocks)) > 0
	reason := inv.finishReason
	if err := store.SetNodeData(id, func(d *canvas.NodeData) {
		d.Role = llm.RoleAssistant
		d.MetaType = canvas.MetaAIEnabled
		d.Message = &msg
		d.ToolCalls = calls
		d.HasArtifacts = hasArtifacts
		d.FinishReason = reason
	}); err != nil {
		inv.log.Warn("store final message: %v", err)
	}

	if err := store.SetNodeColor(id, consts.ColorCyan); err != nil {
		inv.log.Warn("color completion: %v", err)
	}
	if err := store.SetKeepLoaded(id, false); err != nil {
		inv.log.Warn("unpin completion: %v", err)
	}
	inv.resize.Flush()
	inv.fitHeight(id)
	store.RequestSave()
	store.RequestRender()

	inv.log.Info("finished with %q after %d characters, %d tool calls", reason, len(inv.text), len(inv.calls))
}

// dispatch renders one node per tool call, runs the calls, and places the
// nodes tools emitted. It returns the follow-up on the last node.
func (inv *invocation) dispatch() (*followUp, error) {
	store := inv.o.store
	completion, ok := store.Node(inv.completionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", canvas.ErrNodeNotFound, inv.completionID)
	}
	if err := store.SetKeepLoaded(completion.ID, true); err != nil {
		inv.log.Warn("pin completion: %v", err)
	}

	nodes := make([]*canvas.Node, 0, len(inv.calls))
	var prev *canvas.Node
	for _, call := range inv.calls {
		node, err := inv.createToolNode(completion, prev, call)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		prev = node
	}
	store.RequestSave()
	store.RequestRender()

	results := inv.dispatcher().DispatchOrdered(inv.ctx, inv.calls)

	last := prev
	additionalRef := completion
	for i, res := range results {
		node := nodes[i]
		text := node.Text + "\n```json\n" + res.Content + "\n```"
		if err := store.SetNodeText(node.ID, text); err != nil {
			return nil, err
		}
		msg := res.Message()
		if err := store.SetNodeData(node.ID, func(d *canvas.NodeData) {
			d.Message = &msg
		}); err != nil {
			return nil, err
		}
		if !res.Success {
			inv.log.Warn("tool %s failed: %s", res.Name, res.Content)
		}
		inv.fitHeight(node.ID)

		for _, spec := range res.AdditionalNodes {
			added, err := inv.placeAdditional(last, additionalRef, spec)
			if err != nil {
				return nil, err
			}
			last = added
			additionalRef = added
		}
	}

	if err := store.SetKeepLoaded(completion.ID, false); err != nil {
		inv.log.Warn("unpin completion: %v", err)
	}
	store.RequestSave()
	store.RequestRender()

	if inv.ctx.Err() != nil {
		return nil, ErrCancelled
	}
	return &followUp{
		target: last.ID,
		opts:   Options{Reference: additionalRef, EdgeColor: consts.ColorGreen},
	}, nil
}

func (inv *invocation) dispatcher() *tools.Dispatcher {
	reg := inv.o.registry
	if reg == nil {
		reg = tools.NewRegistry()
	}
	opts := []tools.DispatcherOption{
		tools.WithResultBudget(inv.settings.ToolResultBudget),
		tools.WithTimeout(inv.settings.ToolTimeout),
	}
	if counter, ok := inv.o.tokenizer.(tools.TextCounter); ok {
		opts = append(opts, tools.WithTextCounter(counter))
	}
	return tools.NewDispatcher(reg, opts...)
}

// createToolNode places the node showing call. The first node lines up
// with the bottom of the completion; later ones stack below prev.
func (inv *invocation) createToolNode(completion, prev *canvas.Node, call llm.ToolCall) (*canvas.Node, error) {
	anchor := completion
	ref := completion
	wanted := float64(consts.ToolNodeMaxHeight)
	var offset *canvas.Point
	if prev == nil {
		wanted = math.Min(consts.ToolNodeMaxHeight, completion.Height)
		offset = &canvas.Point{X: completion.Width + 2*consts.NodeGap, Y: completion.Height - wanted}
	} else {
		anchor = prev
		ref = prev
	}

	args := call.Function.Arguments
	if args == "" {
		args = "{}"
	}
	text := "```javascript\nconst result = await " + call.Function.Name + "(" + args + ");\n```"
	msg := llm.ToolMessage(noResponse, call.ID)

	node, err := placement.AddNeighbour(inv.o.store, anchor, consts.NodeGap, placement.NeighbourOptions{
		Reference: ref,
		Offset:    offset,
		EdgeColor: consts.ColorOrange,
		Size:      canvas.Size{Width: ref.Width, Height: wanted},
		Text:      text,
		Data: canvas.NodeData{
			Role:     llm.RoleTool,
			MetaType: canvas.MetaAIEnabled,
			Message:  &msg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool node for %s: %w", call.Function.Name, err)
	}
	if err := inv.o.store.SetNodeColor(node.ID, consts.ColorPurple); err != nil {
		return nil, err
	}
	return node, nil
}

// placeAdditional renders a node a tool emitted below last.
func (inv *invocation) placeAdditional(last, reference *canvas.Node, spec tools.AdditionalNodeSpec) (*canvas.Node, error) {
	store := inv.o.store

	size := canvas.Size{Width: consts.AdditionalNodeSize, Height: consts.AdditionalNodeSize}
	if spec.Size != nil {
		size = *spec.Size
	}

	msg := llm.UserMessage(spec.Content)
	if spec.Message != nil {
		msg = *spec.Message.Clone()
	}
	if msg.Role == "" {
		msg.Role = llm.RoleUser
	}

	node, err := placement.AddNeighbour(store, last, consts.NodeGap, placement.NeighbourOptions{
		Reference: reference,
		Size:      size,
		Text:      spec.Content,
		Data: canvas.NodeData{
			Role:         msg.Role,
			MetaType:     canvas.MetaAIEnabled,
			Message:      &msg,
			IsToolResult: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("additional node: %w", err)
	}
	if spec.Size == nil {
		inv.fitHeight(node.ID)
	}
	if fresh, ok := store.Node(node.ID); ok {
		node = fresh
	}
	return node, nil
}
