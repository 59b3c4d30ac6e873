package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/history"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/placement"
	"github.com/codefionn/canvaschat/internal/userinput"
)

// followUp is the ModeTool invocation that continues after tool results.
type followUp struct {
	target string
	opts   Options
}

// invocation is one pass of the state machine on a single target node.
type invocation struct {
	o        *Orchestrator
	ctx      context.Context
	cancel   context.CancelFunc
	settings Settings
	mode     Mode
	opts     Options
	targetID string
	log      *logger.Logger
	state    State

	registered []string
	unrender   func()

	inputNodeID  string
	completionID string
	text         string
	finishReason string
	calls        []llm.ToolCall
	color        string
	resize       *throttle

	artifactNodes map[string]string
	fingerprints  map[string]uint64
	completed     map[string]bool
}

func (o *Orchestrator) newInvocation(ctx context.Context, target string, mode Mode, opts Options, settings Settings) (*invocation, error) {
	ctx, cancel := context.WithCancel(ctx)
	if err := o.register([]string{target}, cancel); err != nil {
		cancel()
		return nil, err
	}
	return &invocation{
		o:             o,
		ctx:           ctx,
		cancel:        cancel,
		settings:      settings,
		mode:          mode,
		opts:          opts,
		targetID:      target,
		log:           o.log.ForNode("completion", target),
		registered:    []string{target},
		artifactNodes: make(map[string]string),
		fingerprints:  make(map[string]uint64),
		completed:     make(map[string]bool),
	}, nil
}

func (inv *invocation) release() {
	if inv.unrender != nil {
		inv.unrender()
	}
	inv.o.unregister(inv.registered)
	inv.cancel()
}

func (inv *invocation) transition(to State, err error) {
	from := inv.state
	inv.state = to
	if err != nil {
		inv.log.Warn("%s -> %s: %v", from, to, err)
	} else {
		inv.log.Debug("%s -> %s", from, to)
	}
	if inv.o.observer != nil {
		inv.o.observer(Transition{NodeID: inv.targetID, CompletionID: inv.completionID, From: from, To: to, Err: err})
	}
}

func (inv *invocation) run() (*followUp, error) {
	store := inv.o.store
	inv.transition(StateCollectingInput, nil)

	target, ok := store.Node(inv.targetID)
	if !ok {
		err := fmt.Errorf("%w: %s", canvas.ErrNodeNotFound, inv.targetID)
		inv.transition(StateErrored, err)
		return nil, err
	}

	if needsInputNode(target, inv.mode) {
		node, err := inv.createInputNode(target)
		if err != nil {
			inv.transition(StateErrored, err)
			return nil, err
		}
		inv.inputNodeID = node.ID
		inv.transition(StateDone, nil)
		return nil, nil
	}

	input, err := inv.collectInput(target)
	if err != nil {
		inv.transition(StateErrored, err)
		return nil, err
	}

	inv.transition(StateAwaitingStream, nil)
	req := inv.buildRequest(target, input)

	if err := inv.createCompletionNode(target); err != nil {
		inv.transition(StateErrored, err)
		return nil, err
	}

	stream, err := inv.o.source.Stream(inv.ctx, req)
	if err != nil {
		return nil, inv.fail(inv.streamErr(err))
	}

	inv.transition(StateStreaming, nil)
	if err := inv.consume(stream); err != nil {
		return nil, inv.fail(err)
	}

	inv.finish()
	if inv.finishReason != llm.FinishToolCalls || len(inv.calls) == 0 {
		inv.transition(StateDone, nil)
		return nil, nil
	}

	inv.transition(StateToolDispatch, nil)
	next, err := inv.dispatch()
	if err != nil {
		return nil, inv.fail(err)
	}
	inv.transition(StateDone, nil)
	return next, nil
}

func (inv *invocation) streamErr(err error) error {
	if inv.ctx.Err() != nil {
		return ErrCancelled
	}
	return &StreamError{Source: inv.o.source.Name(), Err: err}
}

func roleOf(node *canvas.Node) llm.Role {
	if node.Data.Role != "" {
		return node.Data.Role
	}
	if node.Data.Message != nil {
		return node.Data.Message.Role
	}
	return ""
}

// needsInputNode reports whether target is a reply rather than an input.
// A tool node is an input only for the automatic follow-up.
func needsInputNode(target *canvas.Node, mode Mode) bool {
	switch roleOf(target) {
	case llm.RoleAssistant, llm.RoleSystem:
		return true
	case llm.RoleTool:
		return mode == ModeUser
	default:
		return false
	}
}

func (inv *invocation) createInputNode(target *canvas.Node) (*canvas.Node, error) {
	store := inv.o.store
	reference := inv.opts.Reference
	offset := inv.opts.Offset

	if inv.mode == ModeUser {
		count, anchor := canvas.CountRoleOccurrences(target, canvas.StoreParent(store), llm.RoleUser, consts.ReferenceEveryN)
		if count > 0 && count%consts.ReferenceEveryN == 0 && anchor != nil {
			reference = anchor
		}
		inv.log.Debug("%d user turns above, reference %v", count, reference != nil)
	} else {
		reference = nil
		offset = &canvas.Point{X: target.Width + consts.FollowUpOffsetX, Y: 0}
	}

	relevant := target
	if reference != nil {
		relevant = reference
	}

	node, err := placement.AddNeighbour(store, target, consts.NodeGap, placement.NeighbourOptions{
		Reference: reference,
		Offset:    offset,
		EdgeColor: inv.opts.EdgeColor,
		Size:      canvas.Size{Width: math.Min(relevant.Width, consts.InputNodeWidth), Height: consts.MinNodeHeight},
		Data: canvas.NodeData{
			Role:     llm.RoleUser,
			MetaType: canvas.MetaAIEnabled,
			Message:  &llm.Message{Role: llm.RoleUser},
		},
	})
	if err != nil {
		return nil, err
	}
	store.RequestSave()
	store.RequestRender()
	return node, nil
}

// collectInput returns the newest message of the conversation.
func (inv *invocation) collectInput(target *canvas.Node) (*llm.Message, error) {
	store := inv.o.store
	data := target.Data

	if roleOf(target) == llm.RoleTool {
		if data.Message == nil {
			return nil, fmt.Errorf("tool node %s carries no message", target.ID)
		}
		return data.Message.Clone(), nil
	}
	if data.IsToolResult && data.Message != nil {
		return data.Message.Clone(), nil
	}

	if data.Message == nil || data.Role == "" {
		if err := store.SetNodeData(target.ID, func(d *canvas.NodeData) {
			d.Role = llm.RoleUser
			d.MetaType = canvas.MetaAIEnabled
			if d.Message == nil {
				d.Message = &llm.Message{Role: llm.RoleUser}
			}
		}); err != nil {
			return nil, err
		}
		target.Data.Role = llm.RoleUser
	}
	inv.fitHeight(target.ID)

	msg, err := userinput.Resolve(inv.ctx, target, inv.o.images)
	if err != nil {
		return nil, fmt.Errorf("resolve input: %w", err)
	}
	return msg, nil
}

// collectAncestors walks from the target's parent upwards and returns the
// conversation oldest first. The walk stops at the first node without a
// message.
func (inv *invocation) collectAncestors(target *canvas.Node) (msgs []llm.Message, disableFunctions, includeDefault bool) {
	store := inv.o.store
	includeDefault = true
	chain := canvas.Ancestors(target, canvas.StoreParent(store))

walk:
	for i := len(chain) - 1; i >= 0; i-- {
		node := chain[i]
		data := node.Data
		if data.Message == nil {
			break
		}
		msg := data.Message.Clone()

		switch msg.Role {
		case llm.RoleSystem, llm.RoleAssistant:
			if !data.HasArtifacts && msg.Text() != node.Text {
				msg.Content = node.Text
				msg.Parts = nil
				refreshed := msg.Clone()
				if err := store.SetNodeData(node.ID, func(d *canvas.NodeData) {
					d.MetaType = canvas.MetaAIEnabled
					d.Message = refreshed
				}); err != nil {
					inv.log.Warn("refresh message of %s: %v", node.ID, err)
				}
			}
			if msg.Role == llm.RoleAssistant && len(data.ToolCalls) > 0 {
				msg.ToolCalls = append([]llm.ToolCall(nil), data.ToolCalls...)
			}
			if msg.Role == llm.RoleSystem {
				if data.DisableFunctions {
					disableFunctions = true
				}
				if !data.IncludeOriginalSystemPrompt {
					includeDefault = false
				}
			}
		case llm.RoleUser:
			if data.IsToolResult {
				break
			}
			resolved, err := userinput.Resolve(inv.ctx, node, inv.o.images)
			if err != nil {
				inv.log.Debug("history stops at %s: %v", node.ID, err)
				break walk
			}
			msg = resolved
		}

		msgs = append(msgs, *msg)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, disableFunctions, includeDefault
}

func (inv *invocation) buildRequest(target *canvas.Node, input *llm.Message) *llm.Request {
	past, disableFunctions, includeDefault := inv.collectAncestors(target)
	toolsOn := !disableFunctions && inv.o.toolsEnabled(inv.settings)

	messages := make([]llm.Message, 0, len(past)+4)
	if includeDefault {
		messages = append(messages, llm.SystemMessage(llm.DefaultSystemPrompt))
	}
	messages = append(messages, past...)
	messages = append(messages, *input)
	if toolsOn {
		messages = append(messages, llm.SystemMessage(llm.ToolsPrompt))
	}
	messages = append(messages, llm.CurrentTimeMessage(inv.o.now()))

	window := history.BuildWindowFromMessages(inv.o.tokenizer, messages, inv.settings.TokenBudget, history.Options{
		SkipOversizedUnits: inv.settings.SkipOversizedUnits,
	})
	inv.log.Debug("sending %d of %d messages (tools %v)", len(window), len(messages), toolsOn)

	req := &llm.Request{
		Model:       inv.settings.Model,
		Messages:    window,
		Temperature: inv.settings.Temperature,
		MaxTokens:   inv.settings.MaxOutputTokens,
	}
	if toolsOn {
		req.Tools = inv.o.registry.Definitions()
	}
	return req
}

func (inv *invocation) createCompletionNode(target *canvas.Node) error {
	store := inv.o.store
	msg := llm.AssistantMessage("")

	node, err := placement.AddNeighbour(store, target, consts.NodeGap, placement.NeighbourOptions{
		Reference: inv.opts.Reference,
		Offset:    inv.opts.Offset,
		EdgeColor: inv.opts.EdgeColor,
		Size:      canvas.Size{Width: consts.CompletionNodeWidth, Height: consts.MinNodeHeight},
		Data: canvas.NodeData{
			Role:     llm.RoleAssistant,
			MetaType: canvas.MetaAIEnabled,
			Message:  &msg,
		},
	})
	if err != nil {
		return err
	}

	inv.completionID = node.ID
	inv.registered = append(inv.registered, node.ID)
	inv.o.addActive(node.ID, inv.cancel)

	inv.color = consts.ColorYellow
	if err := store.SetNodeColor(node.ID, inv.color); err != nil {
		return err
	}
	if err := store.SetKeepLoaded(node.ID, true); err != nil {
		return err
	}

	inv.resize = newThrottle(consts.ResizeThrottle, func() { inv.fitHeight(inv.completionID) })
	inv.unrender = store.OnNodeRendered(func(id string) {
		if id == inv.completionID {
			inv.resize.Trigger()
		}
	})
	store.RequestSave()
	return nil
}

// fitHeight grows a node to fit its text.
func (inv *invocation) fitHeight(id string) {
	store := inv.o.store
	node, ok := store.Node(id)
	if !ok {
		return
	}
	wanted := canvas.EstimateHeight(node.Text, node.Width)
	if wanted > node.Height {
		if err := store.ResizeNode(id, canvas.Size{Width: node.Width, Height: wanted}); err != nil {
			inv.log.Warn("resize %s: %v", id, err)
		}
	}
	store.RequestRender()
}

// fail renders err on the completion node and ends the invocation.
func (inv *invocation) fail(err error) error {
	store := inv.o.store
	id := inv.completionID

	text := inv.text
	if node, ok := store.Node(id); ok {
		text = node.Text
	}
	if text != "" {
		text += "\n\n"
	}
	text += "> [!failure]\n>  " + err.Error()

	if setErr := store.SetNodeText(id, text); setErr != nil {
		inv.log.Warn("render failure on %s: %v", id, setErr)
	}
	if setErr := store.SetNodeData(id, func(d *canvas.NodeData) {
		msg := llm.AssistantMessage(text)
		d.Message = &msg
		d.FinishReason = llm.FinishStop
	}); setErr != nil {
		inv.log.Warn("store failure message on %s: %v", id, setErr)
	}
	if setErr := store.SetNodeColor(id, consts.ColorRed); setErr != nil {
		inv.log.Warn("color %s: %v", id, setErr)
	}
	if setErr := store.SetKeepLoaded(id, false); setErr != nil {
		inv.log.Warn("unpin %s: %v", id, setErr)
	}
	inv.finishReason = llm.FinishStop

	if inv.resize != nil {
		inv.resize.Flush()
	}
	inv.fitHeight(id)
	store.RequestSave()

	inv.transition(StateErrored, err)
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}
	return err
}
