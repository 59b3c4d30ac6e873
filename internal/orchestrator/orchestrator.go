// Package orchestrator turns a canvas node into a streamed completion: it
// collects the conversation along the node's ancestors, streams the reply
// into a new node, materializes artifacts, runs requested tools and
// follows up on their results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/canvaschat/internal/canvas"
	"github.com/codefionn/canvaschat/internal/config"
	"github.com/codefionn/canvaschat/internal/consts"
	"github.com/codefionn/canvaschat/internal/llm"
	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/codefionn/canvaschat/internal/tools"
	"github.com/codefionn/canvaschat/internal/userinput"
)

// DefaultMaxToolRounds bounds the tool follow-up chain of one invocation.
const DefaultMaxToolRounds = 25

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store  canvas.GraphStore
	Source llm.CompletionSource
	// Tools may be nil, which disables function calling.
	Tools *tools.Registry
	// Tokenizer defaults to a tiktoken counter for the configured model.
	Tokenizer llm.Tokenizer
	// Images resolves ![[...]] references in user nodes. May be nil.
	Images userinput.ImageResolver
	Logger *logger.Logger
}

// Settings are the tunables read from the configuration.
type Settings struct {
	Model              string
	Temperature        float64
	MaxOutputTokens    int
	TokenBudget        int
	ToolResultBudget   int
	DisableFunctions   bool
	SkipOversizedUnits bool
	ToolTimeout        time.Duration
	MaxToolRounds      int
}

// SettingsFromConfig extracts orchestrator settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Model:              cfg.Model,
		Temperature:        cfg.Temperature,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		TokenBudget:        cfg.TokenBudget,
		ToolResultBudget:   cfg.ToolResultBudget,
		DisableFunctions:   cfg.DisableFunctions,
		SkipOversizedUnits: cfg.History.SkipOversizedUnits,
		ToolTimeout:        cfg.ToolTimeout(),
		MaxToolRounds:      cfg.Tools.MaxRounds,
	}
}

func (s Settings) withDefaults() Settings {
	if s.TokenBudget <= 0 {
		s.TokenBudget = consts.DefaultTokenBudget
	}
	if s.ToolResultBudget <= 0 {
		s.ToolResultBudget = consts.ToolResultTokenBudget
	}
	if s.MaxToolRounds <= 0 {
		s.MaxToolRounds = DefaultMaxToolRounds
	}
	return s
}

// Options tune where the nodes of one invocation are placed.
type Options struct {
	// Reference is measured from instead of the target node.
	Reference *canvas.Node
	// Offset positions the new node relative to the reference.
	Offset    *canvas.Point
	EdgeColor string
}

// Outcome describes what an invocation produced.
type Outcome struct {
	// InputNodeID is set when the target was not an input and a fresh
	// input node was created instead of completing.
	InputNodeID string
	// CompletionID is the last completion node streamed into.
	CompletionID string
	// LastNodeID is the last node produced, the tail of the chain.
	LastNodeID   string
	Text         string
	FinishReason string
	ToolRounds   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateObserver registers fn for state transitions.
func WithStateObserver(fn StateObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithClock replaces time.Now for the wall-clock message.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs completion invocations against a GraphStore.
type Orchestrator struct {
	store     canvas.GraphStore
	source    llm.CompletionSource
	registry  *tools.Registry
	tokenizer llm.Tokenizer
	images    userinput.ImageResolver
	log       *logger.Logger
	observer  StateObserver
	now       func() time.Time

	mu       sync.Mutex
	settings Settings
	active   map[string]context.CancelFunc
}

// New creates an Orchestrator.
func New(deps Deps, settings Settings, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a graph store")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("orchestrator requires a completion source")
	}

	o := &Orchestrator{
		store:     deps.Store,
		source:    deps.Source,
		registry:  deps.Tools,
		tokenizer: deps.Tokenizer,
		images:    deps.Images,
		log:       deps.Logger,
		now:       time.Now,
		settings:  settings.withDefaults(),
		active:    make(map[string]context.CancelFunc),
	}
	if o.log == nil {
		o.log = logger.Global()
	}
	if o.tokenizer == nil {
		o.tokenizer = llm.NewTokenCounter(o.settings.Model)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// UpdateSettings swaps the settings used by invocations started later.
func (o *Orchestrator) UpdateSettings(s Settings) {
	o.mu.Lock()
	o.settings = s.withDefaults()
	o.mu.Unlock()
}

// Settings returns the current settings.
func (o *Orchestrator) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// Complete runs an invocation on nodeID, including every tool follow-up.
// Streaming failures are rendered on the completion node and returned as
// a *StreamError together with the partial Outcome.
func (o *Orchestrator) Complete(ctx context.Context, nodeID string, mode Mode, opts Options) (*Outcome, error) {
	settings := o.Settings()
	outcome := &Outcome{}

	target := nodeID
	for round := 0; ; round++ {
		if round > settings.MaxToolRounds {
			o.log.Warn("stopping tool follow-ups of %s after %d rounds", nodeID, settings.MaxToolRounds)
			return outcome, ErrToolRoundsExceeded
		}

		inv, err := o.newInvocation(ctx, target, mode, opts, settings)
		if err != nil {
			return outcome, err
		}
		next, err := inv.run()
		inv.release()

		outcome.ToolRounds = round
		if inv.inputNodeID != "" {
			outcome.InputNodeID = inv.inputNodeID
			outcome.LastNodeID = inv.inputNodeID
		}
		if inv.completionID != "" {
			outcome.CompletionID = inv.completionID
			outcome.LastNodeID = inv.completionID
			outcome.Text = inv.text
			outcome.FinishReason = inv.finishReason
		}
		if next != nil {
			outcome.LastNodeID = next.target
		}
		if err != nil || next == nil {
			return outcome, err
		}

		target, mode, opts = next.target, ModeTool, next.opts
	}
}

// Cancel aborts the running invocation started on, or streaming into,
// nodeID. Dispatched tools are not interrupted.
func (o *Orchestrator) Cancel(nodeID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[nodeID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether an invocation is active on nodeID.
func (o *Orchestrator) Running(nodeID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[nodeID]
	return ok
}

// Attach starts a user completion whenever the host requests the node
// menu. The returned function detaches.
func (o *Orchestrator) Attach(ctx context.Context) func() {
	return o.store.OnMenuRequested(func(nodeID string) {
		go func() {
			if _, err := o.Complete(ctx, nodeID, ModeUser, Options{}); err != nil && !errors.Is(err, ErrCancelled) {
				o.log.Warn("completion for %s failed: %v", nodeID, err)
			}
		}()
	})
}

func (o *Orchestrator) register(ids []string, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		if _, busy := o.active[id]; busy {
			return fmt.Errorf("%w: %s", ErrBusy, id)
		}
	}
	for _, id := range ids {
		o.active[id] = cancel
	}
	return nil
}

func (o *Orchestrator) addActive(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.active[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(ids []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		delete(o.active, id)
	}
}

func (o *Orchestrator) toolsEnabled(settings Settings) bool {
	return !settings.DisableFunctions && o.registry != nil && o.registry.Len() > 0
}

// Window builds the request a user completion on nodeID would send,
// without creating any node or contacting the source.
func (o *Orchestrator) Window(ctx context.Context, nodeID string) (*llm.Request, error) {
	inv, err := o.newInvocation(ctx, nodeID, ModeUser, Options{}, o.Settings())
	if err != nil {
		return nil, err
	}
	defer inv.release()

	target, ok := o.store.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", canvas.ErrNodeNotFound, nodeID)
	}
	if needsInputNode(target, ModeUser) {
		return nil, fmt.Errorf("node %s is not a user input", nodeID)
	}
	input, err := inv.collectInput(target)
	if err != nil {
		return nil, err
	}
	return inv.buildRequest(target, input), nil
}

// CountTokens counts messages with the orchestrator's tokenizer.
func (o *Orchestrator) CountTokens(messages []llm.Message) int {
	return o.tokenizer.CountTokens(messages)
}
