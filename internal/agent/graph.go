package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgo/negotiator/internal/model"
)

// End is the pseudo-node that terminates a run
const End = "__end__"

// DefaultRecursionLimit bounds node executions per run
const DefaultRecursionLimit = 50

var (
	ErrRecursionLimit = errors.New("recursion limit reached")
	ErrUnknownNode    = errors.New("unknown node")
	ErrNoEntry        = errors.New("graph has no entry node")
	ErrNotInterrupted = errors.New("run is not waiting to be resumed")
)

// NodeFunc executes one workflow step, mutating the state in place
type NodeFunc func(ctx context.Context, s *model.AgentState) error

// Router picks the next node after a step
type Router func(s *model.AgentState) string

// Condition decides whether an interrupt applies to the current state
type Condition func(s *model.AgentState) bool

// Checkpointer persists and loads state snapshots
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
	Latest(ctx context.Context, threadID string) (*model.Checkpoint, error)
}

type conditional struct {
	router  Router
	targets []string
}

// Graph is a directed graph of workflow steps. Build it with AddNode,
// AddEdge and AddConditionalEdges, then Compile it into a Runner.
type Graph struct {
	nodes      map[string]NodeFunc
	order      []string
	edges      map[string]string
	routers    map[string]conditional
	interrupts map[string]Condition
	entry      string
	errs       []error
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]NodeFunc),
		edges:      make(map[string]string),
		routers:    make(map[string]conditional),
		interrupts: make(map[string]Condition),
	}
}

// AddNode registers a step
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", name))
	case g.nodes[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("node %q added twice", name))
	default:
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge makes to always follow from
func (g *Graph) AddEdge(from, to string) *Graph {
	if _, ok := g.routers[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has conditional edges", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges lets router choose the node after from. targets lists
// every node the router may return and is checked by Compile.
func (g *Graph) AddConditionalEdges(from string, router Router, targets ...string) *Graph {
	if _, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
		return g
	}
	g.routers[from] = conditional{router: router, targets: targets}
	return g
}

// SetEntry sets the first node of a run
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// InterruptBefore pauses a run before each named node
func (g *Graph) InterruptBefore(names ...string) *Graph {
	for _, n := range names {
		g.interrupts[n] = nil
	}
	return g
}

// InterruptIf pauses a run before name only when cond holds
func (g *Graph) InterruptIf(name string, cond Condition) *Graph {
	g.interrupts[name] = cond
	return g
}

func (g *Graph) hasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, ErrNoEntry)
	} else if !g.hasNode(g.entry) {
		errs = append(errs, fmt.Errorf("%w: entry %q", ErrUnknownNode, g.entry))
	}
	for from, to := range g.edges {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: edge from %q", ErrUnknownNode, from))
		}
		if to != End && !g.hasNode(to) {
			errs = append(errs, fmt.Errorf("%w: edge to %q", ErrUnknownNode, to))
		}
	}
	for from, c := range g.routers {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge from %q", ErrUnknownNode, from))
		}
		if c.router == nil {
			errs = append(errs, fmt.Errorf("node %q has a nil router", from))
		}
		for _, to := range c.targets {
			if to != End && !g.hasNode(to) {
				errs = append(errs, fmt.Errorf("%w: conditional target %q", ErrUnknownNode, to))
			}
		}
	}
	for _, name := range g.order {
		_, plain := g.edges[name]
		_, routed := g.routers[name]
		if !plain && !routed {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}
	for name := range g.interrupts {
		if !g.hasNode(name) {
			errs = append(errs, fmt.Errorf("%w: interrupt %q", ErrUnknownNode, name))
		}
	}
	return errors.Join(errs...)
}

func (g *Graph) next(from string, s *model.AgentState) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	to := g.routers[from].router(s)
	if to != End && !g.hasNode(to) {
		return "", fmt.Errorf("%w: %q returned by router of %q", ErrUnknownNode, to, from)
	}
	return to, nil
}

func (g *Graph) interrupted(name string, s *model.AgentState) bool {
	cond, ok := g.interrupts[name]
	if !ok {
		return false
	}
	return cond == nil || cond(s)
}

// Option configures a Runner
type Option func(*Runner)

// WithRecursionLimit bounds node executions per run
func WithRecursionLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.recursionLimit = n
		}
	}
}

// WithClock overrides the checkpoint timestamp source
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes a compiled graph, checkpointing after every step
type Runner struct {
	graph          *Graph
	checkpointer   Checkpointer
	recursionLimit int
	now            func() time.Time
}

// Compile validates the graph and binds it to a checkpointer
func (g *Graph) Compile(cp Checkpointer, opts ...Option) (*Runner, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		graph:          g,
		checkpointer:   cp,
		recursionLimit: DefaultRecursionLimit,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run starts a new run from the entry node. The returned state is valid even
// when an error is returned; it reflects the last step reached.
func (r *Runner) Run(ctx context.Context, s *model.AgentState) (*model.AgentState, error) {
	if s.ThreadID == "" {
		s.ThreadID = uuid.New().String()
	}
	s.Status = model.StatusRunning
	return r.execute(ctx, s, r.graph.entry, false)
}

// Resume continues a run paused at an interrupt. update is applied to the
// restored state before the paused node executes.
func (r *Runner) Resume(ctx context.Context, threadID string, update func(s *model.AgentState) error) (*model.AgentState, error) {
	cp, err := r.checkpointer.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	s := cp.State
	if s == nil || s.Status != model.StatusAwaitingApproval || s.NextStep == "" {
		return s, ErrNotInterrupted
	}
	if update != nil {
		if err := update(s); err != nil {
			return s, err
		}
	}
	s.Status = model.StatusRunning
	return r.execute(ctx, s, s.NextStep, true)
}

func (r *Runner) execute(ctx context.Context, s *model.AgentState, node string, resuming bool) (*model.AgentState, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s, r.fail(ctx, s, err)
		}

		if !resuming && r.graph.interrupted(node, s) {
			s.Status = model.StatusAwaitingApproval
			s.NextStep = node
			return s, r.save(ctx, s)
		}
		resuming = false

		if s.Steps >= r.recursionLimit {
			return s, r.fail(ctx, s, fmt.Errorf("%w (%d steps)", ErrRecursionLimit, r.recursionLimit))
		}
		s.Steps++
		s.CurrentStep = node

		if err := r.graph.nodes[node](ctx, s); err != nil {
			return s, r.fail(ctx, s, fmt.Errorf("%s: %w", node, err))
		}

		next, err := r.graph.next(node, s)
		if err != nil {
			return s, r.fail(ctx, s, err)
		}
		s.NextStep = next
		if next == End {
			s.NextStep = ""
			s.Status = model.StatusCompleted
		}
		if err := r.save(ctx, s); err != nil {
			return s, err
		}
		if next == End {
			return s, nil
		}
		node = next
	}
}

// fail records err on the state and persists it. The save uses a context
// that survives cancellation of ctx.
func (r *Runner) fail(ctx context.Context, s *model.AgentState, err error) error {
	s.Status = model.StatusFailed
	s.Error = err.Error()
	s.NextStep = ""
	if saveErr := r.save(context.WithoutCancel(ctx), s); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return err
}

func (r *Runner) save(ctx context.Context, s *model.AgentState) error {
	s.Version++
	snapshot, err := s.Clone()
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}
	cp := &model.Checkpoint{
		ID:        uuid.New().String(),
		ThreadID:  s.ThreadID,
		Step:      s.CurrentStep,
		NextStep:  s.NextStep,
		Seq:       s.Version,
		State:     snapshot,
		CreatedOn: r.now(),
	}
	if err := r.checkpointer.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
