package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mofa-run/mofa/messaging"
)

var tracer = otel.Tracer("mofa/messaging/graph")

// Header keys stamped on an envelope escalated to the dead-letter node.
const (
	HeaderDeadLetterReason = "x-mofa-dead-letter-reason"
	HeaderDeadLetterFrom   = "x-mofa-dead-letter-from"
)

// DeadLetterReasonKind classifies why an envelope was dead-lettered.
type DeadLetterReasonKind int

const (
	ReasonNoRouteMatch DeadLetterReasonKind = iota
	ReasonMaxHopsExceeded
	ReasonBackpressure
	ReasonDispatchFailed
)

// DeadLetterReason carries the stable reason tag required by spec §7/§8.
type DeadLetterReason struct {
	Kind            DeadLetterReasonKind
	MaxHops         uint16
	AttemptedHops   uint16
	DispatchErrMsg  string
}

// Tag renders the reason as the exact stable string the spec requires in
// dead-letter headers and error messages.
func (r DeadLetterReason) Tag() string {
	switch r.Kind {
	case ReasonNoRouteMatch:
		return "no_route_match"
	case ReasonMaxHopsExceeded:
		return fmt.Sprintf("max_hops_exceeded:%d>%d", r.AttemptedHops, r.MaxHops)
	case ReasonBackpressure:
		return "node_backpressure"
	case ReasonDispatchFailed:
		return fmt.Sprintf("dispatch_failed:%s", r.DispatchErrMsg)
	default:
		return "unknown"
	}
}

// DispatchRecord is one successful edge traversal.
type DispatchRecord struct {
	From           string
	To             string
	HopCount       uint16
	DeliveryMode   DeliveryMode
	DeliveredToBus bool
}

// DeadLetterRecord is one envelope routed to the dead-letter node.
type DeadLetterRecord struct {
	From           string
	DeadLetterNode string
	Reason         DeadLetterReason
	Envelope       *messaging.Envelope
	Delivered      bool
	DeliveryError  string
}

// ExecutionReport aggregates every dispatch and dead-letter record produced
// by a single Execute call.
type ExecutionReport struct {
	GraphID     string
	Dispatches  []DispatchRecord
	DeadLetters []DeadLetterRecord
}

func (r *ExecutionReport) TotalDispatched() int  { return len(r.Dispatches) }
func (r *ExecutionReport) TotalDeadLetters() int { return len(r.DeadLetters) }

// Errors returned by Executor operations.
var (
	ErrNodeBackpressured       = errors.New("graph: node is backpressured")
	ErrRouterCapacityUnsupported = errors.New("graph: router nodes have no configurable capacity")
	ErrCapacityUpdateInUse     = errors.New("graph: cannot update node capacity while permits are outstanding")
)

// Config configures an Executor.
type Config struct {
	// SenderID is stamped on outbound bus sends.
	SenderID string
	// DefaultNodeCapacity is the initial per-node semaphore capacity.
	DefaultNodeCapacity int64
}

// DefaultConfig returns the executor defaults named in spec §6.3.
func DefaultConfig() Config {
	return Config{SenderID: "message_graph_executor", DefaultNodeCapacity: 64}
}

type nodeLimit struct {
	sem      *semaphore.Weighted
	capacity int64
}

// Executor routes envelopes through a CompiledGraph, dispatching to a
// messaging.Bus at each non-router node.
type Executor struct {
	graph  *CompiledGraph
	bus    *messaging.Bus
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	limit map[string]*nodeLimit
}

// New builds an Executor over graph/bus with default config. Returns an
// error if the graph has no entry points or no dead-letter node declared
// (compile already enforces these, but a zero-value CompiledGraph is
// rejected defensively here too).
func New(g *CompiledGraph, bus *messaging.Bus, logger *zap.Logger) (*Executor, error) {
	return WithConfig(g, bus, DefaultConfig(), logger)
}

// WithConfig builds an Executor with an explicit Config.
func WithConfig(g *CompiledGraph, bus *messaging.Bus, cfg Config, logger *zap.Logger) (*Executor, error) {
	if len(g.EntryPoints()) == 0 {
		return nil, fmt.Errorf("%w: graph %q", ErrNoEntryPoints, g.ID())
	}
	if g.DeadLetterNode() == "" {
		return nil, fmt.Errorf("%w: graph %q", ErrMissingDeadLetter, g.ID())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limits := make(map[string]*nodeLimit)
	for id, n := range g.nodes {
		if n.Kind == NodeRouter {
			continue
		}
		limits[id] = &nodeLimit{sem: semaphore.NewWeighted(cfg.DefaultNodeCapacity), capacity: cfg.DefaultNodeCapacity}
	}

	return &Executor{
		graph:  g,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "graph_executor"), zap.String("graph_id", g.ID())),
		limit:  limits,
	}, nil
}

// SetNodeCapacity reconfigures node's semaphore, failing if any permit is
// currently outstanding (capacity mismatch with available permits).
func (ex *Executor) SetNodeCapacity(nodeID string, capacity int64) error {
	n, ok := ex.graph.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingNode, nodeID)
	}
	if n.Kind == NodeRouter {
		return fmt.Errorf("%w: %q", ErrRouterCapacityUnsupported, nodeID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	current, ok := ex.limit[nodeID]
	if ok && !current.sem.TryAcquire(current.capacity) {
		return fmt.Errorf("%w: %q", ErrCapacityUpdateInUse, nodeID)
	}
	if ok {
		current.sem.Release(current.capacity)
	}
	ex.limit[nodeID] = &nodeLimit{sem: semaphore.NewWeighted(capacity), capacity: capacity}
	return nil
}

type pendingRoute struct {
	nodeID string
	env    *messaging.Envelope
}

type routeOutcome struct {
	nextRoutes  []pendingRoute
	dispatches  []DispatchRecord
	deadLetters []DeadLetterRecord
}

type edgeOutcome struct {
	nextRoute  *pendingRoute
	dispatch   *DispatchRecord
	deadLetter *DeadLetterRecord
}

// Execute runs the BFS traversal described in spec §4.2 over env, seeding
// the frontier with one clone per entry point.
func (ex *Executor) Execute(ctx context.Context, env *messaging.Envelope) (*ExecutionReport, error) {
	ctx, span := tracer.Start(ctx, "graph.Execute", trace.WithAttributes(attribute.String("graph_id", ex.graph.ID())))
	defer span.End()

	report := &ExecutionReport{GraphID: ex.graph.ID()}

	var frontier []pendingRoute
	for _, ep := range ex.graph.EntryPoints() {
		frontier = append(frontier, pendingRoute{nodeID: ep, env: env.Clone()})
	}

	for len(frontier) > 0 {
		level := frontier
		frontier = nil

		outcomes := make([]routeOutcome, len(level))
		g, gctx := errgroup.WithContext(ctx)
		for i, pending := range level {
			i, pending := i, pending
			g.Go(func() error {
				out, err := ex.routeFromNode(gctx, pending)
				if err != nil {
					return err
				}
				outcomes[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, out := range outcomes {
			report.Dispatches = append(report.Dispatches, out.dispatches...)
			report.DeadLetters = append(report.DeadLetters, out.deadLetters...)
			frontier = append(frontier, out.nextRoutes...)
		}
	}

	return report, nil
}

func (ex *Executor) routeFromNode(ctx context.Context, pending pendingRoute) (routeOutcome, error) {
	var outcome routeOutcome
	matched := ex.graph.NextEdges(pending.nodeID, pending.env)

	if len(matched) == 0 {
		if !ex.graph.HasOutgoingEdges(pending.nodeID) {
			return outcome, nil
		}
		dl, err := ex.routeToDeadLetter(ctx, pending.nodeID, pending.env, DeadLetterReason{Kind: ReasonNoRouteMatch})
		if err != nil {
			return outcome, err
		}
		outcome.deadLetters = append(outcome.deadLetters, dl)
		return outcome, nil
	}

	outcomes := make([]edgeOutcome, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	for i, edge := range matched {
		i, edge := i, edge
		g.Go(func() error {
			out, err := ex.processEdge(gctx, edge, pending.env)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcome, err
	}

	for _, eo := range outcomes {
		if eo.nextRoute != nil {
			outcome.nextRoutes = append(outcome.nextRoutes, *eo.nextRoute)
		}
		if eo.dispatch != nil {
			outcome.dispatches = append(outcome.dispatches, *eo.dispatch)
		}
		if eo.deadLetter != nil {
			outcome.deadLetters = append(outcome.deadLetters, *eo.deadLetter)
		}
	}
	return outcome, nil
}

func (ex *Executor) processEdge(ctx context.Context, edge Edge, env *messaging.Envelope) (edgeOutcome, error) {
	next := env.Clone()
	next.IncrementHop()

	if next.HopCount() > ex.graph.MaxHops() {
		dl, err := ex.routeToDeadLetter(ctx, edge.From, next, DeadLetterReason{
			Kind:          ReasonMaxHopsExceeded,
			MaxHops:       ex.graph.MaxHops(),
			AttemptedHops: next.HopCount(),
		})
		if err != nil {
			return edgeOutcome{}, err
		}
		return edgeOutcome{deadLetter: &dl}, nil
	}

	delivered, err := ex.dispatchToNode(ctx, edge.To, edge.Delivery.Mode, next)
	switch {
	case err == nil:
		return edgeOutcome{
			nextRoute: &pendingRoute{nodeID: edge.To, env: next},
			dispatch: &DispatchRecord{
				From: edge.From, To: edge.To, HopCount: next.HopCount(),
				DeliveryMode: edge.Delivery.Mode, DeliveredToBus: delivered,
			},
		}, nil
	case errors.Is(err, ErrNodeBackpressured):
		dl, dlErr := ex.routeToDeadLetter(ctx, edge.From, next, DeadLetterReason{Kind: ReasonBackpressure})
		if dlErr != nil {
			return edgeOutcome{}, dlErr
		}
		return edgeOutcome{deadLetter: &dl}, nil
	default:
		dl, dlErr := ex.routeToDeadLetter(ctx, edge.From, next, DeadLetterReason{
			Kind: ReasonDispatchFailed, DispatchErrMsg: err.Error(),
		})
		if dlErr != nil {
			return edgeOutcome{}, dlErr
		}
		return edgeOutcome{deadLetter: &dl}, nil
	}
}

func (ex *Executor) routeToDeadLetter(ctx context.Context, from string, env *messaging.Envelope, reason DeadLetterReason) (DeadLetterRecord, error) {
	dlNode := ex.graph.DeadLetterNode()

	env.SetHeader(HeaderDeadLetterReason, reason.Tag())
	env.SetHeader(HeaderDeadLetterFrom, from)

	if dlNode == from {
		return DeadLetterRecord{
			From: from, DeadLetterNode: dlNode, Reason: reason, Envelope: env,
			Delivered: false, DeliveryError: "dead-letter source is dead-letter node",
		}, nil
	}

	delivered, deliveryErr := true, ""
	if _, err := ex.dispatchToNode(ctx, dlNode, Direct, env); err != nil {
		delivered, deliveryErr = false, err.Error()
	}

	return DeadLetterRecord{
		From: from, DeadLetterNode: dlNode, Reason: reason, Envelope: env,
		Delivered: delivered, DeliveryError: deliveryErr,
	}, nil
}

func (ex *Executor) dispatchToNode(ctx context.Context, nodeID string, mode DeliveryMode, env *messaging.Envelope) (bool, error) {
	node, ok := ex.graph.Node(nodeID)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrMissingNode, nodeID)
	}
	if node.Kind == NodeRouter {
		return false, nil
	}

	release, err := ex.acquireNodePermit(nodeID)
	if err != nil {
		return false, err
	}
	defer release()

	out := ex.buildBusDispatch(node, mode, env)
	if err := ex.sendToBus(ctx, node, mode, out); err != nil {
		return false, err
	}
	return true, nil
}

// buildBusDispatch selects the target channel for the dispatch, matching
// spec §4.2's delivery-mode-to-bus-call table. Stream nodes carry a
// monotonically increasing sequence equal to hop_count.
func (ex *Executor) buildBusDispatch(node Node, mode DeliveryMode, env *messaging.Envelope) *messaging.Envelope {
	if node.Kind == NodeStream {
		env.SetHeader("x-mofa-stream-sequence", fmt.Sprintf("%d", env.HopCount()))
	}
	return env
}

func (ex *Executor) sendToBus(ctx context.Context, node Node, mode DeliveryMode, env *messaging.Envelope) error {
	switch node.Kind {
	case NodeAgent:
		if mode == Direct {
			return ex.bus.Send(ctx, node.AgentID, env)
		}
		return ex.bus.Publish(ctx, node.AgentID, env)
	case NodeTopic:
		return ex.bus.Publish(ctx, node.Topic, env)
	case NodeStream:
		return ex.bus.Publish(ctx, node.StreamID, env)
	default:
		return fmt.Errorf("graph: node %q has no dispatchable kind", node.ID)
	}
}

func (ex *Executor) acquireNodePermit(nodeID string) (release func(), err error) {
	ex.mu.RLock()
	nl, ok := ex.limit[nodeID]
	ex.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingNode, nodeID)
	}
	if !nl.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %q", ErrNodeBackpressured, nodeID)
	}
	return func() { nl.sem.Release(1) }, nil
}
