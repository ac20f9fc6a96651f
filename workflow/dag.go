package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// NodeType identifies the role a node plays in a workflow graph. This is the
// closed set the executor understands: sequential-with-branching control
// flow (Start/Task/Condition/End), fan-out/fan-in (Parallel/Join), nested
// workflows (SubWorkflow), and human-in-the-loop pausing (Wait).
type NodeType string

const (
	// NodeTypeStart marks the single entry node of a graph.
	NodeTypeStart NodeType = "start"
	// NodeTypeTask executes a Step against the current input.
	NodeTypeTask NodeType = "task"
	// NodeTypeCondition evaluates a ConditionFunc and routes on its boolean
	// result.
	NodeTypeCondition NodeType = "condition"
	// NodeTypeParallel fans out to Branches (or, if unset, every outgoing
	// edge) and merges their outputs into a map.
	NodeTypeParallel NodeType = "parallel"
	// NodeTypeJoin blocks until every node named in WaitFor reaches a
	// terminal status.
	NodeTypeJoin NodeType = "join"
	// NodeTypeSubWorkflow runs SubGraph to completion via the layered
	// executor and surfaces its End-node output.
	NodeTypeSubWorkflow NodeType = "sub_workflow"
	// NodeTypeWait pauses execution until resumed with human input.
	NodeTypeWait NodeType = "wait"
	// NodeTypeEnd is a terminal node; no outgoing edge is followed from it.
	NodeTypeEnd NodeType = "end"
)

// NodeStatus is the lifecycle state of a node within one execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusWaiting   NodeStatus = "waiting"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// ErrorStrategy defines how errors should be handled
type ErrorStrategy string

const (
	// ErrorStrategyFailFast stops execution immediately on error
	ErrorStrategyFailFast ErrorStrategy = "fail_fast"
	// ErrorStrategySkip skips the failed node and continues
	ErrorStrategySkip ErrorStrategy = "skip"
	// ErrorStrategyRetry retries the failed node
	ErrorStrategyRetry ErrorStrategy = "retry"
)

// ErrorConfig defines error handling behavior for a node
type ErrorConfig struct {
	// Strategy specifies how to handle errors
	Strategy ErrorStrategy
	// MaxRetries is the maximum number of retry attempts (for retry strategy)
	MaxRetries int
	// RetryDelayMs is the delay between retries in milliseconds
	RetryDelayMs int
	// FallbackValue is the value to use when skipping a failed node
	FallbackValue any
}

// ConditionFunc evaluates a condition and returns true or false
type ConditionFunc func(ctx context.Context, input any) (bool, error)

// DAGNode represents a single node in the workflow graph
type DAGNode struct {
	// ID is the unique identifier for this node
	ID string
	// Type specifies the node kind
	Type NodeType
	// Step is the step to execute (Task nodes)
	Step Step
	// Condition evaluates branching logic (Condition nodes)
	Condition ConditionFunc
	// Branches lists explicit branch node ids (Parallel nodes); if empty,
	// every outgoing edge of the node is treated as a branch.
	Branches []string
	// WaitFor lists the predecessor node ids a Join node blocks on.
	WaitFor []string
	// SubGraph is the nested workflow a SubWorkflow node runs.
	SubGraph *DAGGraph
	// WaitEventType is the external event name a Wait node pauses for.
	WaitEventType string
	// WaitTimeout bounds how long a Wait node may stay paused; zero means
	// no timeout.
	WaitTimeout time.Duration
	// ErrorConfig defines error handling behavior
	ErrorConfig *ErrorConfig
	// Metadata stores additional node information
	Metadata map[string]any
}

// Edge connects two nodes. Condition is non-nil only on edges leaving a
// Condition node; its value is matched against the condition's boolean
// output, formatted as "true"/"false". An edge with a nil Condition is the
// default/unlabeled edge taken when no labeled edge matches.
type Edge struct {
	To        string
	Condition *string
}

// DAGGraph represents the workflow structure as a directed graph over the
// closed NodeType set.
type DAGGraph struct {
	// nodes maps node IDs to node instances
	nodes map[string]*DAGNode
	// edges maps node IDs to their outgoing edges
	edges map[string][]Edge
	// entry is the ID of the entry (Start) node
	entry string
	// errorHandlers maps a node ID to the node it routes to on failure
	errorHandlers map[string]string
}

// NewDAGGraph creates a new empty DAG graph
func NewDAGGraph() *DAGGraph {
	return &DAGGraph{
		nodes:         make(map[string]*DAGNode),
		edges:         make(map[string][]Edge),
		errorHandlers: make(map[string]string),
	}
}

// AddNode adds a node to the graph
func (g *DAGGraph) AddNode(node *DAGNode) {
	g.nodes[node.ID] = node
}

// AddEdge adds an unlabeled directed edge from one node to another
func (g *DAGGraph) AddEdge(fromID, toID string) {
	g.edges[fromID] = append(g.edges[fromID], Edge{To: toID})
}

// AddConditionalEdge adds an edge leaving a Condition node, taken only when
// the condition's boolean output formats to label ("true" or "false").
func (g *DAGGraph) AddConditionalEdge(fromID, toID, label string) {
	g.edges[fromID] = append(g.edges[fromID], Edge{To: toID, Condition: &label})
}

// SetEntry sets the entry node for the graph
func (g *DAGGraph) SetEntry(nodeID string) {
	g.entry = nodeID
}

// SetErrorHandler routes failures of nodeID to handlerID (spec §4.3.1 step 5).
func (g *DAGGraph) SetErrorHandler(nodeID, handlerID string) {
	g.errorHandlers[nodeID] = handlerID
}

// ErrorHandler returns the node nodeID's failures route to, if any.
func (g *DAGGraph) ErrorHandler(nodeID string) (string, bool) {
	h, ok := g.errorHandlers[nodeID]
	return h, ok
}

// GetNode retrieves a node by ID
func (g *DAGGraph) GetNode(nodeID string) (*DAGNode, bool) {
	node, exists := g.nodes[nodeID]
	return node, exists
}

// GetEdges retrieves the outgoing edge targets for a node, labeled and
// unlabeled alike, in declaration order.
func (g *DAGGraph) GetEdges(nodeID string) []string {
	edges := g.edges[nodeID]
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.To
	}
	return out
}

// OutgoingEdges retrieves the full Edge set (with labels) for a node.
func (g *DAGGraph) OutgoingEdges(nodeID string) []Edge {
	return g.edges[nodeID]
}

// GetEntry returns the entry node ID
func (g *DAGGraph) GetEntry() string {
	return g.entry
}

// Nodes returns all nodes in the graph
func (g *DAGGraph) Nodes() map[string]*DAGNode {
	return g.nodes
}

// Edges returns the full edge map, labeled and unlabeled.
func (g *DAGGraph) Edges() map[string][]Edge {
	return g.edges
}

// EdgeTargetMap flattens Edges into a plain adjacency list, discarding
// condition labels; used where a label-blind view is sufficient.
func (g *DAGGraph) EdgeTargetMap() map[string][]string {
	out := make(map[string][]string, len(g.edges))
	for from := range g.edges {
		out[from] = g.GetEdges(from)
	}
	return out
}

// Predecessors returns the node ids with an edge into nodeID, sorted.
func (g *DAGGraph) Predecessors(nodeID string) []string {
	var preds []string
	for from, edges := range g.edges {
		for _, e := range edges {
			if e.To == nodeID {
				preds = append(preds, from)
				break
			}
		}
	}
	sort.Strings(preds)
	return preds
}

// Validate checks the closed-set invariants from spec §3.5: exactly one
// Start node, entry set and pointing at it, every edge endpoint declared.
func (g *DAGGraph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if g.entry == "" {
		return fmt.Errorf("entry node not set")
	}
	entryNode, ok := g.nodes[g.entry]
	if !ok {
		return fmt.Errorf("entry node does not exist: %s", g.entry)
	}
	if entryNode.Type != NodeTypeStart {
		return fmt.Errorf("entry node %s must be of type start, got %s", g.entry, entryNode.Type)
	}

	starts := 0
	for id, n := range g.nodes {
		if n.Type == NodeTypeStart {
			starts++
		}
		if n.ID != id {
			return fmt.Errorf("node stored under key %s has ID %s", id, n.ID)
		}
	}
	if starts != 1 {
		return fmt.Errorf("graph must have exactly one start node, found %d", starts)
	}

	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge references non-existent source node: %s", from)
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				return fmt.Errorf("edge references non-existent target node: %s", e.To)
			}
		}
	}
	for nodeID, handler := range g.errorHandlers {
		if _, ok := g.nodes[nodeID]; !ok {
			return fmt.Errorf("error handler registered for non-existent node: %s", nodeID)
		}
		if _, ok := g.nodes[handler]; !ok {
			return fmt.Errorf("error handler node does not exist: %s", handler)
		}
	}
	return nil
}

// topologicalLayers groups nodes into Kahn layers over the plain (label-
// blind) edge set, for the layered-parallel executor (spec §4.3.4).
func (g *DAGGraph) topologicalLayers() ([][]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, edges := range g.edges {
		for _, e := range edges {
			indegree[e.To]++
		}
	}

	var layers [][]string
	remaining := len(g.nodes)
	for remaining > 0 {
		var layer []string
		for id, deg := range indegree {
			if deg == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("graph has a cycle; cannot compute topological layers")
		}
		sort.Strings(layer)
		for _, id := range layer {
			delete(indegree, id)
			remaining--
		}
		for _, id := range layer {
			for _, e := range g.edges[id] {
				if _, ok := indegree[e.To]; ok {
					indegree[e.To]--
				}
			}
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// DAGDefinition represents a serializable workflow definition
type DAGDefinition struct {
	// Name is the workflow name
	Name string `json:"name" yaml:"name"`
	// Description describes the workflow
	Description string `json:"description" yaml:"description"`
	// Entry is the ID of the entry node
	Entry string `json:"entry" yaml:"entry"`
	// Nodes contains all node definitions
	Nodes []NodeDefinition `json:"nodes" yaml:"nodes"`
	// Metadata stores additional workflow information
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EdgeDefinition is the serializable form of Edge.
type EdgeDefinition struct {
	To        string  `json:"to" yaml:"to"`
	Condition *string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// NodeDefinition represents a serializable node definition
type NodeDefinition struct {
	// ID is the unique node identifier
	ID string `json:"id" yaml:"id"`
	// Type is the node type
	Type string `json:"type" yaml:"type"`
	// Step is the step name (Task nodes)
	Step string `json:"step,omitempty" yaml:"step,omitempty"`
	// Condition is the condition name (Condition nodes)
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// Next lists outgoing edges, labeled and unlabeled
	Next []EdgeDefinition `json:"next,omitempty" yaml:"next,omitempty"`
	// Branches lists explicit branch node ids (Parallel nodes)
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`
	// WaitFor lists predecessor ids a Join node blocks on
	WaitFor []string `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	// SubGraph defines a nested workflow (SubWorkflow nodes)
	SubGraph *DAGDefinition `json:"subgraph,omitempty" yaml:"subgraph,omitempty"`
	// WaitEventType is the external event name a Wait node pauses for
	WaitEventType string `json:"wait_event_type,omitempty" yaml:"wait_event_type,omitempty"`
	// WaitTimeoutMs bounds a Wait node's pause
	WaitTimeoutMs int64 `json:"wait_timeout_ms,omitempty" yaml:"wait_timeout_ms,omitempty"`
	// ErrorHandler is the node to route to on failure
	ErrorHandler string `json:"error_handler,omitempty" yaml:"error_handler,omitempty"`
	// Metadata stores additional node information
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DAGWorkflow represents a DAG-based workflow
type DAGWorkflow struct {
	name        string
	description string
	graph       *DAGGraph
	metadata    map[string]any
	executor    *DAGExecutor // Optional custom executor
}

// NewDAGWorkflow creates a new DAG workflow
func NewDAGWorkflow(name, description string, graph *DAGGraph) *DAGWorkflow {
	return &DAGWorkflow{
		name:        name,
		description: description,
		graph:       graph,
		metadata:    make(map[string]any),
	}
}

// Name returns the workflow name
func (w *DAGWorkflow) Name() string {
	return w.name
}

// Description returns the workflow description
func (w *DAGWorkflow) Description() string {
	return w.description
}

// Graph returns the underlying DAG graph
func (w *DAGWorkflow) Graph() *DAGGraph {
	return w.graph
}

// SetMetadata sets a metadata value
func (w *DAGWorkflow) SetMetadata(key string, value any) {
	w.metadata[key] = value
}

// GetMetadata retrieves a metadata value
func (w *DAGWorkflow) GetMetadata(key string) (any, bool) {
	value, exists := w.metadata[key]
	return value, exists
}

// Execute runs the workflow with DAGExecutor's sequential-with-branching
// strategy and returns the resulting ExecutionRecord.
func (w *DAGWorkflow) Execute(ctx context.Context, input any) (*ExecutionRecord, error) {
	executor := w.executor
	if executor == nil {
		executor = NewDAGExecutor(nil, nil)
	}
	return executor.Execute(ctx, w.graph, input)
}

// SetExecutor sets a custom executor for the workflow
func (w *DAGWorkflow) SetExecutor(executor *DAGExecutor) {
	w.executor = executor
}

// ExecutionContext is the concurrent map spec §3.5 calls WorkflowContext:
// per-node status, per-node output, named variables, the run's input, and
// the accumulated HITL wait time.
type ExecutionContext struct {
	ExecutionID     string
	WorkflowID      string
	CurrentNode     string
	Input           any
	Variables       map[string]any
	NodeStatusMap   map[string]NodeStatus
	NodeResults     map[string]any
	TotalWaitTimeMs int64
	// PausedAt is the node ID a Wait node is parked at, "" if not paused.
	PausedAt       string
	pausedAtTime   time.Time
	StartTime      time.Time
	LastUpdateTime time.Time
	mu             sync.RWMutex
}

// NewExecutionContext creates a new execution context
func NewExecutionContext(executionID string) *ExecutionContext {
	now := time.Now()
	return &ExecutionContext{
		ExecutionID:    executionID,
		Variables:      make(map[string]any),
		NodeStatusMap:  make(map[string]NodeStatus),
		NodeResults:    make(map[string]any),
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// SetCurrentNode updates the currently executing node
func (ec *ExecutionContext) SetCurrentNode(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.CurrentNode = nodeID
	ec.LastUpdateTime = time.Now()
}

// SetNodeResult stores the result of a completed node
func (ec *ExecutionContext) SetNodeResult(nodeID string, result any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.NodeResults[nodeID] = result
	ec.LastUpdateTime = time.Now()
}

// GetNodeResult retrieves the result of a completed node
func (ec *ExecutionContext) GetNodeResult(nodeID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	result, exists := ec.NodeResults[nodeID]
	return result, exists
}

// SetNodeStatus records a node's lifecycle state.
func (ec *ExecutionContext) SetNodeStatus(nodeID string, status NodeStatus) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.NodeStatusMap[nodeID] = status
	ec.LastUpdateTime = time.Now()
}

// GetNodeStatus returns a node's lifecycle state, NodeStatusPending if unset.
func (ec *ExecutionContext) GetNodeStatus(nodeID string) NodeStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	st, ok := ec.NodeStatusMap[nodeID]
	if !ok {
		return NodeStatusPending
	}
	return st
}

// SetVariable sets a workflow variable
func (ec *ExecutionContext) SetVariable(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Variables[key] = value
	ec.LastUpdateTime = time.Now()
}

// GetVariable retrieves a workflow variable
func (ec *ExecutionContext) GetVariable(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	value, exists := ec.Variables[key]
	return value, exists
}

// Pause marks the context as parked at nodeID awaiting human input.
func (ec *ExecutionContext) Pause(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.PausedAt = nodeID
	ec.pausedAtTime = time.Now()
}

// Resume clears the paused marker and accumulates the elapsed wait time.
func (ec *ExecutionContext) Resume() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if !ec.pausedAtTime.IsZero() {
		ec.TotalWaitTimeMs += time.Since(ec.pausedAtTime).Milliseconds()
	}
	ec.PausedAt = ""
	ec.pausedAtTime = time.Time{}
}

// Snapshot returns an independent copy for checkpointing.
func (ec *ExecutionContext) Snapshot() *ExecutionContext {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	cp := &ExecutionContext{
		ExecutionID:     ec.ExecutionID,
		WorkflowID:      ec.WorkflowID,
		CurrentNode:     ec.CurrentNode,
		Input:           ec.Input,
		Variables:       make(map[string]any, len(ec.Variables)),
		NodeStatusMap:   make(map[string]NodeStatus, len(ec.NodeStatusMap)),
		NodeResults:     make(map[string]any, len(ec.NodeResults)),
		TotalWaitTimeMs: ec.TotalWaitTimeMs,
		PausedAt:        ec.PausedAt,
		StartTime:       ec.StartTime,
		LastUpdateTime:  ec.LastUpdateTime,
	}
	for k, v := range ec.Variables {
		cp.Variables[k] = v
	}
	for k, v := range ec.NodeStatusMap {
		cp.NodeStatusMap[k] = v
	}
	for k, v := range ec.NodeResults {
		cp.NodeResults[k] = v
	}
	return cp
}

// ExecutionRecordStatus is the terminal or paused state of a run.
type ExecutionRecordStatus string

const (
	RecordStatusCompleted ExecutionRecordStatus = "completed"
	RecordStatusFailed    ExecutionRecordStatus = "failed"
	RecordStatusPaused    ExecutionRecordStatus = "paused"
)

// ExecutionRecord captures spec §3.5's ExecutionRecord: the run's outcome,
// per-node status, outputs, accumulated wait time, and (for paused runs)
// the context needed to resume.
type ExecutionRecord struct {
	ExecutionID     string
	WorkflowID      string
	Status          ExecutionRecordStatus
	NodeStatus      map[string]NodeStatus
	Outputs         map[string]any
	TotalWaitTimeMs int64
	Context         *ExecutionContext // preserved only when Status == Paused
	Err             error
}
