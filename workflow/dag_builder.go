package workflow

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DAGBuilder provides a fluent API for constructing DAG workflows
type DAGBuilder struct {
	graph  *DAGGraph
	name   string
	desc   string
	logger *zap.Logger
}

// NewDAGBuilder creates a new DAG builder with the given name
func NewDAGBuilder(name string) *DAGBuilder {
	logger, _ := zap.NewProduction()
	return &DAGBuilder{
		graph:  NewDAGGraph(),
		name:   name,
		logger: logger.With(zap.String("component", "dag_builder")),
	}
}

// WithDescription sets the workflow description
func (b *DAGBuilder) WithDescription(desc string) *DAGBuilder {
	b.desc = desc
	return b
}

// WithLogger sets a custom logger
func (b *DAGBuilder) WithLogger(logger *zap.Logger) *DAGBuilder {
	b.logger = logger.With(zap.String("component", "dag_builder"))
	return b
}

// AddNode adds a node to the graph and returns a NodeBuilder for configuration
func (b *DAGBuilder) AddNode(id string, nodeType NodeType) *NodeBuilder {
	node := &DAGNode{
		ID:       id,
		Type:     nodeType,
		Metadata: make(map[string]any),
	}
	b.graph.AddNode(node)

	return &NodeBuilder{
		node:   node,
		parent: b,
	}
}

// AddEdge adds an unlabeled directed edge from one node to another
func (b *DAGBuilder) AddEdge(from, to string) *DAGBuilder {
	b.graph.AddEdge(from, to)
	return b
}

// AddConditionalEdge adds an edge leaving a Condition node, taken when the
// condition's boolean output formats to label ("true" or "false").
func (b *DAGBuilder) AddConditionalEdge(from, to, label string) *DAGBuilder {
	b.graph.AddConditionalEdge(from, to, label)
	return b
}

// SetErrorHandler routes a node's failures to handlerID.
func (b *DAGBuilder) SetErrorHandler(nodeID, handlerID string) *DAGBuilder {
	b.graph.SetErrorHandler(nodeID, handlerID)
	return b
}

// SetEntry sets the entry node for the workflow
func (b *DAGBuilder) SetEntry(nodeID string) *DAGBuilder {
	b.graph.SetEntry(nodeID)
	return b
}

// Build validates the DAG and creates a DAGWorkflow
func (b *DAGBuilder) Build() (*DAGWorkflow, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("DAG validation failed: %w", err)
	}

	workflow := NewDAGWorkflow(b.name, b.desc, b.graph)

	b.logger.Info("DAG workflow built successfully",
		zap.String("name", b.name),
		zap.Int("nodes", len(b.graph.nodes)),
		zap.String("entry", b.graph.entry),
	)

	return workflow, nil
}

// validate performs comprehensive validation of the DAG
func (b *DAGBuilder) validate() error {
	if err := b.graph.Validate(); err != nil {
		return err
	}

	if err := b.detectCycles(); err != nil {
		return err
	}

	if err := b.detectOrphanedNodes(); err != nil {
		return err
	}

	if err := b.validateNodes(); err != nil {
		return err
	}

	return nil
}

// detectCycles detects cycles in the graph using DFS
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for nodeID := range b.graph.nodes {
		if !visited[nodeID] {
			if b.hasCycleDFS(nodeID, visited, recStack) {
				return fmt.Errorf("cycle detected in graph involving node: %s", nodeID)
			}
		}
	}

	return nil
}

// hasCycleDFS performs DFS to detect cycles
func (b *DAGBuilder) hasCycleDFS(nodeID string, visited, recStack map[string]bool) bool {
	visited[nodeID] = true
	recStack[nodeID] = true

	for _, neighborID := range b.graph.GetEdges(nodeID) {
		if !visited[neighborID] {
			if b.hasCycleDFS(neighborID, visited, recStack) {
				return true
			}
		} else if recStack[neighborID] {
			return true
		}
	}

	recStack[nodeID] = false
	return false
}

// detectOrphanedNodes detects nodes not reachable from the entry node
func (b *DAGBuilder) detectOrphanedNodes() error {
	reachable := make(map[string]bool)
	b.markReachable(b.graph.entry, reachable)

	orphaned := []string{}
	for nodeID := range b.graph.nodes {
		if !reachable[nodeID] {
			orphaned = append(orphaned, nodeID)
		}
	}

	if len(orphaned) > 0 {
		return fmt.Errorf("orphaned nodes detected (not reachable from entry): %v", orphaned)
	}

	return nil
}

// markReachable marks all nodes reachable from the given node
func (b *DAGBuilder) markReachable(nodeID string, reachable map[string]bool) {
	if reachable[nodeID] {
		return
	}
	reachable[nodeID] = true

	for _, neighborID := range b.graph.GetEdges(nodeID) {
		b.markReachable(neighborID, reachable)
	}

	if node, exists := b.graph.GetNode(nodeID); exists && node.Type == NodeTypeParallel {
		for _, branchID := range node.Branches {
			b.markReachable(branchID, reachable)
		}
	}
}

// validateNodes validates individual node configurations
func (b *DAGBuilder) validateNodes() error {
	for nodeID, node := range b.graph.nodes {
		switch node.Type {
		case NodeTypeStart:
			if len(b.graph.GetEdges(nodeID)) == 0 {
				return fmt.Errorf("start node %s has no outgoing edge", nodeID)
			}

		case NodeTypeTask:
			if node.Step == nil {
				return fmt.Errorf("task node %s has no step configured", nodeID)
			}

		case NodeTypeCondition:
			if node.Condition == nil {
				return fmt.Errorf("condition node %s has no condition function configured", nodeID)
			}
			if len(b.graph.GetEdges(nodeID)) == 0 {
				return fmt.Errorf("condition node %s has no routing configured", nodeID)
			}

		case NodeTypeParallel:
			if len(node.Branches) == 0 && len(b.graph.GetEdges(nodeID)) < 2 {
				return fmt.Errorf("parallel node %s should have at least 2 branches or outgoing edges", nodeID)
			}

		case NodeTypeJoin:
			if len(node.WaitFor) == 0 {
				return fmt.Errorf("join node %s has no wait_for predecessors configured", nodeID)
			}

		case NodeTypeSubWorkflow:
			if node.SubGraph == nil {
				return fmt.Errorf("sub-workflow node %s has no subgraph configured", nodeID)
			}

		case NodeTypeWait:
			if node.WaitEventType == "" {
				return fmt.Errorf("wait node %s has no wait_event_type configured", nodeID)
			}

		case NodeTypeEnd:
			if len(b.graph.GetEdges(nodeID)) != 0 {
				return fmt.Errorf("end node %s must not have outgoing edges", nodeID)
			}

		default:
			return fmt.Errorf("unknown node type: %s", node.Type)
		}
	}

	return nil
}

// NodeBuilder provides a fluent API for configuring individual nodes
type NodeBuilder struct {
	node   *DAGNode
	parent *DAGBuilder
}

// WithStep sets the step for a task node
func (nb *NodeBuilder) WithStep(step Step) *NodeBuilder {
	nb.node.Step = step
	return nb
}

// WithCondition sets the condition function for a condition node
func (nb *NodeBuilder) WithCondition(cond ConditionFunc) *NodeBuilder {
	nb.node.Condition = cond
	return nb
}

// WithBranches sets the explicit branch node ids for a parallel node
func (nb *NodeBuilder) WithBranches(nodeIDs ...string) *NodeBuilder {
	nb.node.Branches = nodeIDs
	return nb
}

// WithWaitFor sets the predecessor ids a join node blocks on
func (nb *NodeBuilder) WithWaitFor(nodeIDs ...string) *NodeBuilder {
	nb.node.WaitFor = nodeIDs
	return nb
}

// WithSubGraph sets the nested workflow for a sub-workflow node
func (nb *NodeBuilder) WithSubGraph(subGraph *DAGGraph) *NodeBuilder {
	nb.node.SubGraph = subGraph
	return nb
}

// WithWaitEvent sets the external event type a wait node pauses for.
func (nb *NodeBuilder) WithWaitEvent(eventType string) *NodeBuilder {
	nb.node.WaitEventType = eventType
	return nb
}

// WithWaitTimeout bounds how long a wait node may stay paused.
func (nb *NodeBuilder) WithWaitTimeout(timeout time.Duration) *NodeBuilder {
	nb.node.WaitTimeout = timeout
	return nb
}

// WithMetadata sets a metadata value
func (nb *NodeBuilder) WithMetadata(key string, value any) *NodeBuilder {
	nb.node.Metadata[key] = value
	return nb
}

// WithErrorConfig sets the error handling configuration for a node
func (nb *NodeBuilder) WithErrorConfig(config ErrorConfig) *NodeBuilder {
	nb.node.ErrorConfig = &config
	return nb
}

// Done completes node configuration and returns to the DAGBuilder
func (nb *NodeBuilder) Done() *DAGBuilder {
	return nb.parent
}
