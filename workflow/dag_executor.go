package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// EventType identifies a user-facing workflow event (spec §6.4).
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventNodeStarted       EventType = "node_started"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeFailed        EventType = "node_failed"
	EventCheckpointCreated EventType = "checkpoint_created"
	EventExternalEvent     EventType = "external_event"
)

// Event is a user-facing stream item. Only the fields relevant to Type are
// populated.
type Event struct {
	Type         EventType
	ExecutionID  string
	NodeID       string
	Status       ExecutionRecordStatus
	Result       any
	Err          string
	Label        string
	ExternalType string
	ExternalData any
}

// EventEmitter receives Event values as they are produced.
type EventEmitter func(Event)

// DebugEventType identifies a debug-telemetry item (spec §6.4), distinct
// from the user-facing Event stream.
type DebugEventType string

const (
	DebugWorkflowStart DebugEventType = "workflow_start"
	DebugWorkflowEnd   DebugEventType = "workflow_end"
	DebugNodeStart     DebugEventType = "node_start"
	DebugNodeEnd       DebugEventType = "node_end"
)

// DebugEvent carries timing and state-snapshot detail not exposed on the
// user-facing Event stream.
type DebugEvent struct {
	Type          DebugEventType
	TimestampMs   int64
	ExecutionID   string
	NodeID        string
	Status        ExecutionRecordStatus
	Variables     map[string]any
	DurationMs    int64
}

// DebugEventEmitter receives DebugEvent values as they are produced.
type DebugEventEmitter func(DebugEvent)

// ExecutorConfig tunes the executor's operational limits.
type ExecutorConfig struct {
	// MaxParallelism bounds concurrent branch/layer execution.
	MaxParallelism int
	// StopOnFailure aborts the run on an unhandled node failure instead of
	// continuing past it with a nil input.
	StopOnFailure bool
	// CheckpointInterval triggers an automatic checkpoint every N completed
	// nodes (spec §4.3.1: node_records.len() % checkpoint_interval == 0).
	// Zero disables automatic checkpointing.
	CheckpointInterval int
	// JoinPollInterval is how often a Join node re-checks its predecessors.
	JoinPollInterval time.Duration
	// JoinPollBudget bounds how many times a Join node polls before giving
	// up.
	JoinPollBudget int
}

// DefaultExecutorConfig returns sane defaults: 8-way parallelism, abort on
// unhandled failure, checkpoint every 5 nodes, 2s join budget at 10ms ticks.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxParallelism:     8,
		StopOnFailure:      true,
		CheckpointInterval: 5,
		JoinPollInterval:   10 * time.Millisecond,
		JoinPollBudget:     200,
	}
}

// DAGExecutor executes DAG workflows over the closed NodeType set.
type DAGExecutor struct {
	checkpointMgr   CheckpointManager
	historyStore    *ExecutionHistoryStore
	logger          *zap.Logger
	circuitBreakers *CircuitBreakerRegistry
	cfg             ExecutorConfig

	eventEmitter EventEmitter
	debugEmitter DebugEventEmitter

	waitersMu sync.Mutex
	waiters   map[string][]chan any

	// Legacy execution state retained for checkpoint_enhanced.go's direct
	// field access on resume.
	executionID  string
	threadID     string
	nodeResults  map[string]interface{}
	visitedNodes map[string]bool
	history      *ExecutionHistory
	mu           sync.RWMutex
}

// CheckpointManager interface for checkpoint integration
type CheckpointManager interface {
	SaveCheckpoint(ctx context.Context, checkpoint interface{}) error
}

var executionIDCounter uint64

// NewDAGExecutor creates a new DAG executor
func NewDAGExecutor(checkpointMgr CheckpointManager, logger *zap.Logger) *DAGExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DAGExecutor{
		checkpointMgr:   checkpointMgr,
		historyStore:    NewExecutionHistoryStore(),
		logger:          logger.With(zap.String("component", "dag_executor")),
		nodeResults:     make(map[string]interface{}),
		visitedNodes:    make(map[string]bool),
		circuitBreakers: NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig(), nil, logger),
		cfg:             DefaultExecutorConfig(),
		waiters:         make(map[string][]chan any),
	}
}

// SetHistoryStore sets a custom history store
func (e *DAGExecutor) SetHistoryStore(store *ExecutionHistoryStore) {
	e.historyStore = store
}

// GetHistoryStore returns the executor's history store.
func (e *DAGExecutor) GetHistoryStore() *ExecutionHistoryStore {
	return e.historyStore
}

// GetHistory returns the execution history of the most recently started run.
func (e *DAGExecutor) GetHistory() *ExecutionHistory {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history
}

// SetCircuitBreakerConfig configures the per-node circuit breakers.
func (e *DAGExecutor) SetCircuitBreakerConfig(config CircuitBreakerConfig, handler CircuitBreakerEventHandler) {
	e.circuitBreakers = NewCircuitBreakerRegistry(config, handler, e.logger)
}

// SetConfig replaces the executor's operational tuning.
func (e *DAGExecutor) SetConfig(cfg ExecutorConfig) {
	e.cfg = cfg
}

// SetEventEmitter registers the user-facing Event sink.
func (e *DAGExecutor) SetEventEmitter(emitter EventEmitter) {
	e.eventEmitter = emitter
}

// SetDebugEventEmitter registers the debug-telemetry sink.
func (e *DAGExecutor) SetDebugEventEmitter(emitter DebugEventEmitter) {
	e.debugEmitter = emitter
}

func (e *DAGExecutor) emitEvent(ev Event) {
	if e.eventEmitter != nil {
		e.eventEmitter(ev)
	}
}

func (e *DAGExecutor) emitDebug(ev DebugEvent) {
	if e.debugEmitter != nil {
		ev.TimestampMs = time.Now().UnixMilli()
		e.debugEmitter(ev)
	}
}

func generateExecutionID() string {
	n := atomic.AddUint64(&executionIDCounter, 1)
	return fmt.Sprintf("exec-%d-%d", time.Now().UnixNano(), n)
}

func (e *DAGExecutor) maxParallelism() int {
	if e.cfg.MaxParallelism <= 0 {
		return 1
	}
	return e.cfg.MaxParallelism
}

// GetExecutionID returns the most recent execution's id.
func (e *DAGExecutor) GetExecutionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.executionID
}

// GetNodeResult returns a node's stored result from the most recent run.
func (e *DAGExecutor) GetNodeResult(nodeID string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.nodeResults[nodeID]
	return v, ok
}

// Execute runs graph from its entry Start node using the sequential-with-
// branching strategy of spec §4.3.1.
func (e *DAGExecutor) Execute(ctx context.Context, graph *DAGGraph, input any) (*ExecutionRecord, error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}
	execCtx := NewExecutionContext(generateExecutionID())
	execCtx.Input = input
	return e.run(ctx, graph, execCtx, graph.GetEntry(), input)
}

// ResumeWithHumanInput continues a Paused execution: the paused Wait node is
// marked Completed with humanInput as its output, and execution restarts
// from the Start node, fast-forwarding over already-Completed nodes (spec
// §4.3.1 step 2 / §4.3.5).
func (e *DAGExecutor) ResumeWithHumanInput(ctx context.Context, graph *DAGGraph, execCtx *ExecutionContext, humanInput any) (*ExecutionRecord, error) {
	if execCtx.PausedAt == "" {
		return nil, fmt.Errorf("execution context is not paused")
	}
	nodeID := execCtx.PausedAt
	execCtx.Resume()
	execCtx.SetNodeStatus(nodeID, NodeStatusCompleted)
	execCtx.SetNodeResult(nodeID, humanInput)
	return e.run(ctx, graph, execCtx, graph.GetEntry(), execCtx.Input)
}

// CheckpointState is the resume payload of spec §4.3.5: execution id,
// completed node set, their outputs, workflow variables, and a timestamp.
type CheckpointState struct {
	ExecutionID    string
	CompletedNodes []string
	NodeOutputs    map[string]any
	Variables      map[string]any
	Timestamp      time.Time
}

// ResumeFromCheckpoint rebuilds an ExecutionContext from state and restarts
// the sequential run from the Start node, relying on the Completed-status
// short-circuit to skip already-finished nodes.
func (e *DAGExecutor) ResumeFromCheckpoint(ctx context.Context, graph *DAGGraph, state CheckpointState, input any) (*ExecutionRecord, error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}
	execCtx := NewExecutionContext(state.ExecutionID)
	execCtx.Input = input
	for k, v := range state.NodeOutputs {
		execCtx.SetNodeResult(k, v)
	}
	for _, id := range state.CompletedNodes {
		execCtx.SetNodeStatus(id, NodeStatusCompleted)
	}
	for k, v := range state.Variables {
		execCtx.SetVariable(k, v)
	}
	return e.run(ctx, graph, execCtx, graph.GetEntry(), input)
}

// run is the iterative sequential-with-branching loop shared by Execute,
// ResumeWithHumanInput, and ResumeFromCheckpoint.
func (e *DAGExecutor) run(ctx context.Context, graph *DAGGraph, execCtx *ExecutionContext, startNodeID string, startInput any) (*ExecutionRecord, error) {
	e.mu.Lock()
	e.executionID = execCtx.ExecutionID
	e.mu.Unlock()

	e.emitEvent(Event{Type: EventWorkflowStarted, ExecutionID: execCtx.ExecutionID})
	e.emitDebug(DebugEvent{Type: DebugWorkflowStart, ExecutionID: execCtx.ExecutionID})

	current := startNodeID
	curInput := startInput

	e.mu.Lock()
	if e.history == nil || e.history.ExecutionID != execCtx.ExecutionID {
		e.history = NewExecutionHistory(execCtx.ExecutionID, execCtx.WorkflowID)
	}
	history := e.history
	e.mu.Unlock()

	for current != "" {
		node, ok := graph.GetNode(current)
		if !ok {
			return e.finish(execCtx, RecordStatusFailed, fmt.Errorf("node not found: %s", current))
		}
		execCtx.SetCurrentNode(current)

		if execCtx.GetNodeStatus(current) == NodeStatusCompleted {
			result, _ := execCtx.GetNodeResult(current)
			curInput = result
			next, err := e.determineNext(graph, node, execCtx)
			if err != nil {
				return e.finish(execCtx, RecordStatusFailed, err)
			}
			current = next
			continue
		}

		if node.Type == NodeTypeWait {
			execCtx.SetNodeStatus(current, NodeStatusWaiting)
			execCtx.Pause(current)
			return e.pausedRecord(execCtx), nil
		}

		e.emitEvent(Event{Type: EventNodeStarted, ExecutionID: execCtx.ExecutionID, NodeID: current})
		e.emitDebug(DebugEvent{Type: DebugNodeStart, ExecutionID: execCtx.ExecutionID, NodeID: current, Variables: snapshotVars(execCtx)})
		start := time.Now()
		histNode := history.RecordNodeStart(current, node.Type, curInput)

		cb := e.circuitBreakers.GetOrCreate(current)
		var result any
		var err error
		if cb.AllowRequest() {
			result, err = e.runNode(ctx, graph, node, curInput, execCtx)
			if err != nil {
				cb.RecordFailure()
			} else {
				cb.RecordSuccess()
			}
		} else {
			if node.ErrorConfig != nil && node.ErrorConfig.FallbackValue != nil {
				result = node.ErrorConfig.FallbackValue
			} else {
				err = fmt.Errorf("circuit breaker open for node %s", current)
			}
		}
		duration := time.Since(start)
		history.RecordNodeEnd(histNode, result, err)

		e.mu.Lock()
		e.nodeResults[current] = result
		e.visitedNodes[current] = true
		e.mu.Unlock()

		if err != nil {
			execCtx.SetNodeStatus(current, NodeStatusFailed)
			e.emitEvent(Event{Type: EventNodeFailed, ExecutionID: execCtx.ExecutionID, NodeID: current, Err: err.Error()})
			e.emitDebug(DebugEvent{Type: DebugNodeEnd, ExecutionID: execCtx.ExecutionID, NodeID: current, DurationMs: duration.Milliseconds()})

			if handlerID, ok := graph.ErrorHandler(current); ok {
				curInput = map[string]any{"error": err.Error(), "node_id": current}
				current = handlerID
				continue
			}
			if e.cfg.StopOnFailure {
				return e.finish(execCtx, RecordStatusFailed, err)
			}
			e.logger.Warn("node failed, continuing with nil input", zap.String("node_id", current), zap.Error(err))
			curInput = nil
			next, nerr := e.determineNext(graph, node, execCtx)
			if nerr != nil {
				return e.finish(execCtx, RecordStatusFailed, nerr)
			}
			current = next
			continue
		}

		execCtx.SetNodeStatus(current, NodeStatusCompleted)
		execCtx.SetNodeResult(current, result)
		e.emitEvent(Event{Type: EventNodeCompleted, ExecutionID: execCtx.ExecutionID, NodeID: current, Result: result})
		e.emitDebug(DebugEvent{Type: DebugNodeEnd, ExecutionID: execCtx.ExecutionID, NodeID: current, DurationMs: duration.Milliseconds()})
		curInput = result

		if node.Type == NodeTypeEnd {
			break
		}

		next, err := e.determineNext(graph, node, execCtx)
		if err != nil {
			return e.finish(execCtx, RecordStatusFailed, err)
		}
		current = next

		e.maybeCheckpoint(ctx, execCtx)
	}

	return e.finish(execCtx, RecordStatusCompleted, nil)
}

// determineNext resolves the next node id for a just-completed (or short-
// circuited) node: Condition nodes route on their stored boolean-string
// output, everything else follows its single unlabeled edge.
func (e *DAGExecutor) determineNext(graph *DAGGraph, node *DAGNode, execCtx *ExecutionContext) (string, error) {
	edges := graph.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return "", nil
	}

	if node.Type == NodeTypeCondition {
		result, _ := execCtx.GetNodeResult(node.ID)
		label, _ := result.(string)
		var fallback string
		hasFallback := false
		for _, e := range edges {
			if e.Condition != nil && *e.Condition == label {
				return e.To, nil
			}
			if e.Condition == nil && !hasFallback {
				fallback = e.To
				hasFallback = true
			}
		}
		if hasFallback {
			return fallback, nil
		}
		return "", fmt.Errorf("condition node %s: no edge matches result %q", node.ID, label)
	}

	return edges[0].To, nil
}

func (e *DAGExecutor) maybeCheckpoint(ctx context.Context, execCtx *ExecutionContext) {
	if e.cfg.CheckpointInterval <= 0 || e.checkpointMgr == nil {
		return
	}
	completed := 0
	for _, st := range execCtx.NodeStatusMap {
		if st == NodeStatusCompleted {
			completed++
		}
	}
	if completed == 0 || completed%e.cfg.CheckpointInterval != 0 {
		return
	}
	label := fmt.Sprintf("auto_checkpoint_%d", completed)
	if err := e.checkpointMgr.SaveCheckpoint(ctx, execCtx.Snapshot()); err != nil {
		e.logger.Warn("checkpoint save failed", zap.String("label", label), zap.Error(err))
		return
	}
	e.emitEvent(Event{Type: EventCheckpointCreated, ExecutionID: execCtx.ExecutionID, Label: label})
}

func (e *DAGExecutor) finish(execCtx *ExecutionContext, status ExecutionRecordStatus, err error) (*ExecutionRecord, error) {
	e.emitEvent(Event{Type: EventWorkflowCompleted, ExecutionID: execCtx.ExecutionID, Status: status})
	e.emitDebug(DebugEvent{Type: DebugWorkflowEnd, ExecutionID: execCtx.ExecutionID, Status: status})
	e.mu.Lock()
	if e.history != nil {
		e.history.Complete(err)
		e.historyStore.Save(e.history)
	}
	e.mu.Unlock()
	record := &ExecutionRecord{
		ExecutionID:     execCtx.ExecutionID,
		WorkflowID:      execCtx.WorkflowID,
		Status:          status,
		NodeStatus:      copyStatusMap(execCtx.NodeStatusMap),
		Outputs:         copyAnyMap(execCtx.NodeResults),
		TotalWaitTimeMs: execCtx.TotalWaitTimeMs,
		Err:             err,
	}
	return record, err
}

func (e *DAGExecutor) pausedRecord(execCtx *ExecutionContext) *ExecutionRecord {
	e.emitEvent(Event{Type: EventWorkflowCompleted, ExecutionID: execCtx.ExecutionID, Status: RecordStatusPaused})
	return &ExecutionRecord{
		ExecutionID:     execCtx.ExecutionID,
		WorkflowID:      execCtx.WorkflowID,
		Status:          RecordStatusPaused,
		NodeStatus:      copyStatusMap(execCtx.NodeStatusMap),
		Outputs:         copyAnyMap(execCtx.NodeResults),
		TotalWaitTimeMs: execCtx.TotalWaitTimeMs,
		Context:         execCtx,
	}
}

func copyStatusMap(m map[string]NodeStatus) map[string]NodeStatus {
	out := make(map[string]NodeStatus, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func snapshotVars(execCtx *ExecutionContext) map[string]any {
	out := make(map[string]any, len(execCtx.Variables))
	for k, v := range execCtx.Variables {
		out[k] = v
	}
	return out
}

// runNode dispatches a single node to its kind-specific behavior. Start and
// End are identity passthroughs; Wait is handled by the caller before this
// is reached.
func (e *DAGExecutor) runNode(ctx context.Context, graph *DAGGraph, node *DAGNode, input any, execCtx *ExecutionContext) (any, error) {
	switch node.Type {
	case NodeTypeStart, NodeTypeEnd:
		return input, nil
	case NodeTypeTask:
		if node.Step == nil {
			return nil, fmt.Errorf("task node %s has no step", node.ID)
		}
		return node.Step.Execute(ctx, input)
	case NodeTypeCondition:
		if node.Condition == nil {
			return nil, fmt.Errorf("condition node %s has no condition function", node.ID)
		}
		result, err := node.Condition(ctx, input)
		if err != nil {
			return nil, err
		}
		return strconv.FormatBool(result), nil
	case NodeTypeParallel:
		return e.executeParallelNode(ctx, graph, node, input, execCtx)
	case NodeTypeJoin:
		return e.executeJoinNode(ctx, node, execCtx)
	case NodeTypeSubWorkflow:
		return e.executeSubWorkflowNode(ctx, node, input)
	default:
		return nil, fmt.Errorf("unsupported node type: %s", node.Type)
	}
}

// executeParallelNode fans out to Branches (or all outgoing edges) with
// isolated per-branch input, merging results last-write-wins under a
// semaphore-capped fan-out (spec §4.3.2).
func (e *DAGExecutor) executeParallelNode(ctx context.Context, graph *DAGGraph, node *DAGNode, input any, execCtx *ExecutionContext) (any, error) {
	branchIDs := node.Branches
	if len(branchIDs) == 0 {
		branchIDs = graph.GetEdges(node.ID)
	}
	if len(branchIDs) == 0 {
		return map[string]any{}, nil
	}

	sem := semaphore.NewWeighted(int64(e.maxParallelism()))
	var mu sync.Mutex
	results := make(map[string]any, len(branchIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, branchID := range branchIDs {
		branchID := branchID
		branchInput := cloneBranchInput(input)
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			branchNode, ok := graph.GetNode(branchID)
			if !ok {
				return fmt.Errorf("parallel branch node not found: %s", branchID)
			}
			out, err := e.runNode(gctx, graph, branchNode, branchInput, execCtx)
			if err != nil {
				execCtx.SetNodeStatus(branchID, NodeStatusFailed)
				if e.cfg.StopOnFailure {
					return fmt.Errorf("branch %s: %w", branchID, err)
				}
				return nil
			}
			execCtx.SetNodeStatus(branchID, NodeStatusCompleted)
			execCtx.SetNodeResult(branchID, out)

			mu.Lock()
			results[branchID] = out // concurrent writers under mu: last to finish wins
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// executeJoinNode blocks, polling at JoinPollInterval up to JoinPollBudget
// attempts, until every node in WaitFor reaches a terminal status. Its
// output is a map keyed by predecessor id (spec §3.5 invariant: Join output
// keyed exactly by its wait_for set).
func (e *DAGExecutor) executeJoinNode(ctx context.Context, node *DAGNode, execCtx *ExecutionContext) (any, error) {
	interval := e.cfg.JoinPollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	budget := e.cfg.JoinPollBudget
	if budget <= 0 {
		budget = 200
	}

	for attempt := 0; ; attempt++ {
		allTerminal := true
		for _, pred := range node.WaitFor {
			st := execCtx.GetNodeStatus(pred)
			if st != NodeStatusCompleted && st != NodeStatusFailed {
				allTerminal = false
				break
			}
		}
		if allTerminal {
			break
		}
		if attempt >= budget {
			return nil, fmt.Errorf("join node %s: predecessors %v did not reach terminal status within budget", node.ID, node.WaitFor)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	out := make(map[string]any, len(node.WaitFor))
	for _, pred := range node.WaitFor {
		v, _ := execCtx.GetNodeResult(pred)
		out[pred] = v
	}
	return out, nil
}

// executeSubWorkflowNode runs node.SubGraph to completion via the layered-
// parallel runner and surfaces its (deterministically first, by sorted node
// id) End node's output (spec §4.3.3).
func (e *DAGExecutor) executeSubWorkflowNode(ctx context.Context, node *DAGNode, input any) (any, error) {
	if node.SubGraph == nil {
		return nil, fmt.Errorf("sub-workflow node %s has no sub-graph", node.ID)
	}
	sub := NewDAGExecutor(e.checkpointMgr, e.logger)
	sub.cfg = e.cfg
	record, err := sub.ExecuteParallel(ctx, node.SubGraph, input)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s execution failed: %w", node.ID, err)
	}

	var endIDs []string
	for id, status := range record.NodeStatus {
		if status != NodeStatusCompleted {
			continue
		}
		if n, ok := node.SubGraph.GetNode(id); ok && n.Type == NodeTypeEnd {
			endIDs = append(endIDs, id)
		}
	}
	if len(endIDs) == 0 {
		return nil, fmt.Errorf("sub-workflow %s produced no End-node output", node.ID)
	}
	sort.Strings(endIDs)
	return record.Outputs[endIDs[0]], nil
}

// ExecuteParallel runs graph's nodes in topological layers, each layer
// executing concurrently under a shared semaphore, with per-node input
// resolved from 0/1/many predecessors (spec §4.3.4). Used both as a
// standalone runner and as the mechanism behind sub-workflow execution.
func (e *DAGExecutor) ExecuteParallel(ctx context.Context, graph *DAGGraph, input any) (*ExecutionRecord, error) {
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow graph: %w", err)
	}
	execCtx := NewExecutionContext(generateExecutionID())
	execCtx.Input = input

	layers, err := graph.topologicalLayers()
	if err != nil {
		return e.finish(execCtx, RecordStatusFailed, err)
	}

	sem := semaphore.NewWeighted(int64(e.maxParallelism()))
	for _, layer := range layers {
		g, gctx := errgroup.WithContext(ctx)
		for _, nodeID := range layer {
			nodeID := nodeID
			if execCtx.GetNodeStatus(nodeID) == NodeStatusCompleted {
				continue
			}
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				node, _ := graph.GetNode(nodeID)
				nodeInput := e.resolveLayerInput(graph, execCtx, nodeID, input)

				execCtx.SetNodeStatus(nodeID, NodeStatusRunning)
				result, err := e.runNode(gctx, graph, node, nodeInput, execCtx)
				if err != nil {
					execCtx.SetNodeStatus(nodeID, NodeStatusFailed)
					if e.cfg.StopOnFailure {
						return fmt.Errorf("node %s failed: %w", nodeID, err)
					}
					return nil
				}
				execCtx.SetNodeStatus(nodeID, NodeStatusCompleted)
				execCtx.SetNodeResult(nodeID, result)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return e.finish(execCtx, RecordStatusFailed, err)
		}
	}
	return e.finish(execCtx, RecordStatusCompleted, nil)
}

// resolveLayerInput picks a node's input from its predecessor count: the
// workflow input with none, the single predecessor's output with one, or a
// map keyed by predecessor id with many.
func (e *DAGExecutor) resolveLayerInput(graph *DAGGraph, execCtx *ExecutionContext, nodeID string, workflowInput any) any {
	preds := graph.Predecessors(nodeID)
	switch len(preds) {
	case 0:
		return workflowInput
	case 1:
		v, _ := execCtx.GetNodeResult(preds[0])
		return v
	default:
		out := make(map[string]any, len(preds))
		for _, p := range preds {
			v, _ := execCtx.GetNodeResult(p)
			out[p] = v
		}
		return out
	}
}

// cloneBranchInput gives each parallel branch an isolated copy of a map
// input so branches cannot observe each other's mutations; non-map inputs
// are immutable from the executor's perspective and are passed through.
func cloneBranchInput(input any) any {
	m, ok := input.(map[string]any)
	if !ok {
		return input
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SendExternalEvent delivers value to every Wait-node execution currently
// parked on eventType, draining the one-shot waiter set (spec §4.3.6).
func (e *DAGExecutor) SendExternalEvent(eventType string, value any) {
	e.waitersMu.Lock()
	chans := e.waiters[eventType]
	delete(e.waiters, eventType)
	e.waitersMu.Unlock()

	for _, ch := range chans {
		ch <- value
	}
	e.emitEvent(Event{Type: EventExternalEvent, ExternalType: eventType, ExternalData: value})
}

// ExecuteWait blocks until eventType is delivered via SendExternalEvent or
// timeout elapses (0 = no timeout), returning an error "Wait timeout" on
// expiry. This is the external-event primitive spec §4.3.6 describes;
// NodeTypeWait nodes instead use the higher-level pause/resume protocol of
// §4.3.1, suited to a request/response executor that cannot block a request
// indefinitely. ExecuteWait remains available for steps that want to block
// in-process on an external signal.
func (e *DAGExecutor) ExecuteWait(ctx context.Context, eventType string, timeout time.Duration) (any, error) {
	ch := make(chan any, 1)
	e.waitersMu.Lock()
	e.waiters[eventType] = append(e.waiters[eventType], ch)
	e.waitersMu.Unlock()

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case v := <-ch:
			return v, nil
		case <-timer.C:
			return nil, fmt.Errorf("Wait timeout")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
