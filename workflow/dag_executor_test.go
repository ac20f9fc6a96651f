package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Mock helpers
// ---------------------------------------------------------------------------

type dagExecMockStep struct {
	name      string
	output    any
	err       error
	callCount atomic.Int32
	delay     time.Duration
}

func newDagExecMockStep(name string, output any) *dagExecMockStep {
	return &dagExecMockStep{name: name, output: output}
}

func (s *dagExecMockStep) Name() string { return s.name }

func (s *dagExecMockStep) Execute(ctx context.Context, input any) (any, error) {
	s.callCount.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

type mockCheckpointMgr struct {
	saved     []any
	err       error
	callCount atomic.Int32
}

func (m *mockCheckpointMgr) SaveCheckpoint(ctx context.Context, checkpoint any) error {
	m.callCount.Add(1)
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, checkpoint)
	return nil
}

// buildSimpleGraph creates: start -> entry(task) -> next(task) -> end
func buildSimpleGraph(entryOutput, nextOutput any) *DAGGraph {
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "entry", Type: NodeTypeTask, Step: newDagExecMockStep("entry_step", entryOutput)})
	g.AddNode(&DAGNode{ID: "next", Type: NodeTypeTask, Step: newDagExecMockStep("next_step", nextOutput)})
	g.AddNode(&DAGNode{ID: "end", Type: NodeTypeEnd})
	g.AddEdge("start", "entry")
	g.AddEdge("entry", "next")
	g.AddEdge("next", "end")
	g.SetEntry("start")
	return g
}

// ---------------------------------------------------------------------------
// NewDAGExecutor
// ---------------------------------------------------------------------------

func TestNewDAGExecutor(t *testing.T) {
	t.Parallel()
	exec := NewDAGExecutor(nil, nil)
	assert.NotNil(t, exec)
	assert.NotNil(t, exec.historyStore)
}

func TestNewDAGExecutor_WithCheckpointMgr(t *testing.T) {
	t.Parallel()
	mgr := &mockCheckpointMgr{}
	exec := NewDAGExecutor(mgr, zap.NewNop())
	assert.NotNil(t, exec)
}

// ---------------------------------------------------------------------------
// Execute — basic flow
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_InvalidGraph(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "graph has no nodes")
}

func TestDAGExecutor_Execute_EntryNodeNotFound(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "a", Type: NodeTypeStart})
	g.SetEntry("nonexistent")
	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "entry node does not exist")
}

func TestDAGExecutor_Execute_SingleTaskNode(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "only", Type: NodeTypeTask, Step: newDagExecMockStep("only_step", "result")})
	g.AddEdge("start", "only")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, RecordStatusCompleted, record.Status)
	assert.Equal(t, "result", record.Outputs["only"])
}

func TestDAGExecutor_Execute_ChainedTaskNodes(t *testing.T) {
	t.Parallel()
	g := buildSimpleGraph("step1_out", "step2_out")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "step1_out", record.Outputs["entry"])
	assert.Equal(t, "step2_out", record.Outputs["next"])

	_, ok := exec.GetNodeResult("entry")
	assert.True(t, ok)
	_, ok = exec.GetNodeResult("next")
	assert.True(t, ok)
}

func TestDAGExecutor_Execute_TaskNodeNoStep(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "bad", Type: NodeTypeTask, Step: nil})
	g.AddEdge("start", "bad")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "has no step")
}

// ---------------------------------------------------------------------------
// Condition nodes
// ---------------------------------------------------------------------------

func buildConditionGraph(result bool) *DAGGraph {
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{
		ID:   "cond",
		Type: NodeTypeCondition,
		Condition: func(ctx context.Context, input any) (bool, error) {
			return result, nil
		},
	})
	g.AddNode(&DAGNode{ID: "true_node", Type: NodeTypeTask, Step: newDagExecMockStep("true_step", "true_result")})
	g.AddNode(&DAGNode{ID: "false_node", Type: NodeTypeTask, Step: newDagExecMockStep("false_step", "false_result")})
	g.AddEdge("start", "cond")
	g.AddConditionalEdge("cond", "true_node", "true")
	g.AddConditionalEdge("cond", "false_node", "false")
	g.SetEntry("start")
	return g
}

func TestDAGExecutor_Execute_ConditionNode_True(t *testing.T) {
	t.Parallel()
	g := buildConditionGraph(true)

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "true_result", record.Outputs["true_node"])
	_, visited := record.Outputs["false_node"]
	assert.False(t, visited)
}

func TestDAGExecutor_Execute_ConditionNode_False(t *testing.T) {
	t.Parallel()
	g := buildConditionGraph(false)

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "false_result", record.Outputs["false_node"])
}

func TestDAGExecutor_Execute_ConditionNode_NoConditionFunc(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "cond", Type: NodeTypeCondition, Condition: nil})
	g.AddEdge("start", "cond")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no condition function")
}

// ---------------------------------------------------------------------------
// Parallel / Join nodes
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_ParallelJoin(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "par", Type: NodeTypeParallel, Branches: []string{"branch_a", "branch_b"}})
	g.AddNode(&DAGNode{ID: "branch_a", Type: NodeTypeTask, Step: newDagExecMockStep("a_step", "result_a")})
	g.AddNode(&DAGNode{ID: "branch_b", Type: NodeTypeTask, Step: newDagExecMockStep("b_step", "result_b")})
	g.AddNode(&DAGNode{ID: "join", Type: NodeTypeJoin, WaitFor: []string{"branch_a", "branch_b"}})
	g.AddNode(&DAGNode{ID: "end", Type: NodeTypeEnd})
	g.AddEdge("start", "par")
	g.AddEdge("par", "branch_a")
	g.AddEdge("par", "branch_b")
	g.AddEdge("branch_a", "join")
	g.AddEdge("branch_b", "join")
	g.AddEdge("join", "end")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)

	parResult, ok := record.Outputs["par"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "result_a", parResult["branch_a"])
	assert.Equal(t, "result_b", parResult["branch_b"])

	joinResult, ok := record.Outputs["join"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "result_a", joinResult["branch_a"])
	assert.Equal(t, "result_b", joinResult["branch_b"])
}

func TestDAGExecutor_Execute_JoinTimesOutWithoutPredecessors(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "join", Type: NodeTypeJoin, WaitFor: []string{"never_runs"}})
	g.AddNode(&DAGNode{ID: "never_runs", Type: NodeTypeTask, Step: newDagExecMockStep("x", "y")})
	g.AddEdge("start", "join")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	exec.SetConfig(ExecutorConfig{MaxParallelism: 4, StopOnFailure: true, JoinPollInterval: time.Millisecond, JoinPollBudget: 5})
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "did not reach terminal status")
}

// ---------------------------------------------------------------------------
// Error handling
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_ErrorHandlerRouting(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	failStep := newDagExecMockStep("fail_step", nil)
	failStep.err = errors.New("step failed")
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "risky", Type: NodeTypeTask, Step: failStep})
	g.AddNode(&DAGNode{ID: "handler", Type: NodeTypeTask, Step: newDagExecMockStep("handler_step", "recovered")})
	g.AddNode(&DAGNode{ID: "end", Type: NodeTypeEnd})
	g.AddEdge("start", "risky")
	g.AddEdge("risky", "end")
	g.AddEdge("handler", "end")
	g.SetErrorHandler("risky", "handler")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "recovered", record.Outputs["handler"])
}

func TestDAGExecutor_Execute_StopOnFailureFalse_ContinuesWithNilInput(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	failStep := newDagExecMockStep("fail_step", nil)
	failStep.err = errors.New("step failed")
	okStep := newDagExecMockStep("ok_step", "done")
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "risky", Type: NodeTypeTask, Step: failStep})
	g.AddNode(&DAGNode{ID: "after", Type: NodeTypeTask, Step: okStep})
	g.AddEdge("start", "risky")
	g.AddEdge("risky", "after")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	cfg := DefaultExecutorConfig()
	cfg.StopOnFailure = false
	exec.SetConfig(cfg)

	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "done", record.Outputs["after"])
	assert.Equal(t, NodeStatusFailed, record.NodeStatus["risky"])
}

func TestDAGExecutor_Execute_FailFastAborts(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	failStep := newDagExecMockStep("fail_step", nil)
	failStep.err = errors.New("fatal error")
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "risky", Type: NodeTypeTask, Step: failStep})
	g.AddEdge("start", "risky")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fatal error")
}

// ---------------------------------------------------------------------------
// Wait node pause/resume
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_WaitNodePauses(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "approval", Type: NodeTypeWait, WaitEventType: "human_approval"})
	g.AddNode(&DAGNode{ID: "after", Type: NodeTypeTask, Step: newDagExecMockStep("after_step", "finished")})
	g.AddNode(&DAGNode{ID: "end", Type: NodeTypeEnd})
	g.AddEdge("start", "approval")
	g.AddEdge("approval", "after")
	g.AddEdge("after", "end")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, RecordStatusPaused, record.Status)
	require.NotNil(t, record.Context)

	resumed, err := exec.ResumeWithHumanInput(context.Background(), g, record.Context, "approved")
	require.NoError(t, err)
	assert.Equal(t, RecordStatusCompleted, resumed.Status)
	assert.Equal(t, "finished", resumed.Outputs["after"])
	assert.Equal(t, "approved", resumed.Outputs["approval"])
}

// ---------------------------------------------------------------------------
// Sub-workflow
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_SubWorkflowNode(t *testing.T) {
	t.Parallel()
	subGraph := NewDAGGraph()
	subGraph.AddNode(&DAGNode{ID: "sub_start", Type: NodeTypeStart})
	subGraph.AddNode(&DAGNode{ID: "sub_step", Type: NodeTypeTask, Step: newDagExecMockStep("sub_step", "sub_result")})
	subGraph.AddNode(&DAGNode{ID: "sub_end", Type: NodeTypeEnd})
	subGraph.AddEdge("sub_start", "sub_step")
	subGraph.AddEdge("sub_step", "sub_end")
	subGraph.SetEntry("sub_start")

	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "sg", Type: NodeTypeSubWorkflow, SubGraph: subGraph})
	g.AddEdge("start", "sg")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, "sub_result", record.Outputs["sg"])
}

func TestDAGExecutor_Execute_SubWorkflowNode_NoSubGraph(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "sg", Type: NodeTypeSubWorkflow, SubGraph: nil})
	g.AddEdge("start", "sg")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no sub-graph")
}

// ---------------------------------------------------------------------------
// ExecuteParallel (layered runner)
// ---------------------------------------------------------------------------

func TestDAGExecutor_ExecuteParallel_Layered(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "a", Type: NodeTypeTask, Step: newDagExecMockStep("a", "a_out")})
	g.AddNode(&DAGNode{ID: "b", Type: NodeTypeTask, Step: newDagExecMockStep("b", "b_out")})
	g.AddNode(&DAGNode{ID: "end", Type: NodeTypeEnd})
	g.AddEdge("start", "a")
	g.AddEdge("start", "b")
	g.AddEdge("a", "end")
	g.AddEdge("b", "end")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	record, err := exec.ExecuteParallel(context.Background(), g, "input")
	require.NoError(t, err)
	assert.Equal(t, RecordStatusCompleted, record.Status)
	assert.Equal(t, "a_out", record.Outputs["a"])
	assert.Equal(t, "b_out", record.Outputs["b"])
}

// ---------------------------------------------------------------------------
// External event primitive
// ---------------------------------------------------------------------------

func TestDAGExecutor_ExecuteWait_DeliveredBySendExternalEvent(t *testing.T) {
	t.Parallel()
	exec := NewDAGExecutor(nil, zap.NewNop())

	done := make(chan any, 1)
	go func() {
		v, err := exec.ExecuteWait(context.Background(), "payment_confirmed", time.Second)
		require.NoError(t, err)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	exec.SendExternalEvent("payment_confirmed", "paid")

	select {
	case v := <-done:
		assert.Equal(t, "paid", v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ExecuteWait to return")
	}
}

func TestDAGExecutor_ExecuteWait_Timeout(t *testing.T) {
	t.Parallel()
	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.ExecuteWait(context.Background(), "never_sent", 10*time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Wait timeout")
}

// ---------------------------------------------------------------------------
// Unknown node type
// ---------------------------------------------------------------------------

func TestDAGExecutor_Execute_UnknownNodeType(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "unk", Type: NodeType("unknown_type")})
	g.AddEdge("start", "unk")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported node type")
}

// ---------------------------------------------------------------------------
// Execution ID and history
// ---------------------------------------------------------------------------

func TestDAGExecutor_GetExecutionID(t *testing.T) {
	t.Parallel()
	g := NewDAGGraph()
	g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
	g.AddNode(&DAGNode{ID: "entry", Type: NodeTypeTask, Step: newDagExecMockStep("step", "result")})
	g.AddEdge("start", "entry")
	g.SetEntry("start")

	exec := NewDAGExecutor(nil, zap.NewNop())
	_, err := exec.Execute(context.Background(), g, "input")
	require.NoError(t, err)

	execID := exec.GetExecutionID()
	assert.NotEmpty(t, execID)
	assert.Contains(t, execID, "exec-")
}

func TestDAGExecutor_GetHistoryStore(t *testing.T) {
	t.Parallel()
	exec := NewDAGExecutor(nil, zap.NewNop())
	store := exec.GetHistoryStore()
	assert.NotNil(t, store)
}
