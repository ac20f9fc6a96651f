package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Feature: agent-framework-enhancements, Property 11: Conditional Routing Correctness
// Validates: Requirements 2.2
func TestProperty_ConditionalRoutingCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("condition nodes route to correct branch based on condition result", prop.ForAll(
		func(conditionResult bool, inputValue int) bool {
			ctx := context.Background()

			trueBranchExecuted := false
			falseBranchExecuted := false

			workflow, err := NewDAGBuilder("conditional-test").
				AddNode("start", NodeTypeStart).Done().
				AddNode("condition", NodeTypeCondition).
				WithCondition(func(ctx context.Context, input interface{}) (bool, error) {
					return conditionResult, nil
				}).
				Done().
				AddNode("true_branch", NodeTypeTask).
				WithStep(&testStep{name: "true_branch", callback: func() { trueBranchExecuted = true }}).
				Done().
				AddNode("false_branch", NodeTypeTask).
				WithStep(&testStep{name: "false_branch", callback: func() { falseBranchExecuted = true }}).
				Done().
				AddEdge("start", "condition").
				AddConditionalEdge("condition", "true_branch", "true").
				AddConditionalEdge("condition", "false_branch", "false").
				SetEntry("start").
				Build()

			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			_, err = workflow.Execute(ctx, inputValue)
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			if conditionResult {
				if !trueBranchExecuted {
					t.Logf("True branch should have been executed")
					return false
				}
				if falseBranchExecuted {
					t.Logf("False branch should not have been executed")
					return false
				}
			} else {
				if trueBranchExecuted {
					t.Logf("True branch should not have been executed")
					return false
				}
				if !falseBranchExecuted {
					t.Logf("False branch should have been executed")
					return false
				}
			}

			return true
		},
		gen.Bool(),
		gen.Int(),
	))

	properties.TestingRun(t)
}

// Feature: agent-framework-enhancements, Property 12: Parallel Branch Isolation
// Validates: Requirements 2.3
func TestProperty_ParallelBranchIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every parallel branch observes the workflow input, not a sibling's mutation", prop.ForAll(
		func(branchCount int) bool {
			if branchCount < 2 || branchCount > 6 {
				return true
			}

			ctx := context.Background()
			observed := make([]map[string]any, branchCount)
			branchIDs := make([]string, branchCount)

			g := NewDAGGraph()
			g.AddNode(&DAGNode{ID: "start", Type: NodeTypeStart})
			g.AddNode(&DAGNode{ID: "par", Type: NodeTypeParallel, Branches: branchIDs})
			for i := 0; i < branchCount; i++ {
				id := string(rune('a' + i))
				branchIDs[i] = id
				g.AddNode(&DAGNode{
					ID:   id,
					Type: NodeTypeTask,
					Step: &testStep{name: id},
				})
				g.AddEdge("par", id)
			}
			g.SetEntry("start")
			g.AddEdge("start", "par")

			exec := NewDAGExecutor(nil, nil)
			record, err := exec.Execute(ctx, g, map[string]any{"seed": "original"})
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			for i, id := range branchIDs {
				out, ok := record.Outputs[id].(map[string]any)
				if !ok {
					t.Logf("branch %s produced no map output", id)
					return false
				}
				observed[i] = out
				if out["seed"] != "original" {
					t.Logf("branch %s observed mutated input: %v", id, out["seed"])
					return false
				}
			}

			return true
		},
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}

// Feature: agent-framework-enhancements, Property 16: Dependency Ordering
// Validates: Requirements 2.7
func TestProperty_DependencyOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("nodes execute in dependency order", prop.ForAll(
		func(nodeCount int) bool {
			if nodeCount < 2 || nodeCount > 10 {
				return true
			}

			ctx := context.Background()
			executionOrder := make([]string, 0, nodeCount)

			builder := NewDAGBuilder("dependency-test")
			builder.AddNode("start", NodeTypeStart).Done()

			for i := 0; i < nodeCount; i++ {
				nodeID := string(rune('a' + i))
				builder.AddNode(nodeID, NodeTypeTask).
					WithStep(&testStep{
						name: nodeID,
						callback: func(id string) func() {
							return func() { executionOrder = append(executionOrder, id) }
						}(nodeID),
					}).
					Done()
			}

			builder.AddEdge("start", "a")
			for i := 0; i < nodeCount-1; i++ {
				fromID := string(rune('a' + i))
				toID := string(rune('a' + i + 1))
				builder.AddEdge(fromID, toID)
			}

			builder.SetEntry("start")

			workflow, err := builder.Build()
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			_, err = workflow.Execute(ctx, nil)
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			if len(executionOrder) != nodeCount {
				t.Logf("Expected %d nodes executed, got %d", nodeCount, len(executionOrder))
				return false
			}

			for i := 0; i < nodeCount; i++ {
				expectedID := string(rune('a' + i))
				if executionOrder[i] != expectedID {
					t.Logf("Expected node %s at position %d, got %s", expectedID, i, executionOrder[i])
					return false
				}
			}

			return true
		},
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}

// Feature: agent-framework-enhancements, Property 18: Cycle Detection
// Validates: Requirements 2.10
func TestProperty_CycleDetection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("cycles are detected during build", prop.ForAll(
		func(nodeCount int) bool {
			if nodeCount < 2 || nodeCount > 10 {
				return true
			}

			builder := NewDAGBuilder("cycle-test")
			builder.AddNode("start", NodeTypeStart).Done()

			for i := 0; i < nodeCount; i++ {
				nodeID := string(rune('a' + i))
				builder.AddNode(nodeID, NodeTypeTask).
					WithStep(&testStep{name: nodeID}).
					Done()
			}

			builder.AddEdge("start", "a")
			for i := 0; i < nodeCount-1; i++ {
				fromID := string(rune('a' + i))
				toID := string(rune('a' + i + 1))
				builder.AddEdge(fromID, toID)
			}

			lastID := string(rune('a' + nodeCount - 1))
			builder.AddEdge(lastID, "a")
			builder.SetEntry("start")

			_, err := builder.Build()
			if err == nil {
				t.Logf("Expected cycle detection error, got nil")
				return false
			}

			return true
		},
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}

// testStep is a simple step implementation for property testing
type testStep struct {
	name     string
	result   interface{}
	err      error
	callback func()
}

func (s *testStep) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	if s.callback != nil {
		s.callback()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return input, nil
}

func (s *testStep) Name() string {
	return s.name
}

// Feature: agent-framework-enhancements, Property 17: Error Handling Strategy Application
// Validates: Requirements 2.8
func TestProperty_ErrorHandlingStrategy(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("errors propagate correctly from failed nodes", prop.ForAll(
		func(failAtNode int) bool {
			failAtNode = failAtNode % 3
			if failAtNode < 0 {
				failAtNode = -failAtNode
			}

			ctx := context.Background()
			expectedError := errors.New("test error")

			builder := NewDAGBuilder("error-test")
			builder.AddNode("start", NodeTypeStart).Done()

			for i := 0; i < 3; i++ {
				nodeID := string(rune('a' + i))
				var step *testStep
				if i == failAtNode {
					step = &testStep{name: nodeID, err: expectedError}
				} else {
					step = &testStep{name: nodeID}
				}
				builder.AddNode(nodeID, NodeTypeTask).
					WithStep(step).
					Done()
			}

			builder.AddEdge("start", "a").AddEdge("a", "b").AddEdge("b", "c").SetEntry("start")

			workflow, err := builder.Build()
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			_, err = workflow.Execute(ctx, nil)
			if err == nil {
				t.Logf("Expected error, got nil")
				return false
			}

			return true
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}

// Feature: agent-framework-enhancements, Property 19: Execution Path Recording
// Validates: Requirements 6.1
func TestProperty_ExecutionPathRecording(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("execution history records all executed nodes", prop.ForAll(
		func(nodeCount int) bool {
			if nodeCount < 1 || nodeCount > 5 {
				return true
			}

			ctx := context.Background()

			builder := NewDAGBuilder("history-test")
			builder.AddNode("start", NodeTypeStart).Done()

			for i := 0; i < nodeCount; i++ {
				nodeID := string(rune('a' + i))
				builder.AddNode(nodeID, NodeTypeTask).
					WithStep(&testStep{name: nodeID}).
					Done()
			}

			builder.AddEdge("start", "a")
			for i := 0; i < nodeCount-1; i++ {
				fromID := string(rune('a' + i))
				toID := string(rune('a' + i + 1))
				builder.AddEdge(fromID, toID)
			}

			builder.SetEntry("start")

			workflow, err := builder.Build()
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			executor := NewDAGExecutor(nil, nil)
			_, err = executor.Execute(ctx, workflow.Graph(), nil)
			if err != nil {
				t.Logf("Execute failed: %v", err)
				return false
			}

			history := executor.GetHistory()
			if history == nil {
				t.Logf("History is nil")
				return false
			}

			nodes := history.GetNodes()
			// history also records the start node, so expect nodeCount+1
			if len(nodes) != nodeCount+1 {
				t.Logf("Expected %d nodes in history, got %d", nodeCount+1, len(nodes))
				return false
			}

			for i := 0; i < nodeCount; i++ {
				expectedID := string(rune('a' + i))
				found := false
				for _, node := range nodes {
					if node.NodeID == expectedID {
						found = true
						break
					}
				}
				if !found {
					t.Logf("Node %s not found in history", expectedID)
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// Feature: agent-framework-enhancements, Property 22: Execution History Query Accuracy
// Validates: Requirements 6.4
func TestProperty_ExecutionHistoryQueryAccuracy(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("history store queries return correct results", prop.ForAll(
		func(executionCount int) bool {
			if executionCount < 1 || executionCount > 5 {
				return true
			}

			ctx := context.Background()
			store := NewExecutionHistoryStore()

			workflow, err := NewDAGBuilder("query-test").
				AddNode("start", NodeTypeStart).Done().
				AddNode("a", NodeTypeTask).
				WithStep(&testStep{name: "a"}).
				Done().
				AddEdge("start", "a").
				SetEntry("start").
				Build()

			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}

			completedCount := 0
			for i := 0; i < executionCount; i++ {
				executor := NewDAGExecutor(nil, nil)
				executor.SetHistoryStore(store)
				_, err := executor.Execute(ctx, workflow.Graph(), nil)
				if err == nil {
					completedCount++
				}
			}

			completed := store.ListByStatus(ExecutionStatusCompleted)
			if len(completed) != completedCount {
				t.Logf("Expected %d completed executions, got %d", completedCount, len(completed))
				return false
			}

			return true
		},
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
