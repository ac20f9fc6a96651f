package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validDSL() *WorkflowDSL {
	return &WorkflowDSL{
		Version: "1.0",
		Name:    "order-workflow",
		Steps: map[string]StepDef{
			"classify": {Type: "llm", Prompt: "classify ${order_id}"},
			"notify":   {Type: "passthrough"},
		},
		Variables: map[string]VariableDef{
			"order_id": {Type: "string", Default: "o-1"},
		},
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "classify_node"},
				{ID: "classify_node", Type: "task", Step: "classify", Next: "end"},
				{ID: "end", Type: "end"},
			},
		},
	}
}

func TestValidator_Validate_ValidDSL(t *testing.T) {
	v := NewValidator()
	errs := v.Validate(validDSL())
	assert.Empty(t, errs)
}

func TestValidator_Validate_MissingTopLevelFields(t *testing.T) {
	v := NewValidator()
	errs := v.Validate(&WorkflowDSL{})

	msgs := errorStrings(errs)
	assert.Contains(t, msgs, "version is required")
	assert.Contains(t, msgs, "name is required")
	assert.Contains(t, msgs, "workflow.entry is required")
	assert.Contains(t, msgs, "workflow.nodes must have at least one node")
}

func TestValidator_Validate_DuplicateNodeID(t *testing.T) {
	dsl := validDSL()
	dsl.Workflow.Nodes = append(dsl.Workflow.Nodes, NodeDef{ID: "start", Type: "end"})

	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "duplicate node ID: start")
}

func TestValidator_Validate_EntryNodeMissing(t *testing.T) {
	dsl := validDSL()
	dsl.Workflow.Entry = "nonexistent"

	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), `entry node "nonexistent" does not exist`)
}

func TestValidator_Validate_StartNodeRequiresNext(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node start: start node requires next")
}

func TestValidator_Validate_TaskRequiresStep(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "t"},
				{ID: "t", Type: "task"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node t: task node requires step or step_def")
}

func TestValidator_Validate_TaskStepNotFound(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Steps:   map[string]StepDef{},
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "t"},
				{ID: "t", Type: "task", Step: "missing"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), `node t: step "missing" not found in steps`)
}

func TestValidator_Validate_ConditionRequiresExpressionAndBranch(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "cond"},
				{ID: "cond", Type: "condition"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	msgs := errorStrings(errs)
	assert.Contains(t, msgs, "node cond: condition node requires condition expression")
	assert.Contains(t, msgs, "node cond: condition node requires on_true or on_false")
}

func TestValidator_Validate_ParallelRequiresTwoBranches(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "par"},
				{ID: "par", Type: "parallel", Branches: []string{"only"}},
				{ID: "only", Type: "end"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node par: parallel node requires at least 2 branches")
}

func TestValidator_Validate_JoinRequiresWaitFor(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "join"},
				{ID: "join", Type: "join"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node join: join node requires wait_for")
}

func TestValidator_Validate_WaitRequiresWaitEvent(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "w"},
				{ID: "w", Type: "wait"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node w: wait node requires wait_event")
}

func TestValidator_Validate_SubWorkflowRequiresSubgraph(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "sg"},
				{ID: "sg", Type: "sub_workflow"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node sg: sub_workflow node requires subgraph definition")
}

func TestValidator_Validate_EndNodeMustNotHaveNext(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "end"},
				{ID: "end", Type: "end", Next: "start"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), "node end: end node must not have next")
}

func TestValidator_Validate_DanglingReferences(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "start", Next: "missing_next"},
				{
					ID: "par", Type: "parallel",
					Branches: []string{"missing_branch"},
				},
				{
					ID: "join", Type: "join",
					WaitFor: []string{"missing_wait"},
				},
				{ID: "cond", Type: "condition", Condition: "x", OnTrue: "missing_true", OnFalse: "missing_false"},
				{ID: "t", Type: "task", Step: "s", ErrorHandler: "missing_handler"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	msgs := errorStrings(errs)
	assert.Contains(t, msgs, `node start: next node "missing_next" does not exist`)
	assert.Contains(t, msgs, `node par: branch node "missing_branch" does not exist`)
	assert.Contains(t, msgs, `node join: wait_for node "missing_wait" does not exist`)
	assert.Contains(t, msgs, `node cond: on_true node "missing_true" does not exist`)
	assert.Contains(t, msgs, `node cond: on_false node "missing_false" does not exist`)
	assert.Contains(t, msgs, `node t: error_handler node "missing_handler" does not exist`)
}

func TestValidator_Validate_InvalidNodeType(t *testing.T) {
	dsl := &WorkflowDSL{
		Version: "1.0",
		Name:    "wf",
		Workflow: WorkflowNodesDef{
			Entry: "start",
			Nodes: []NodeDef{
				{ID: "start", Type: "bogus"},
			},
		},
	}
	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), `node start: invalid type "bogus"`)
}

func TestValidator_Validate_AgentToolReferenceIntegrity(t *testing.T) {
	dsl := validDSL()
	dsl.Agents = map[string]AgentDef{
		"writer": {Model: "gpt-4", Tools: []string{"missing_tool"}},
	}
	dsl.Steps["classify"] = StepDef{Type: "llm", Agent: "missing_agent", Tool: "missing_tool2"}

	v := NewValidator()
	errs := v.Validate(dsl)
	msgs := errorStrings(errs)
	assert.Contains(t, msgs, `agent writer: tool "missing_tool" not found`)
	assert.Contains(t, msgs, `step classify: agent "missing_agent" not found`)
	assert.Contains(t, msgs, `step classify: tool "missing_tool2" not found`)
}

func TestValidator_Validate_VariableReferenceIntegrity(t *testing.T) {
	dsl := validDSL()
	dsl.Steps["classify"] = StepDef{Type: "llm", Prompt: "use ${unknown_var}"}

	v := NewValidator()
	errs := v.Validate(dsl)
	assert.Contains(t, errorStrings(errs), `step classify: variable "unknown_var" referenced in prompt not defined`)
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
