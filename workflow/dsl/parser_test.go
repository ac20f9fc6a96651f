package dsl

import (
	"context"
	"testing"

	"github.com/mofa-run/mofa/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearYAML = `
version: "1.0"
name: linear-workflow
steps:
  greet:
    type: passthrough
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: greet_node
    - id: greet_node
      type: task
      step: greet
      next: end
    - id: end
      type: end
`

func TestParser_Parse_LinearWorkflow(t *testing.T) {
	p := NewParser()
	wf, err := p.Parse([]byte(linearYAML))
	require.NoError(t, err)
	assert.Equal(t, "linear-workflow", wf.Name())

	record, err := wf.Execute(context.Background(), "payload")
	require.NoError(t, err)
	assert.Equal(t, workflow.RecordStatusCompleted, record.Status)
	assert.Equal(t, "payload", record.Outputs["greet_node"])
}

const conditionalYAML = `
version: "1.0"
name: conditional-workflow
steps:
  always_true:
    type: passthrough
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: cond
    - id: cond
      type: condition
      condition: "ready"
      on_true: yes_node
      on_false: no_node
    - id: yes_node
      type: task
      step: always_true
      next: end
    - id: no_node
      type: task
      step: always_true
      next: end
    - id: end
      type: end
`

func TestParser_Parse_ConditionalWorkflow(t *testing.T) {
	p := NewParser()
	wf, err := p.Parse([]byte(conditionalYAML))
	require.NoError(t, err)

	record, err := wf.Execute(context.Background(), nil)
	require.NoError(t, err)
	_, tookYes := record.Outputs["yes_node"]
	_, tookNo := record.Outputs["no_node"]
	assert.True(t, tookYes)
	assert.False(t, tookNo)
}

func TestParser_Parse_InvalidYAML(t *testing.T) {
	p := NewParser()
	_, err := p.Parse([]byte("not: [valid yaml"))
	assert.Error(t, err)
}

func TestParser_Parse_ValidationFailure(t *testing.T) {
	p := NewParser()
	_, err := p.Parse([]byte(`
version: "1.0"
name: broken
workflow:
  entry: start
  nodes:
    - id: start
      type: start
`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validate DSL")
}

func TestParser_Parse_StepNotFound(t *testing.T) {
	p := NewParser()
	_, err := p.Parse([]byte(`
version: "1.0"
name: missing-step
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: t
    - id: t
      type: task
      step: nonexistent
`))
	assert.Error(t, err)
}

func TestParser_RegisterStep_CustomFactory(t *testing.T) {
	p := NewParser()
	called := false
	p.RegisterStep("custom", func(config map[string]interface{}) (workflow.Step, error) {
		called = true
		return &workflow.PassthroughStep{}, nil
	})

	_, err := p.Parse([]byte(`
version: "1.0"
name: custom-step
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: t
    - id: t
      type: task
      step_def:
        type: custom
      next: end
    - id: end
      type: end
`))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestParser_RegisterCondition_NamedCondition(t *testing.T) {
	p := NewParser()
	p.RegisterCondition("is_ready", func(ctx context.Context, input interface{}) (bool, error) {
		return true, nil
	})

	wf, err := p.Parse([]byte(`
version: "1.0"
name: named-condition
steps:
  noop:
    type: passthrough
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: cond
    - id: cond
      type: condition
      condition: is_ready
      on_true: yes_node
      on_false: no_node
    - id: yes_node
      type: task
      step: noop
    - id: no_node
      type: task
      step: noop
`))
	require.NoError(t, err)

	record, err := wf.Execute(context.Background(), nil)
	require.NoError(t, err)
	_, tookYes := record.Outputs["yes_node"]
	assert.True(t, tookYes)
}

const parallelJoinYAML = `
version: "1.0"
name: fan-out-fan-in
steps:
  noop:
    type: passthrough
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: par
    - id: par
      type: parallel
      branches: [a, b]
    - id: a
      type: task
      step: noop
      next: join
    - id: b
      type: task
      step: noop
      next: join
    - id: join
      type: join
      wait_for: [a, b]
      next: end
    - id: end
      type: end
`

func TestParser_Parse_ParallelJoinWorkflow(t *testing.T) {
	p := NewParser()
	wf, err := p.Parse([]byte(parallelJoinYAML))
	require.NoError(t, err)

	record, err := wf.Execute(context.Background(), "x")
	require.NoError(t, err)
	joinOut, ok := record.Outputs["join"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", joinOut["a"])
	assert.Equal(t, "x", joinOut["b"])
}

func TestParser_Parse_SubWorkflowNode(t *testing.T) {
	p := NewParser()
	wf, err := p.Parse([]byte(`
version: "1.0"
name: outer
steps:
  noop:
    type: passthrough
workflow:
  entry: start
  nodes:
    - id: start
      type: start
      next: sg
    - id: sg
      type: sub_workflow
      subgraph:
        entry: sub_start
        nodes:
          - id: sub_start
            type: start
            next: sub_task
          - id: sub_task
            type: task
            step: noop
            next: sub_end
          - id: sub_end
            type: end
`))
	require.NoError(t, err)

	record, err := wf.Execute(context.Background(), "payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", record.Outputs["sg"])
}
