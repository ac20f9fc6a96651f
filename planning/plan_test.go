package planning

import "testing"

func TestPlan_Validate_DuplicateID(t *testing.T) {
	p := &Plan{Steps: []PlanStep{{ID: "a"}, {ID: "a"}}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for duplicate step id")
	}
}

func TestPlan_Validate_MissingDependency(t *testing.T) {
	p := &Plan{Steps: []PlanStep{{ID: "a", DependsOn: []string{"ghost"}}}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for nonexistent dependency")
	}
}

func TestPlan_Validate_Cycle(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}}
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for dependency cycle")
	}
}

func TestPlan_Validate_ValidPlan(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlan_ReadySteps_RespectsDependencies(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "a", Status: StepCompleted},
		{ID: "b", DependsOn: []string{"a"}, Status: StepPending},
		{ID: "c", DependsOn: []string{"b"}, Status: StepPending},
	}}
	ready := p.readySteps()
	if len(ready) != 1 || ready[0] != "b" {
		t.Fatalf("expected only b ready, got %v", ready)
	}
}

func TestPlan_HasPending(t *testing.T) {
	p := &Plan{Steps: []PlanStep{{ID: "a", Status: StepCompleted}}}
	if p.hasPending() {
		t.Fatal("expected no pending steps")
	}
	p.Steps = append(p.Steps, PlanStep{ID: "b", Status: StepPending})
	if !p.hasPending() {
		t.Fatal("expected pending step")
	}
}
