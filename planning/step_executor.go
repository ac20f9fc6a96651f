package planning

import "context"

// Planner produces and revises Plans and judges step outcomes. An LLM or any
// other oracle may implement it; see LLMPlanner for the default LLM-backed
// implementation grounded on the teacher's Plan-and-Execute reasoner.
type Planner interface {
	// Decompose turns a goal into an initial Plan.
	Decompose(ctx context.Context, goal string) (*Plan, error)

	// Reflect judges the outcome of a completed step execution.
	Reflect(ctx context.Context, step *PlanStep, output any) (ReflectionVerdict, error)

	// Replan produces a new Plan to continue after a step failure,
	// given the prior plan, the step that failed, and its error.
	Replan(ctx context.Context, oldPlan *Plan, failedStep *PlanStep, stepErr string) (*Plan, error)

	// Synthesize combines the completed steps' outputs into a final answer.
	Synthesize(ctx context.Context, goal string, outputs []PlanStepOutput) (string, error)
}

// StepExecutor carries out a single PlanStep given its dependency outputs.
// retryFeedback is non-empty when this call follows a Retry verdict.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step *PlanStep, deps map[string]any, retryFeedback string) (any, error)
}
