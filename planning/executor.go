package planning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventType identifies a planning-executor stream item (spec §4.4).
type EventType string

const (
	EventPlanCreated       EventType = "plan_created"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventStepRetry         EventType = "step_retry"
	EventReplanTriggered   EventType = "replan_triggered"
	EventSynthesisStarted  EventType = "synthesis_started"
	EventPlanningComplete  EventType = "planning_complete"
)

// Event is a single item on the planning executor's event stream. Only the
// fields relevant to Type are populated.
type Event struct {
	Type      EventType
	StepID    string
	Attempt   int
	Feedback  string
	WillRetry bool
	Iteration int
	Reason    string
	Answer    string
}

// EventEmitter receives Event values as they are produced.
type EventEmitter func(Event)

// Result is the outcome delivered on RunWithChannel's result channel.
type Result struct {
	Answer string
	Err    error
}

// Config tunes the executor's operational limits.
type Config struct {
	// MaxParallelSteps bounds the batch size of ready steps considered per
	// inner-loop iteration. Batch execution itself is sequential (spec
	// §4.4) — this only caps how many ready steps are grouped together.
	MaxParallelSteps int
	// MaxReplans is the maximum number of times Replan may be invoked
	// before the run fails with "Exceeded max replans".
	MaxReplans int
	// StepTimeout bounds a single StepExecutor.ExecuteStep call. Zero
	// means no per-step timeout.
	StepTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallelSteps: 4,
		MaxReplans:       3,
		StepTimeout:      0,
	}
}

// Executor runs the Decompose -> Execute -> Reflect -> Replan -> Synthesize
// loop described in spec §4.4.
type Executor struct {
	planner      Planner
	stepExecutor StepExecutor
	config       Config
	logger       *zap.Logger
}

// NewExecutor creates a planning Executor.
func NewExecutor(planner Planner, stepExecutor StepExecutor, config Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{planner: planner, stepExecutor: stepExecutor, config: config, logger: logger}
}

// Run executes the planning loop to completion, collecting every emitted
// Event, and returns the synthesized answer.
func (e *Executor) Run(ctx context.Context, goal string) (string, []Event, error) {
	var events []Event
	answer, err := e.run(ctx, goal, func(ev Event) {
		events = append(events, ev)
	})
	return answer, events, err
}

// RunWithChannel executes the planning loop in a goroutine, streaming
// events on the returned channel and delivering the final outcome on the
// result channel. Both channels are closed once the run completes;
// consumers may drop the event stream without affecting execution.
func (e *Executor) RunWithChannel(ctx context.Context, goal string) (<-chan Event, <-chan Result) {
	events := make(chan Event, 16)
	results := make(chan Result, 1)

	go func() {
		defer close(events)
		defer close(results)

		answer, err := e.run(ctx, goal, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		results <- Result{Answer: answer, Err: err}
	}()

	return events, results
}

// run is the shared implementation behind Run and RunWithChannel.
func (e *Executor) run(ctx context.Context, goal string, emit EventEmitter) (string, error) {
	plan, err := e.planner.Decompose(ctx, goal)
	if err != nil {
		return "", fmt.Errorf("decompose: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return "", fmt.Errorf("plan validation: %w", err)
	}
	emit(Event{Type: EventPlanCreated})

	if err := e.executePlan(ctx, &plan, emit); err != nil {
		return "", err
	}

	return e.synthesize(ctx, plan, emit)
}

// executePlan runs the inner execute/reflect/replan loop until every step
// reaches a terminal completed state.
func (e *Executor) executePlan(ctx context.Context, planPtr **Plan, emit EventEmitter) error {
	plan := *planPtr
	replanCount := 0
	maxParallel := e.config.MaxParallelSteps
	if maxParallel <= 0 {
		maxParallel = 1
	}

	for {
		ready := plan.readySteps()
		if len(ready) == 0 {
			if !plan.hasPending() {
				*planPtr = plan
				return nil
			}
			return fmt.Errorf("Deadlock: pending steps with unsatisfiable dependencies")
		}

		batchSize := len(ready)
		if batchSize > maxParallel {
			batchSize = maxParallel
		}
		batch := ready[:batchSize]

		var failedStep *PlanStep
		var failureReason string

		for _, id := range batch {
			step := plan.StepByID(id)
			needsReplan, reason, err := e.executeStep(ctx, plan, step, emit)
			if err != nil {
				return err
			}
			if needsReplan {
				failedStep = step
				failureReason = reason
				break
			}
		}

		if failedStep == nil {
			continue
		}

		if replanCount >= e.config.MaxReplans {
			return fmt.Errorf("Exceeded max replans")
		}
		replanCount++
		emit(Event{Type: EventReplanTriggered, Iteration: replanCount, Reason: failureReason})

		carried := make(map[string]PlanStep)
		for _, s := range plan.Steps {
			if s.Status == StepCompleted {
				carried[s.ID] = s
			}
		}

		newPlan, err := e.planner.Replan(ctx, plan, failedStep, failureReason)
		if err != nil {
			return fmt.Errorf("replan: %w", err)
		}
		if err := newPlan.Validate(); err != nil {
			return fmt.Errorf("replan validation: %w", err)
		}

		for i := range newPlan.Steps {
			if carriedStep, ok := carried[newPlan.Steps[i].ID]; ok {
				newPlan.Steps[i].Status = StepCompleted
				newPlan.Steps[i].Result = carriedStep.Result
			}
		}

		plan = newPlan
	}
}

// executeStep runs a single step's execute/reflect retry loop until it
// reaches StepCompleted (returns needsReplan=false) or exhausts its
// retries/gets a Replan verdict (returns needsReplan=true with a reason).
func (e *Executor) executeStep(ctx context.Context, plan *Plan, step *PlanStep, emit EventEmitter) (needsReplan bool, reason string, err error) {
	deps := make(map[string]any, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if ds := plan.StepByID(dep); ds != nil {
			deps[dep] = ds.Result
		}
	}

	step.Status = StepRunning
	emit(Event{Type: EventStepStarted, StepID: step.ID})

	feedback := ""
	for {
		step.Attempts++

		stepCtx := ctx
		var cancel context.CancelFunc
		if e.config.StepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		}
		output, execErr := e.stepExecutor.ExecuteStep(stepCtx, step, deps, feedback)
		if cancel != nil {
			cancel()
		}

		if execErr != nil {
			if step.Attempts < step.MaxRetries {
				feedback = execErr.Error()
				emit(Event{Type: EventStepRetry, StepID: step.ID, Attempt: step.Attempts, Feedback: feedback})
				continue
			}
			step.Status = StepFailed
			step.FailureMsg = execErr.Error()
			emit(Event{Type: EventStepFailed, StepID: step.ID, WillRetry: false})
			return true, step.FailureMsg, nil
		}

		verdict, reflectErr := e.planner.Reflect(ctx, step, output)
		if reflectErr != nil {
			return false, "", fmt.Errorf("reflect step %s: %w", step.ID, reflectErr)
		}

		switch verdict.Kind {
		case Accept:
			step.Status = StepCompleted
			step.Result = output
			emit(Event{Type: EventStepCompleted, StepID: step.ID})
			return false, "", nil

		case Retry:
			if step.Attempts < step.MaxRetries {
				feedback = verdict.Feedback
				emit(Event{Type: EventStepRetry, StepID: step.ID, Attempt: step.Attempts, Feedback: feedback})
				continue
			}
			step.Status = StepFailed
			step.FailureMsg = "retry exhausted: " + verdict.Feedback
			emit(Event{Type: EventStepFailed, StepID: step.ID, WillRetry: false})
			return true, step.FailureMsg, nil

		case Replan:
			step.Status = StepFailed
			step.FailureMsg = verdict.Reason
			emit(Event{Type: EventStepFailed, StepID: step.ID, WillRetry: false})
			return true, verdict.Reason, nil

		default:
			return false, "", fmt.Errorf("reflect step %s: unknown verdict kind %d", step.ID, verdict.Kind)
		}
	}
}

// synthesize collects completed step outputs and asks the planner for a
// final answer.
func (e *Executor) synthesize(ctx context.Context, plan *Plan, emit EventEmitter) (string, error) {
	emit(Event{Type: EventSynthesisStarted})

	outputs := make([]PlanStepOutput, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.Status == StepCompleted {
			outputs = append(outputs, PlanStepOutput{StepID: s.ID, Output: s.Result})
		}
	}

	answer, err := e.planner.Synthesize(ctx, plan.Goal, outputs)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}

	emit(Event{Type: EventPlanningComplete, Answer: answer})
	return answer, nil
}
