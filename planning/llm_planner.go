package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mofa-run/mofa/llm"
	"go.uber.org/zap"
)

// LLMPlannerConfig configures the default LLM-backed Planner.
type LLMPlannerConfig struct {
	Model             string
	MaxPlanSteps      int
	DecomposeTemp     float32
	ReflectTemp       float32
	ReplanTemp        float32
	SynthesizeTemp    float32
}

// DefaultLLMPlannerConfig returns sensible defaults.
func DefaultLLMPlannerConfig() LLMPlannerConfig {
	return LLMPlannerConfig{
		Model:          "gpt-4o",
		MaxPlanSteps:   15,
		DecomposeTemp:  0.3,
		ReflectTemp:    0.2,
		ReplanTemp:     0.4,
		SynthesizeTemp: 0.3,
	}
}

// LLMPlanner is the default Planner implementation: it prompts an
// llm.Provider for JSON-shaped plans, reflections, and replans, following
// the JSON-plan prompting idiom used by the reasoning package's
// Plan-and-Execute pattern.
type LLMPlanner struct {
	provider llm.Provider
	config   LLMPlannerConfig
	logger   *zap.Logger
}

// NewLLMPlanner creates an LLMPlanner.
func NewLLMPlanner(provider llm.Provider, config LLMPlannerConfig, logger *zap.Logger) *LLMPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMPlanner{provider: provider, config: config, logger: logger}
}

var _ Planner = (*LLMPlanner)(nil)

type planStepJSON struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
	ToolsNeeded []string `json:"tools_needed,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
}

type planJSON struct {
	Goal  string         `json:"goal"`
	Steps []planStepJSON `json:"steps"`
}

func (p *LLMPlanner) Decompose(ctx context.Context, goal string) (*Plan, error) {
	prompt := fmt.Sprintf(`You are a planning agent. Decompose the goal below into a dependency-ordered
list of steps.

Goal: %s

Output as JSON:
{
  "goal": "restate the goal",
  "steps": [
    {"id": "step_1", "description": "what to do", "depends_on": [], "tools_needed": []}
  ]
}

Keep the plan focused and achievable (max %d steps). Use "depends_on" to
reference earlier step ids whose output this step needs.`, goal, p.config.MaxPlanSteps)

	content, err := p.complete(ctx, prompt, p.config.DecomposeTemp)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	var parsed planJSON
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decompose: parse plan: %w", err)
	}

	plan := &Plan{Goal: parsed.Goal}
	if plan.Goal == "" {
		plan.Goal = goal
	}
	for _, s := range parsed.Steps {
		maxRetries := s.MaxRetries
		if maxRetries == 0 {
			maxRetries = 2
		}
		plan.Steps = append(plan.Steps, PlanStep{
			ID:          s.ID,
			Description: s.Description,
			DependsOn:   s.DependsOn,
			ToolsNeeded: s.ToolsNeeded,
			MaxRetries:  maxRetries,
			Status:      StepPending,
		})
	}
	return plan, nil
}

type reflectionJSON struct {
	Verdict  string `json:"verdict"` // accept, retry, replan
	Feedback string `json:"feedback,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (p *LLMPlanner) Reflect(ctx context.Context, step *PlanStep, output any) (ReflectionVerdict, error) {
	prompt := fmt.Sprintf(`Judge whether this step's output satisfies its description.

Step: %s
Description: %s
Output: %v

Output as JSON:
{"verdict": "accept|retry|replan", "feedback": "only if retry", "reason": "only if replan"}`,
		step.ID, step.Description, output)

	content, err := p.complete(ctx, prompt, p.config.ReflectTemp)
	if err != nil {
		return ReflectionVerdict{}, fmt.Errorf("reflect: %w", err)
	}

	var parsed reflectionJSON
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
		p.logger.Warn("failed to parse reflection, defaulting to accept", zap.Error(err))
		return ReflectionVerdict{Kind: Accept}, nil
	}

	switch strings.ToLower(parsed.Verdict) {
	case "retry":
		return ReflectionVerdict{Kind: Retry, Feedback: parsed.Feedback}, nil
	case "replan":
		return ReflectionVerdict{Kind: Replan, Reason: parsed.Reason}, nil
	default:
		return ReflectionVerdict{Kind: Accept}, nil
	}
}

func (p *LLMPlanner) Replan(ctx context.Context, oldPlan *Plan, failedStep *PlanStep, stepErr string) (*Plan, error) {
	var completed []string
	for _, s := range oldPlan.Steps {
		if s.Status == StepCompleted {
			completed = append(completed, fmt.Sprintf("- %s: %s (result: %v)", s.ID, s.Description, s.Result))
		}
	}

	prompt := fmt.Sprintf(`The current plan hit a failure. Create a new plan to continue.

Original goal: %s

Completed steps:
%s

Failed step: %s - %s
Error: %s

Create a new plan to continue from here, re-using completed step ids where
their work still applies. Output as JSON:
{"goal": "updated goal", "steps": [{"id": "...", "description": "...", "depends_on": [], "tools_needed": []}]}`,
		oldPlan.Goal, strings.Join(completed, "\n"), failedStep.ID, failedStep.Description, stepErr)

	content, err := p.complete(ctx, prompt, p.config.ReplanTemp)
	if err != nil {
		return nil, fmt.Errorf("replan: %w", err)
	}

	var parsed planJSON
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
		return nil, fmt.Errorf("replan: parse plan: %w", err)
	}

	newPlan := &Plan{Goal: parsed.Goal}
	if newPlan.Goal == "" {
		newPlan.Goal = oldPlan.Goal
	}
	for _, s := range parsed.Steps {
		maxRetries := s.MaxRetries
		if maxRetries == 0 {
			maxRetries = 2
		}
		newPlan.Steps = append(newPlan.Steps, PlanStep{
			ID:          s.ID,
			Description: s.Description,
			DependsOn:   s.DependsOn,
			ToolsNeeded: s.ToolsNeeded,
			MaxRetries:  maxRetries,
			Status:      StepPending,
		})
	}
	return newPlan, nil
}

func (p *LLMPlanner) Synthesize(ctx context.Context, goal string, outputs []PlanStepOutput) (string, error) {
	var results []string
	for _, o := range outputs {
		results = append(results, fmt.Sprintf("- %s: %v", o.StepID, o.Output))
	}

	prompt := fmt.Sprintf(`Goal: %s

Step results:
%s

Based on these results, provide a clear and complete final answer.`, goal, strings.Join(results, "\n"))

	content, err := p.complete(ctx, prompt, p.config.SynthesizeTemp)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return content, nil
}

func (p *LLMPlanner) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := p.provider.Completion(ctx, &llm.ChatRequest{
		Model: p.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
