package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

const DefaultMaxSteps = 6

// Agent runs a reason/act loop: the model either answers or asks for tools,
// whose results are appended to the history for the next step.
type Agent struct {
	model    adapter.ToolCallingModel
	tools    *Registry
	maxSteps int
	log      *zerolog.Logger
}

func New(model adapter.ToolCallingModel, tools *Registry, maxSteps int, logger *zerolog.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "Agent").Logger()
	return &Agent{model: model, tools: tools, maxSteps: maxSteps, log: &l}
}

// Run answers prompt, returning the final text and the full transcript.
func (a *Agent) Run(ctx context.Context, prompt string) (string, []adapter.AgentMessage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil, fmt.Errorf("%w: empty prompt", domain.ErrInvalidArgument)
	}
	history := []adapter.AgentMessage{{Role: "user", Text: prompt}}
	specs := a.tools.Specs()

	for step := 1; step <= a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", history, err
		}
		turn, err := a.model.Step(ctx, history, specs)
		if err != nil {
			return "", history, fmt.Errorf("agent step %d: %w", step, err)
		}
		if len(turn.Calls) == 0 {
			history = append(history, adapter.AgentMessage{Role: "model", Text: turn.Text})
			return turn.Text, history, nil
		}

		history = append(history, adapter.AgentMessage{Role: "model", Text: turn.Text, Calls: turn.Calls})
		results := make([]adapter.ToolResult, 0, len(turn.Calls))
		for _, c := range turn.Calls {
			results = append(results, a.invoke(ctx, step, c))
		}
		history = append(history, adapter.AgentMessage{Role: "tool", Results: results})
	}
	return "", history, fmt.Errorf("%w: %d steps", domain.ErrAgentStepLimit, a.maxSteps)
}

// invoke never fails the loop; errors are reported back to the model.
func (a *Agent) invoke(ctx context.Context, step int, c adapter.ToolCall) adapter.ToolResult {
	out, err := a.tools.Call(ctx, c.Name, c.Args)
	metrics.IncToolCall(c.Name, err == nil)
	if err != nil {
		a.log.Warn().Err(err).Int("step", step).Str("tool", c.Name).Msg("tool call failed")
		out = map[string]any{"error": err.Error()}
	} else {
		a.log.Debug().Int("step", step).Str("tool", c.Name).Msg("tool call")
	}
	return adapter.ToolResult{CallID: c.ID, Name: c.Name, Output: out}
}
