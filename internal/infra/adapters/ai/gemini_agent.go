package ai

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/metrics"
)

var _ adapter.ToolCallingModel = (*GeminiToolModel)(nil)

// GeminiToolModel drives function calling for the agent loop.
type GeminiToolModel struct {
	client *genai.Client
	model  string
	system string
}

func NewGeminiToolModel(client *genai.Client, model, systemPrompt string) *GeminiToolModel {
	return &GeminiToolModel{client: client, model: model, system: systemPrompt}
}

func (g *GeminiToolModel) Step(ctx context.Context, history []adapter.AgentMessage, tools []adapter.ToolSpec) (adapter.AgentTurn, error) {
	if len(history) == 0 {
		return adapter.AgentTurn{}, errors.New("gemini: empty agent history")
	}
	cfg := &genai.GenerateContentConfig{}
	if g.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.system, genai.RoleUser)
	}
	if decls := toFunctionDeclarations(tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, toAgentContents(history), cfg)
	metrics.ObserveAICall(providerGemini, g.model, "agent_step", int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return adapter.AgentTurn{}, err
	}
	return fromResponse(resp), nil
}

func toFunctionDeclarations(tools []adapter.ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		params := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range t.Params {
			params.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return out
}

func toAgentContents(history []adapter.AgentMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "model":
			parts := make([]*genai.Part, 0, len(m.Calls)+1)
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, c := range m.Calls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		case "tool":
			parts := make([]*genai.Part, 0, len(m.Results))
			for _, r := range m.Results {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       r.CallID,
					Name:     r.Name,
					Response: r.Output,
				}})
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		default:
			out = append(out, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}
	return out
}

func fromResponse(resp *genai.GenerateContentResponse) adapter.AgentTurn {
	turn := adapter.AgentTurn{Text: responseText(resp)}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return turn
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.FunctionCall == nil {
			continue
		}
		turn.Calls = append(turn.Calls, adapter.ToolCall{
			ID:   p.FunctionCall.ID,
			Name: p.FunctionCall.Name,
			Args: p.FunctionCall.Args,
		})
	}
	return turn
}
