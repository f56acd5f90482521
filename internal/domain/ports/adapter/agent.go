package adapter

import "context"

// ToolSpec declares a callable tool to the model. All parameters are strings.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is fed back to the model after running a ToolCall.
type ToolResult struct {
	CallID string
	Name   string
	Output map[string]any
}

// AgentMessage is one turn of an agent conversation. Exactly one of
// Text, Calls or Results is expected to be set.
type AgentMessage struct {
	Role    string // "user", "model", "tool"
	Text    string
	Calls   []ToolCall
	Results []ToolResult
}

// AgentTurn is the model's reply: final text, tool calls, or both.
type AgentTurn struct {
	Text  string
	Calls []ToolCall
}

// ToolCallingModel runs one reasoning step over the history.
type ToolCallingModel interface {
	Step(ctx context.Context, history []AgentMessage, tools []ToolSpec) (AgentTurn, error)
}
