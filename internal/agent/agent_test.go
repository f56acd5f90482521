package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsvision/internal/domain"
	"opsvision/internal/domain/ports/adapter"
)

// scriptedModel returns the queued turns in order and records each history it saw.
type scriptedModel struct {
	turns []adapter.AgentTurn
	err   error
	seen  [][]adapter.AgentMessage
}

func (m *scriptedModel) Step(_ context.Context, history []adapter.AgentMessage, _ []adapter.ToolSpec) (adapter.AgentTurn, error) {
	m.seen = append(m.seen, append([]adapter.AgentMessage(nil), history...))
	if m.err != nil {
		return adapter.AgentTurn{}, m.err
	}
	if len(m.turns) == 0 {
		return adapter.AgentTurn{Text: "done"}, nil
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	return t, nil
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, DefaultFleet()))
	return r
}

func TestRun_DirectAnswer(t *testing.T) {
	m := &scriptedModel{turns: []adapter.AgentTurn{{Text: "Linux hums softly."}}}
	a := New(m, newRegistry(t), 3, nil)

	out, hist, err := a.Run(context.Background(), "Write a haiku about Linux.")
	require.NoError(t, err)
	assert.Equal(t, "Linux hums softly.", out)
	assert.Len(t, m.seen, 1)
	assert.Len(t, hist, 2)
}

func TestRun_ToolRoundTrip(t *testing.T) {
	m := &scriptedModel{turns: []adapter.AgentTurn{
		{Calls: []adapter.ToolCall{{ID: "1", Name: "check_server_status", Args: map[string]any{"hostname": "db-01"}}}},
		{Text: "db-01 is CRITICAL at 99% load."},
	}}
	a := New(m, newRegistry(t), 3, nil)

	out, hist, err := a.Run(context.Background(), "Is db-01 healthy?")
	require.NoError(t, err)
	assert.Equal(t, "db-01 is CRITICAL at 99% load.", out)
	require.Len(t, m.seen, 2)

	// second step sees user, model call, tool result
	second := m.seen[1]
	require.Len(t, second, 3)
	assert.Equal(t, "tool", second[2].Role)
	res := second[2].Results[0]
	assert.Equal(t, "1", res.CallID)
	assert.Equal(t, "CRITICAL", res.Output["status"])
	assert.Equal(t, 99, res.Output["load"])
	assert.Len(t, hist, 4)
}

func TestRun_UnknownToolIsFedBack(t *testing.T) {
	m := &scriptedModel{turns: []adapter.AgentTurn{
		{Calls: []adapter.ToolCall{{ID: "x", Name: "reboot_everything"}}},
		{Text: "I cannot do that."},
	}}
	a := New(m, newRegistry(t), 3, nil)

	out, _, err := a.Run(context.Background(), "reboot")
	require.NoError(t, err)
	assert.Equal(t, "I cannot do that.", out)
	res := m.seen[1][2].Results[0]
	assert.Contains(t, res.Output["error"], "unknown tool")
}

func TestRun_StepLimit(t *testing.T) {
	call := adapter.AgentTurn{Calls: []adapter.ToolCall{{Name: "system_health"}}}
	m := &scriptedModel{turns: []adapter.AgentTurn{call, call, call, call}}
	a := New(m, newRegistry(t), 2, nil)

	_, _, err := a.Run(context.Background(), "loop forever")
	require.ErrorIs(t, err, domain.ErrAgentStepLimit)
	assert.Len(t, m.seen, 2)
}

func TestRun_ModelErrorAndEmptyPrompt(t *testing.T) {
	boom := errors.New("boom")
	a := New(&scriptedModel{err: boom}, newRegistry(t), 2, nil)
	_, _, err := a.Run(context.Background(), "hi")
	require.ErrorIs(t, err, boom)

	_, _, err = a.Run(context.Background(), "  ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRun_CanceledContext(t *testing.T) {
	m := &scriptedModel{}
	a := New(m, newRegistry(t), 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := a.Run(ctx, "hi")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.seen)
}

func TestRegistry(t *testing.T) {
	r := newRegistry(t)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "check_server_status", specs[0].Name)
	assert.Equal(t, "system_health", specs[1].Name)

	err := r.Register(adapter.ToolSpec{Name: "system_health"}, ExecutorFunc(func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }))
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
	assert.ErrorIs(t, r.Register(adapter.ToolSpec{Name: " "}, nil), ErrToolInvalid)

	_, err = r.Call(context.Background(), "check_server_status", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	out, err := r.Call(context.Background(), "check_server_status", map[string]any{"hostname": "nope"})
	require.NoError(t, err)
	assert.Equal(t, "Server not found.", out["status"])

	out, err = r.Call(context.Background(), "system_health", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache-01: offline", "db-01: high load", "web-01: healthy"}, out["servers"])
}
