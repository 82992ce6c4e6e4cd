package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/internal/testutil"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/session"
	"github.com/hupe1980/edumesh/tool"
)

type testAgent struct {
	name        string
	llm         model.Model
	instruction string
	tools       map[string]tool.Tool
	streaming   bool
	outputKey   string
	maxHistory  int
}

func (a *testAgent) GetName() string     { return a.name }
func (a *testAgent) GetLLM() model.Model { return a.llm }
func (a *testAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instruction, nil
}
func (a *testAgent) GetTools() map[string]tool.Tool { return a.tools }
func (a *testAgent) IsStreamingEnabled() bool       { return a.streaming }
func (a *testAgent) GetOutputKey() string           { return a.outputKey }
func (a *testAgent) MaxHistoryMessages() int        { return a.maxHistory }

type failingModel struct{}

func (failingModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- errors.New("quota exhausted")
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (failingModel) Info() model.Info { return model.Info{Name: "failing", Provider: "mock"} }

// runFlow executes fl while a goroutine plays the runner: it persists every
// non-partial event and signals resume.
func runFlow(t *testing.T, fl Flow, store core.SessionStore, maxCalls int) ([]core.Event, error) {
	t.Helper()
	ctx := t.Context()

	sess, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)

	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)
	runCtx := core.NewRunContext(
		ctx, "sess-1", "run-1", core.AgentInfo{Name: "tutor", Type: "model"},
		core.NewTextContent(core.RoleUser, "What is a fraction?"),
		maxCalls, emit, resume, sess, store, nil, nil,
	)

	var events []core.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range emit {
			events = append(events, ev)
			if ev.IsPartial() {
				continue
			}
			if len(ev.Actions.StateDelta) > 0 {
				_ = store.ApplyDelta(ctx, "sess-1", ev.Actions.StateDelta)
			}
			_ = store.AppendEvent(ctx, "sess-1", ev)
			resume <- struct{}{}
		}
	}()

	err = fl.Execute(runCtx)
	close(emit)
	<-done

	return events, err
}

func newStore(t *testing.T, state map[string]any) core.SessionStore {
	t.Helper()
	store := session.NewInMemoryStore()
	b := testutil.NewSessionBuilder("sess-1").User("student-1").
		Events(core.NewUserMessageEvent("run-1", "What is a fraction?"))
	for k, v := range state {
		b.State(k, v)
	}
	b.Store(t, store)
	return store
}

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo the input", map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "number"}},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return map[string]any{"echo": args["x"]}, nil
	})
}

func TestSingleAgentFlow_TextAnswer(t *testing.T) {
	llm := model.NewMockModel("mock").ScriptText("A fraction is a part of a whole.")
	agent := &testAgent{name: "tutor", llm: llm, instruction: "Help {{.name}}.", outputKey: "answer", maxHistory: 10}
	store := newStore(t, map[string]any{"name": "Asha"})

	events, err := runFlow(t, NewSingleAgentFlow(agent), store, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	final := events[0]
	assert.True(t, final.IsFinalResponse())
	require.NotNil(t, final.TurnComplete)
	assert.True(t, *final.TurnComplete)
	assert.Equal(t, "run-1", final.InvocationID)
	assert.Equal(t, "A fraction is a part of a whole.", final.Actions.StateDelta["answer"])

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Help Asha.", reqs[0].Instructions)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, core.RoleUser, reqs[0].Contents[0].Role)
	assert.False(t, reqs[0].Stream)
}

func TestSingleAgentFlow_ToolLoop(t *testing.T) {
	llm := model.NewMockModel("mock").
		ScriptCall("call-1", "echo", `{"x": 7}`).
		ScriptText("The tool said 7.")
	agent := &testAgent{name: "tutor", llm: llm, tools: map[string]tool.Tool{"echo": echoTool()}, maxHistory: 10}
	store := newStore(t, nil)

	events, err := runFlow(t, NewSingleAgentFlow(agent), store, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Len(t, events[0].GetFunctionCalls(), 1)
	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "call-1", responses[0].ID)
	assert.Empty(t, responses[0].Error)
	assert.Equal(t, []string{"The tool said 7."}, events[2].Texts())

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)

	// The second turn sees the persisted call and response.
	last := reqs[1].Contents
	require.Len(t, last, 3)
	assert.Equal(t, core.RoleTool, last[2].Role)
}

func TestSingleAgentFlow_UnknownTool(t *testing.T) {
	llm := model.NewMockModel("mock").
		ScriptCall("call-1", "missing", `{}`).
		ScriptText("Sorry.")
	agent := &testAgent{name: "tutor", llm: llm, maxHistory: 10}

	events, err := runFlow(t, NewSingleAgentFlow(agent), newStore(t, nil), 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Contains(t, events[1].GetFunctionResponses()[0].Error, "tool missing not found")
}

func TestSingleAgentFlow_Streaming(t *testing.T) {
	llm := model.NewMockModel("mock").ScriptText("abc")
	agent := &testAgent{name: "tutor", llm: llm, streaming: true, maxHistory: 10}

	events, err := runFlow(t, NewSingleAgentFlow(agent), newStore(t, nil), 0)
	require.NoError(t, err)
	require.Len(t, events, 4)

	for _, ev := range events[:3] {
		assert.True(t, ev.IsPartial())
	}
	assert.False(t, events[3].IsPartial())
	assert.True(t, llm.Requests()[0].Stream)
}

func TestSingleAgentFlow_ModelCallLimit(t *testing.T) {
	llm := model.NewMockModel("mock").
		ScriptCall("call-1", "echo", `{"x": 1}`).
		ScriptText("never reached")
	agent := &testAgent{name: "tutor", llm: llm, tools: map[string]tool.Tool{"echo": echoTool()}, maxHistory: 10}

	_, err := runFlow(t, NewSingleAgentFlow(agent), newStore(t, nil), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Len(t, llm.Requests(), 1)
}

func TestSingleAgentFlow_ModelError(t *testing.T) {
	agent := &testAgent{name: "tutor", llm: failingModel{}, maxHistory: 10}

	_, err := runFlow(t, NewSingleAgentFlow(agent), newStore(t, nil), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model failing: quota exhausted")
}

func TestSingleAgentFlow_SkipSummarization(t *testing.T) {
	stop := tool.NewFunctionTool("stop", "Answer directly", map[string]any{"type": "object"},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			tc.SkipSummarization()
			return "done", nil
		})
	llm := model.NewMockModel("mock").ScriptCall("call-1", "stop", `{}`)
	agent := &testAgent{name: "tutor", llm: llm, tools: map[string]tool.Tool{"stop": stop}, maxHistory: 10}

	events, err := runFlow(t, NewSingleAgentFlow(agent), newStore(t, nil), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Len(t, llm.Requests(), 1)
}

func TestContentsProcessor_HistoryLimit(t *testing.T) {
	store := session.NewInMemoryStore()
	sess := testutil.NewSessionBuilder("sess-1").Events(
		core.NewUserMessageEvent("r", "one"),
		core.NewMessageEvent("tutor", "two"),
		core.NewUserMessageEvent("r", "three"),
	).Store(t, store)

	runCtx := core.NewRunContext(t.Context(), "sess-1", "run-1", core.AgentInfo{Name: "tutor"},
		core.NewTextContent(core.RoleUser, "three"), 0, nil, nil, sess, store, nil, nil)

	req := new(model.Request)
	err := NewContentsProcessor().ProcessRequest(runCtx, req, &testAgent{maxHistory: 2})
	require.NoError(t, err)
	require.Len(t, req.Contents, 2)
	assert.Equal(t, "two", model.Text(req.Contents[0]))
	assert.Equal(t, "three", model.Text(req.Contents[1]))
}

func TestContentsProcessor_FallsBackToUserContent(t *testing.T) {
	runCtx := core.NewRunContext(t.Context(), "sess-1", "run-1", core.AgentInfo{Name: "tutor"},
		core.NewTextContent(core.RoleUser, "hello"), 0, nil, nil, nil, nil, nil, nil)

	req := new(model.Request)
	require.NoError(t, NewContentsProcessor().ProcessRequest(runCtx, req, &testAgent{maxHistory: 5}))
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "hello", model.Text(req.Contents[0]))
}

func TestInstructionsProcessor_MissingKeysRenderEmpty(t *testing.T) {
	runCtx := core.NewRunContext(t.Context(), "sess-1", "run-1", core.AgentInfo{Name: "tutor"},
		core.Content{}, 0, nil, nil, core.NewSession("sess-1"), nil, nil, nil)
	runCtx.SetState("board", "CBSE")

	req := new(model.Request)
	agent := &testAgent{name: "tutor", instruction: "Board {{.board}} grade {{.grade}}."}
	require.NoError(t, NewInstructionsProcessor().ProcessRequest(runCtx, req, agent))
	assert.Equal(t, "Board CBSE grade .", req.Instructions)
}
