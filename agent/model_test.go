package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/model"
	"github.com/hupe1980/edumesh/runner"
	"github.com/hupe1980/edumesh/session"
	"github.com/hupe1980/edumesh/tool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestModelAgent_Defaults(t *testing.T) {
	llm := model.NewMockModel("mock")
	a := NewModelAgent("tutor", llm)

	assert.Equal(t, llm, a.GetLLM())
	assert.Empty(t, a.GetTools())
	assert.False(t, a.IsStreamingEnabled())
	assert.Equal(t, 20, a.MaxHistoryMessages())
	assert.Equal(t, "Agent tutor", a.Description())

	got, err := a.ResolveInstructions(newTestRunContext(t))
	require.NoError(t, err)
	assert.Equal(t, "You are tutor, a helpful tutor.", got)
}

func TestModelAgent_Tools(t *testing.T) {
	a := NewModelAgent("tutor", model.NewMockModel("mock"), func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{tool.NewLoadMemoryTool(), tool.NewExplanationTool()}
		o.Description = "Explains textbook concepts"
	})

	assert.Equal(t, []string{tool.GenerateExplanationName, tool.LoadMemoryName}, a.ListTools())
	assert.True(t, a.HasTool(tool.LoadMemoryName))
	assert.Equal(t, "Explains textbook concepts", a.Description())

	// GetTools hands out a copy.
	tools := a.GetTools()
	delete(tools, tool.LoadMemoryName)
	assert.True(t, a.HasTool(tool.LoadMemoryName))
}

func TestModelAgent_RunThroughRunner(t *testing.T) {
	llm := model.NewMockModel("mock").
		ScriptCall("call-1", tool.LoadMemoryName, `{}`).
		ScriptText("Fractions describe parts of a whole.")

	tutor := NewModelAgent("explanation_main_agent", llm, func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("Current style: {{.current_style}}")
		o.Tools = []tool.Tool{tool.NewLoadMemoryTool()}
		o.OutputKey = "final_explanation"
	})
	pipeline := NewSequentialAgent("pipeline", tutor)

	store := session.NewInMemoryStore()
	_, err := store.Create(t.Context(), "s1", "student-1")
	require.NoError(t, err)
	require.NoError(t, store.ApplyDelta(t.Context(), "s1", map[string]any{"current_style": "story"}))

	r := runner.New(pipeline, func(o *runner.Options) { o.SessionStore = store })
	_, events, err := r.RunSync(t.Context(), "s1", core.NewTextContent(core.RoleUser, "What is a fraction?"))
	require.NoError(t, err)
	require.Len(t, events, 3)

	for _, ev := range events {
		assert.Equal(t, "explanation_main_agent", ev.Author)
		require.NotNil(t, ev.Branch)
		assert.Equal(t, "explanation_main_agent", *ev.Branch)
	}

	resp := events[1].GetFunctionResponses()
	require.Len(t, resp, 1)
	assert.Equal(t, "success", model.ResponseMap(resp[0])["status"])

	sess, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	got, _ := sess.GetState("final_explanation")
	assert.Equal(t, "Fractions describe parts of a whole.", got)
	assert.Len(t, sess.GetEvents(), 4)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Current style: story", reqs[0].Instructions)
}
