package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/model"
)

func TestBuildMessages_ToolResultsInUserTurn(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent(core.RoleUser, "What is a fraction?"),
		{Role: core.RoleAssistant, Parts: []core.Part{
			core.TextPart{Text: "Let me check."},
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "load_memory", Arguments: `{"query":"fraction"}`}},
		}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "load_memory", Response: map[string]any{"status": "success"}}}}},
		core.NewTextContent(core.RoleUser, "story please"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.NotNil(t, msgs[1].Content[1].OfToolUse)

	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", msgs[2].Content[0].OfToolResult.ToolUseID)
	assert.NotNil(t, msgs[2].Content[1].OfText)
}

func TestSystemBlocksAndTools(t *testing.T) {
	req := model.Request{
		Instructions: "You are a tutor.",
		Contents:     []core.Content{core.NewTextContent(core.RoleSystem, "Be brief.")},
		Tools: []model.ToolDefinition{{Function: model.FunctionDefinition{
			Name:        "generate_explanation",
			Description: "explain",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"explanation_style": map[string]any{"type": "string"}},
				"required":   []any{"explanation_style"},
			},
		}}},
	}

	blocks := systemBlocks(req)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Be brief.", blocks[1].Text)

	tools := buildTools(req.Tools)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "generate_explanation", tools[0].OfTool.Name)
	assert.Equal(t, []string{"explanation_style"}, tools[0].OfTool.InputSchema.Required)
}
