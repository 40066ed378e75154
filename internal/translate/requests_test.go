package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
)

func TestAnthropicRequestToChat_SimpleTextMessage(t *testing.T) {
	req := &models.AnthropicRequest{
		Model:     "claude-3",
		MaxTokens: 256,
		Messages: []models.Message{
			{Role: "user", Content: models.MessageContent{Text: "hello", IsArray: false}},
		},
	}

	out, err := AnthropicRequestToChat(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(out, &body))
	assert.Equal(t, "claude-3", body["model"])
	assert.Equal(t, float64(256), body["max_tokens"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "hello", msg["content"])
}

func TestAnthropicRequestToChat_SystemPromptPrepended(t *testing.T) {
	sys := &models.SystemPrompt{}
	require.NoError(t, json.Unmarshal([]byte(`"be concise"`), sys))

	req := &models.AnthropicRequest{
		Model:  "claude-3",
		System: sys,
		Messages: []models.Message{
			{Role: "user", Content: models.MessageContent{Text: "hi"}},
		},
	}

	out, err := AnthropicRequestToChat(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(out, &body))
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be concise", first["content"])
}

func TestAnthropicRequestToChat_ToolUseAndToolResultSplitIntoSeparateMessages(t *testing.T) {
	req := &models.AnthropicRequest{
		Model: "claude-3",
		Messages: []models.Message{
			{
				Role: "assistant",
				Content: models.MessageContent{
					IsArray: true,
					Parts: []models.ContentPart{
						{Type: "text", Text: "let me check"},
						{Type: "tool_use", ID: "call_1", Name: "get_weather", Input: map[string]any{"city": "nyc"}},
					},
				},
			},
			{
				Role: "user",
				Content: models.MessageContent{
					IsArray: true,
					Parts: []models.ContentPart{
						{Type: "tool_result", ToolUseID: "call_1", Content: "72F"},
					},
				},
			},
		},
	}

	out, err := AnthropicRequestToChat(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(out, &body))
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)

	assistantMsg := messages[0].(map[string]any)
	assert.Equal(t, "assistant", assistantMsg["role"])
	assert.Equal(t, "let me check", assistantMsg["content"])
	toolCalls := assistantMsg["tool_calls"].([]any)
	require.Len(t, toolCalls, 1)
	tc := toolCalls[0].(map[string]any)
	assert.Equal(t, "call_1", tc["id"])

	toolMsg := messages[1].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, "72F", toolMsg["content"])
}

func TestAnthropicToolChoiceToChat(t *testing.T) {
	cases := []struct {
		in   *models.ToolChoice
		want any
	}{
		{&models.ToolChoice{Type: "auto"}, "auto"},
		{&models.ToolChoice{Type: "any"}, "required"},
		{&models.ToolChoice{Type: "unknown"}, "auto"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, anthropicToolChoiceToChat(c.in))
	}

	named := anthropicToolChoiceToChat(&models.ToolChoice{Type: "tool", Name: "get_weather"})
	m, ok := named.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", m["type"])
}

func TestInputItemToChatMessage_StringContent(t *testing.T) {
	raw := json.RawMessage(`{"role":"user","content":"hello there"}`)
	msg := InputItemToChatMessage(raw)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "hello there", msg["content"])
}

func TestInputItemToChatMessage_ArrayContent(t *testing.T) {
	raw := json.RawMessage(`{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`)
	msg := InputItemToChatMessage(raw)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "ab", msg["content"])
}

func TestInputItemToChatMessage_UnrecognizedShapeFallsBackToRawUserMessage(t *testing.T) {
	raw := json.RawMessage(`{"type":"function_call_output","call_id":"c1","output":"42"}`)
	msg := InputItemToChatMessage(raw)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, string(raw), msg["content"])
}

func TestOutputItemToChatMessage_FunctionCall(t *testing.T) {
	item := models.OutputItem{Type: "function_call", CallID: "call_1", Name: "get_weather", Arguments: `{"city":"nyc"}`}
	msg := OutputItemToChatMessage(item)
	assert.Equal(t, "assistant", msg["role"])
	assert.Nil(t, msg["content"])
	toolCalls := msg["tool_calls"].([]map[string]any)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "call_1", toolCalls[0]["id"])
}

func TestOutputItemToChatMessage_Message(t *testing.T) {
	item := models.OutputItem{
		Type:    "message",
		Content: []models.OutputContentPart{{Type: "output_text", Text: "hi there"}},
	}
	msg := OutputItemToChatMessage(item)
	assert.Equal(t, "assistant", msg["role"])
	assert.Equal(t, "hi there", msg["content"])
}
