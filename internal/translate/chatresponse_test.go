package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
)

func TestChatResponseToMessages_TextOnly(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-1", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
	}`)

	out, err := ChatResponseToMessages(chatBody, "msg_123")
	require.NoError(t, err)

	var resp models.AnthropicResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "message", resp.Type)
	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "hi there", resp.Content[0].Text)
	assert.Equal(t, 5, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestChatResponseToMessages_ToolCall(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-2", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"tool_calls","message":{
			"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}]
		}}]
	}`)

	out, err := ChatResponseToMessages(chatBody, "msg_456")
	require.NoError(t, err)

	var resp models.AnthropicResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "tool_use", resp.Content[0].Type)
	assert.Equal(t, "call_1", resp.Content[0].ID)
	assert.Equal(t, "get_weather", resp.Content[0].Name)
}

func TestChatResponseToResponses_Completed(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-3", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"done"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
	}`)

	req := &models.ResponsesRequest{Model: "gpt-4o"}
	obj, err := ChatResponseToResponses(chatBody, "resp_1", "gpt-4o", 1000, 1001, req)
	require.NoError(t, err)

	assert.Equal(t, "resp_1", obj.ID)
	assert.Equal(t, "completed", obj.Status)
	assert.Equal(t, "gpt-4o", obj.Model)
	require.Len(t, obj.Output, 1)
	assert.Equal(t, "message", obj.Output[0].Type)
	require.NotNil(t, obj.Usage)
	assert.Equal(t, 12, obj.Usage.TotalTokens)
}

func TestChatResponseToResponses_LengthTruncationMarksIncomplete(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-4", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"partial"}}]
	}`)

	req := &models.ResponsesRequest{Model: "gpt-4o"}
	obj, err := ChatResponseToResponses(chatBody, "resp_2", "gpt-4o", 1000, 1001, req)
	require.NoError(t, err)

	assert.Equal(t, "incomplete", obj.Status)
	require.NotNil(t, obj.IncompleteDetails)
	assert.Equal(t, "max_output_tokens", obj.IncompleteDetails.Reason)
}

func TestChatResponseToResponses_ContentFilterMarksFailed(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-5", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"content_filter","message":{"role":"assistant","content":""}}]
	}`)

	req := &models.ResponsesRequest{Model: "gpt-4o"}
	obj, err := ChatResponseToResponses(chatBody, "resp_3", "gpt-4o", 1000, 1001, req)
	require.NoError(t, err)

	assert.Equal(t, "failed", obj.Status)
	require.NotNil(t, obj.Error)
	assert.Equal(t, "content_filter", obj.Error.Code)
}

func TestChatResponseToResponses_FunctionCall(t *testing.T) {
	chatBody := []byte(`{
		"id": "chatcmpl-6", "model": "gpt-4o",
		"choices": [{"index":0,"finish_reason":"tool_calls","message":{
			"role":"assistant","tool_calls":[{"id":"call_9","type":"function","function":{"name":"lookup","arguments":"{}"}}]
		}}]
	}`)

	req := &models.ResponsesRequest{Model: "gpt-4o"}
	obj, err := ChatResponseToResponses(chatBody, "resp_4", "gpt-4o", 1000, 1001, req)
	require.NoError(t, err)

	require.Len(t, obj.Output, 1)
	assert.Equal(t, "function_call", obj.Output[0].Type)
	assert.Equal(t, "call_9", obj.Output[0].CallID)
	assert.Equal(t, "lookup", obj.Output[0].Name)
}
