package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEventType(t *testing.T, ev SSEEvent) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &m))
	return m
}

func TestChatToMessagesAdapter_TextStream(t *testing.T) {
	a := NewChatToMessagesAdapter("msg_123", "gpt-4")

	var all []SSEEvent
	all = append(all, a.HandleData(`{"choices":[{"delta":{"role":"assistant"},"index":0}]}`)...)
	all = append(all, a.HandleData(`{"choices":[{"delta":{"content":"Hello"},"index":0}]}`)...)
	all = append(all, a.HandleData(`{"choices":[{"delta":{},"finish_reason":"stop","index":0}]}`)...)
	all = append(all, a.Finish(true)...)

	require.NotEmpty(t, all)
	assert.Equal(t, "message_start", all[0].Type)
	assert.Equal(t, "message_stop", all[len(all)-1].Type)

	var sawMessageStart int
	for _, ev := range all {
		if ev.Type == "message_start" {
			sawMessageStart++
		}
	}
	assert.Equal(t, 1, sawMessageStart)

	var deltaEvent map[string]any
	for _, ev := range all {
		if ev.Type == "message_delta" {
			deltaEvent = decodeEventType(t, ev)
		}
	}
	require.NotNil(t, deltaEvent)
	delta := deltaEvent["delta"].(map[string]any)
	assert.Equal(t, "end_turn", delta["stop_reason"])
}

func TestChatToMessagesAdapter_ToolCallOnly(t *testing.T) {
	a := NewChatToMessagesAdapter("msg_1", "gpt-4")

	var all []SSEEvent
	all = append(all, a.HandleData(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":"{\"q\":"}}]},"index":0}]}`)...)
	all = append(all, a.HandleData(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]},"index":0}]}`)...)
	all = append(all, a.HandleData(`{"choices":[{"delta":{},"finish_reason":"tool_calls","index":0}]}`)...)
	all = append(all, a.Finish(true)...)

	types := make([]string, len(all))
	for i, ev := range all {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, types)

	start := decodeEventType(t, all[1])
	block := start["content_block"].(map[string]any)
	assert.Equal(t, "tool_use", block["type"])
	assert.Equal(t, "call_1", block["id"])
	assert.Equal(t, "lookup", block["name"])

	deltaEv := decodeEventType(t, all[5])
	delta := deltaEv["delta"].(map[string]any)
	assert.Equal(t, "tool_use", delta["stop_reason"])
}

func TestChatToMessagesAdapter_EmptyStreamStillWellFormed(t *testing.T) {
	a := NewChatToMessagesAdapter("msg_empty", "gpt-4")
	events := a.Finish(true)

	require.Len(t, events, 3)
	assert.Equal(t, "message_start", events[0].Type)
	assert.Equal(t, "message_delta", events[1].Type)
	assert.Equal(t, "message_stop", events[2].Type)
}

func TestChatToMessagesAdapter_FinishIsIdempotent(t *testing.T) {
	a := NewChatToMessagesAdapter("msg_1", "gpt-4")
	first := a.Finish(true)
	second := a.Finish(true)

	assert.NotEmpty(t, first)
	assert.Empty(t, second)
}
