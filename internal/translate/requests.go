package translate

import (
	"encoding/json"
	"strings"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// AnthropicRequestToChat converts an Anthropic Messages request into an
// OpenAI-compatible chat completion request body, since every configured
// backend speaks the chat-completions dialect regardless of which client
// endpoint accepted the request.
func AnthropicRequestToChat(req *models.AnthropicRequest) ([]byte, error) {
	var messages []map[string]any
	if req.System != nil && !req.System.IsEmpty() {
		messages = append(messages, map[string]any{"role": "system", "content": req.System.String()})
	}
	for _, m := range req.Messages {
		messages = append(messages, anthropicMessageToChat(m)...)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   req.Stream,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = req.StopSequences
	}
	if len(req.Tools) > 0 {
		body["tools"] = anthropicToolsToChat(req.Tools)
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = anthropicToolChoiceToChat(req.ToolChoice)
	}
	return json.Marshal(body)
}

// anthropicMessageToChat expands one Anthropic message into zero or more
// chat messages: a string-content message maps 1:1, while an array of
// content parts may split into an assistant message carrying tool_calls
// plus separate "tool" role messages for any tool_result parts, preserving
// the original part order.
func anthropicMessageToChat(m models.Message) []map[string]any {
	if !m.Content.IsArray {
		return []map[string]any{{"role": m.Role, "content": m.Content.Text}}
	}

	var out []map[string]any
	var text strings.Builder
	var toolCalls []map[string]any

	flush := func() {
		if text.Len() == 0 && len(toolCalls) == 0 {
			return
		}
		msg := map[string]any{"role": m.Role}
		if text.Len() > 0 {
			msg["content"] = text.String()
		}
		if len(toolCalls) > 0 {
			msg["tool_calls"] = toolCalls
		}
		out = append(out, msg)
		text.Reset()
		toolCalls = nil
	}

	for _, p := range m.Content.Parts {
		switch p.Type {
		case "text":
			text.WriteString(p.Text)
		case "tool_use":
			args, _ := json.Marshal(p.Input)
			toolCalls = append(toolCalls, map[string]any{
				"id": p.ID, "type": "function",
				"function": map[string]any{"name": p.Name, "arguments": string(args)},
			})
		case "tool_result":
			flush()
			out = append(out, map[string]any{
				"role": "tool", "tool_call_id": p.ToolUseID, "content": toolResultText(p),
			})
		}
	}
	flush()
	return out
}

func toolResultText(p models.ContentPart) string {
	switch v := p.Content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, item := range v {
			if mp, ok := item.(map[string]any); ok {
				if t, ok := mp["text"].(string); ok {
					sb.WriteString(t)
				}
			}
		}
		return sb.String()
	default:
		b, _ := json.Marshal(p.Content)
		return string(b)
	}
}

func anthropicToolsToChat(tools []models.Tool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type":     "function",
			"function": map[string]any{"name": t.Name, "description": t.Description, "parameters": t.InputSchema},
		})
	}
	return out
}

func anthropicToolChoiceToChat(tc *models.ToolChoice) any {
	switch tc.Type {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "tool":
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	default:
		return "auto"
	}
}

// InputItemToChatMessage converts one Open Responses input item (a bare
// {"role", "content"} shape, content either a string or a list of
// {"type","text"} parts) into a chat message. Unrecognized item shapes
// (e.g. a function_call_output item) fall back to a user message carrying
// the item's raw JSON, so nothing silently disappears from the prompt.
func InputItemToChatMessage(raw json.RawMessage) map[string]any {
	var item struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &item); err != nil || item.Role == "" {
		return map[string]any{"role": "user", "content": string(raw)}
	}
	texts := models.ContentText(item.Content)
	return map[string]any{"role": item.Role, "content": strings.Join(texts, "")}
}

// OutputItemToChatMessage converts one materialized Responses output item
// (from a prior turn, surfaced via ResponseStateStore.History) back into
// the assistant-role chat message it was translated from.
func OutputItemToChatMessage(item models.OutputItem) map[string]any {
	if item.Type == "function_call" {
		return map[string]any{
			"role":    "assistant",
			"content": nil,
			"tool_calls": []map[string]any{{
				"id": item.CallID, "type": "function",
				"function": map[string]any{"name": item.Name, "arguments": item.Arguments},
			}},
		}
	}
	var text strings.Builder
	for _, c := range item.Content {
		if c.Type == "output_text" {
			text.WriteString(c.Text)
		}
	}
	return map[string]any{"role": "assistant", "content": text.String()}
}
