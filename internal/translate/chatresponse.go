package translate

import (
	"encoding/json"
	"fmt"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// ChatResponseToMessages converts a non-streaming OpenAI-compatible chat
// completion response body into an Anthropic Messages response, for the
// /v1/messages dispatch path when the client did not request streaming.
func ChatResponseToMessages(chatBody []byte, messageID string) ([]byte, error) {
	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(chatBody, &resp); err != nil {
		return nil, fmt.Errorf("decode chat completion response: %w", err)
	}

	out := models.AnthropicResponse{
		ID:    messageID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.StopReason = MapStopReason(choice.FinishReason)
		out.Content = chatMessageToAnthropicContent(choice.Message)
	}
	if resp.Usage != nil {
		out.Usage = models.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	return json.Marshal(out)
}

func chatMessageToAnthropicContent(msg models.ChatMessage) []models.ContentPart {
	var parts []models.ContentPart
	for _, text := range models.ContentText(msg.Content) {
		parts = append(parts, models.ContentPart{Type: "text", Text: text})
	}
	for _, tc := range msg.ToolCalls {
		var input any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}
		if input == nil {
			input = map[string]any{"raw": tc.Function.Arguments}
		}
		id := tc.ID
		if id == "" {
			id = "toolu_" + randomHex(12)
		}
		parts = append(parts, models.ContentPart{Type: "tool_use", ID: id, Name: tc.Function.Name, Input: input})
	}
	return parts
}

// ChatResponseToResponses converts a non-streaming chat completion
// response into a fully materialized Open Responses object, for the
// /v1/responses dispatch path when the client did not request streaming.
func ChatResponseToResponses(chatBody []byte, responseID, model string, createdAt, completedAt int64, req *models.ResponsesRequest) (*models.ResponseObject, error) {
	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(chatBody, &resp); err != nil {
		return nil, fmt.Errorf("decode chat completion response: %w", err)
	}
	if resp.Model != "" {
		model = resp.Model
	}

	obj := &models.ResponseObject{
		ID:                 responseID,
		Object:             "response",
		CreatedAt:          createdAt,
		CompletedAt:        completedAt,
		Status:             "completed",
		Model:              model,
		Output:             []models.OutputItem{},
		PreviousResponseID: req.PreviousResponseID,
		Metadata:           req.Metadata,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		MaxOutputTokens:    req.MaxOutputTokens,
		Tools:              req.Tools,
		ToolChoice:         req.ToolChoice,
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		obj.Output = chatMessageToOutputItems(choice.Message)
		switch choice.FinishReason {
		case "length":
			obj.Status = "incomplete"
			obj.IncompleteDetails = &models.IncompleteDetails{Reason: "max_output_tokens"}
		case "content_filter":
			obj.Status = "failed"
			obj.Error = &models.ResponsesError{Type: "model_error", Code: "content_filter"}
		}
	}
	if resp.Usage != nil {
		obj.Usage = &models.ResponsesUsage{
			InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens: resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		}
	}
	return obj, nil
}

func chatMessageToOutputItems(msg models.ChatMessage) []models.OutputItem {
	var items []models.OutputItem
	if texts := models.ContentText(msg.Content); len(texts) > 0 {
		var parts []models.OutputContentPart
		for _, t := range texts {
			parts = append(parts, models.OutputContentPart{Type: "output_text", Text: t})
		}
		items = append(items, models.OutputItem{
			Type: "message", ID: "msg_" + randomHex(12), Status: "completed", Role: "assistant", Content: parts,
		})
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "fc_" + randomHex(12)
		}
		items = append(items, models.OutputItem{
			Type: "function_call", ID: "fc_" + randomHex(12), Status: "completed",
			CallID: id, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		})
	}
	return items
}
