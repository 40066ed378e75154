package models

import "encoding/json"

// ResponsesInput is the Open Responses `input` field, which may be a bare
// string or an array of typed input items. IsArray tracks the original
// shape so history() can re-emit items the same way they arrived.
type ResponsesInput struct {
	Text    string
	Items   []json.RawMessage
	IsArray bool
}

// UnmarshalJSON accepts either a string or an array of input items.
func (r *ResponsesInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		r.IsArray = false
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	r.Items = items
	r.IsArray = true
	return nil
}

// MarshalJSON preserves the original string/array shape.
func (r ResponsesInput) MarshalJSON() ([]byte, error) {
	if r.IsArray {
		if r.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.Items)
	}
	return json.Marshal(r.Text)
}

// AsItems returns the input normalized to a slice of raw items, wrapping a
// bare string as a single user-message item.
func (r *ResponsesInput) AsItems() []json.RawMessage {
	if r.IsArray {
		return r.Items
	}
	if r.Text == "" {
		return nil
	}
	item, _ := json.Marshal(map[string]any{"role": "user", "content": r.Text})
	return []json.RawMessage{item}
}

// ResponsesRequest is an Open Responses API request body.
type ResponsesRequest struct {
	Model              string            `json:"model"`
	Input              ResponsesInput    `json:"input"`
	Stream             bool              `json:"stream,omitempty"`
	PreviousResponseID *string           `json:"previous_response_id,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	TopP               *float64          `json:"top_p,omitempty"`
	MaxOutputTokens    *int              `json:"max_output_tokens,omitempty"`
	Tools              json.RawMessage   `json:"tools,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
}

// OutputContentPart is a typed fragment of a message output item's content.
type OutputContentPart struct {
	Type    string `json:"type"` // output_text | refusal | reasoning_text | summary_text
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

// OutputItem is a typed element of a Responses object's output array.
type OutputItem struct {
	Type      string              `json:"type"` // message | function_call
	ID        string              `json:"id"`
	Status    string              `json:"status,omitempty"`
	Role      string              `json:"role,omitempty"`
	Content   []OutputContentPart `json:"content,omitempty"`
	CallID    string              `json:"call_id,omitempty"`
	Name      string              `json:"name,omitempty"`
	Arguments string              `json:"arguments,omitempty"`
}

// ResponsesUsage is Responses-dialect token usage.
type ResponsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// IncompleteDetails explains why a response ended incomplete.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// ResponsesError describes a failed response.
type ResponsesError struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// ResponseObject is the fully materialized Open Responses object, emitted
// in the terminal SSE event and stored by the ResponseStateStore.
type ResponseObject struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	CreatedAt          int64              `json:"created_at"`
	CompletedAt        int64              `json:"completed_at,omitempty"`
	Status             string             `json:"status"`
	Model              string             `json:"model"`
	Output             []OutputItem       `json:"output"`
	Usage              *ResponsesUsage    `json:"usage,omitempty"`
	IncompleteDetails  *IncompleteDetails `json:"incomplete_details,omitempty"`
	Error              *ResponsesError    `json:"error,omitempty"`
	PreviousResponseID *string            `json:"previous_response_id,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	Temperature        *float64           `json:"temperature,omitempty"`
	TopP               *float64           `json:"top_p,omitempty"`
	MaxOutputTokens    *int               `json:"max_output_tokens,omitempty"`
	Tools              json.RawMessage    `json:"tools,omitempty"`
	ToolChoice         json.RawMessage    `json:"tool_choice,omitempty"`
}

// ResponseStateRecord is the persisted unit the ResponseStateStore owns.
type ResponseStateRecord struct {
	ID                 string
	PreviousResponseID *string
	Model              string
	Status             string
	InputItems         []json.RawMessage // original caller input, normalized
	Response           *ResponseObject
	CreatedAt          int64
}
