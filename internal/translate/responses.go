package translate

import (
	"encoding/json"

	"github.com/user/llm-gateway-proxy/internal/models"
)

type respItemKind string

const (
	respItemMessage  respItemKind = "message"
	respItemFuncCall respItemKind = "function_call"
)

type respOutputItem struct {
	kind       respItemKind
	id         string
	outputIdx  int
	text       string
	callID     string
	name       string
	args       string
	done       bool
	incomplete bool
}

// ChatToResponsesAdapter converts one OpenAI-compatible chat completion
// SSE stream into an Open Responses SSE stream, materializing a final
// ResponseObject on the terminal event for the caller to persist via
// ResponseStateStore.
type ChatToResponsesAdapter struct {
	responseID string
	model      string
	createdAt  int64
	req        *models.ResponsesRequest

	seq int

	items           []*respOutputItem
	currentMsgIdx   int // index into items, -1 if no open message item
	toolIdxToItem   map[int]int
	finishReasons   map[string]bool
	sawDone         bool
	inputTokens     int
	outputTokens    int
	terminalEmitted bool
}

// NewChatToResponsesAdapter creates an adapter for one stream.
// responseID should be a synthesized Responses-shaped id ("resp_<hex>"),
// createdAt a Unix timestamp captured by the caller (this package never
// reads the clock so replayed transcripts stay deterministic).
func NewChatToResponsesAdapter(responseID, model string, createdAt int64, req *models.ResponsesRequest) *ChatToResponsesAdapter {
	return &ChatToResponsesAdapter{
		responseID:    responseID,
		model:         model,
		createdAt:     createdAt,
		req:           req,
		currentMsgIdx: -1,
		toolIdxToItem: map[int]int{},
		finishReasons: map[string]bool{},
	}
}

func (a *ChatToResponsesAdapter) nextSeq() int {
	a.seq++
	return a.seq
}

func (a *ChatToResponsesAdapter) inProgressObject() *models.ResponseObject {
	return &models.ResponseObject{
		ID:                 a.responseID,
		Object:             "response",
		CreatedAt:          a.createdAt,
		Status:             "in_progress",
		Model:              a.model,
		Output:             []models.OutputItem{},
		PreviousResponseID: a.req.PreviousResponseID,
		Metadata:           a.req.Metadata,
		Temperature:        a.req.Temperature,
		TopP:               a.req.TopP,
		MaxOutputTokens:    a.req.MaxOutputTokens,
		Tools:              a.req.Tools,
		ToolChoice:         a.req.ToolChoice,
	}
}

// Start emits response.created then response.in_progress, both carrying
// an in-progress response object. Call once before consuming the stream.
func (a *ChatToResponsesAdapter) Start() []SSEEvent {
	obj := a.inProgressObject()
	created := marshalEvent("response.created", map[string]any{
		"type": "response.created", "sequence_number": a.nextSeq(), "response": obj,
	})
	inProgress := marshalEvent("response.in_progress", map[string]any{
		"type": "response.in_progress", "sequence_number": a.nextSeq(), "response": obj,
	})
	return []SSEEvent{created, inProgress}
}

// HandleData processes one upstream SSE data payload.
func (a *ChatToResponsesAdapter) HandleData(data string) []SSEEvent {
	var chunk models.ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}

	var events []SSEEvent
	for _, ch := range chunk.Choices {
		events = append(events, a.handleDelta(ch.Delta)...)
		if ch.FinishReason != nil {
			a.finishReasons[*ch.FinishReason] = true
			events = append(events, a.closeItemsForFinish(*ch.FinishReason)...)
		}
	}
	if chunk.Usage != nil {
		a.inputTokens = chunk.Usage.PromptTokens
		a.outputTokens = chunk.Usage.CompletionTokens
	}
	return events
}

func (a *ChatToResponsesAdapter) handleDelta(delta models.ChunkDelta) []SSEEvent {
	var events []SSEEvent

	texts := models.ContentText(delta.Content)
	if len(texts) > 0 && a.currentMsgIdx < 0 {
		events = append(events, a.openMessageItem()...)
	}
	for _, text := range texts {
		item := a.items[a.currentMsgIdx]
		item.text += text
		events = append(events, marshalEvent("response.output_text.delta", map[string]any{
			"type": "response.output_text.delta", "sequence_number": a.nextSeq(),
			"item_id": item.id, "output_index": item.outputIdx, "content_index": 0, "delta": text,
		}))
	}

	for _, tc := range delta.ToolCalls {
		events = append(events, a.handleToolCallDelta(tc)...)
	}

	return events
}

func (a *ChatToResponsesAdapter) openMessageItem() []SSEEvent {
	idx := len(a.items)
	item := &respOutputItem{kind: respItemMessage, id: "msg_" + randomHex(12), outputIdx: idx}
	a.items = append(a.items, item)
	a.currentMsgIdx = idx

	return []SSEEvent{
		marshalEvent("response.output_item.added", map[string]any{
			"type": "response.output_item.added", "sequence_number": a.nextSeq(),
			"output_index": idx,
			"item": map[string]any{"id": item.id, "type": "message", "status": "in_progress", "role": "assistant", "content": []any{}},
		}),
		marshalEvent("response.content_part.added", map[string]any{
			"type": "response.content_part.added", "sequence_number": a.nextSeq(),
			"item_id": item.id, "output_index": idx, "content_index": 0,
			"part": map[string]any{"type": "output_text", "text": ""},
		}),
	}
}

func (a *ChatToResponsesAdapter) handleToolCallDelta(tc models.ToolCallDelta) []SSEEvent {
	var events []SSEEvent

	idx, known := a.toolIdxToItem[tc.Index]
	if !known {
		idx = len(a.items)
		id := tc.ID
		if id == "" {
			id = "fc_" + randomHex(12)
		}
		item := &respOutputItem{kind: respItemFuncCall, id: id, outputIdx: idx, callID: tc.ID}
		a.items = append(a.items, item)
		a.toolIdxToItem[tc.Index] = idx
		events = append(events, marshalEvent("response.output_item.added", map[string]any{
			"type": "response.output_item.added", "sequence_number": a.nextSeq(),
			"output_index": idx,
			"item": map[string]any{"id": item.id, "type": "function_call", "status": "in_progress", "call_id": tc.ID, "name": "", "arguments": ""},
		}))
	}

	item := a.items[idx]
	if tc.Function.Name != "" {
		item.name += tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		item.args += tc.Function.Arguments
		events = append(events, marshalEvent("response.function_call_arguments.delta", map[string]any{
			"type": "response.function_call_arguments.delta", "sequence_number": a.nextSeq(),
			"item_id": item.id, "output_index": idx, "delta": tc.Function.Arguments,
		}))
	}
	return events
}

func (a *ChatToResponsesAdapter) closeItemsForFinish(finishReason string) []SSEEvent {
	var events []SSEEvent
	if a.currentMsgIdx >= 0 {
		item := a.items[a.currentMsgIdx]
		item.done = true
		item.incomplete = finishReason == "length"
		events = append(events,
			marshalEvent("response.content_part.done", map[string]any{
				"type": "response.content_part.done", "sequence_number": a.nextSeq(),
				"item_id": item.id, "output_index": item.outputIdx, "content_index": 0,
				"part": map[string]any{"type": "output_text", "text": item.text},
			}),
			marshalEvent("response.output_item.done", map[string]any{
				"type": "response.output_item.done", "sequence_number": a.nextSeq(),
				"output_index": item.outputIdx, "item": a.toOutputItem(item),
			}),
		)
		a.currentMsgIdx = -1
	}
	// Close any still-open function-call items in output_index order —
	// a.items is already append-ordered, unlike toolIdxToItem's map.
	for _, item := range a.items {
		if item.kind != respItemFuncCall || item.done {
			continue
		}
		item.done = true
		events = append(events, marshalEvent("response.output_item.done", map[string]any{
			"type": "response.output_item.done", "sequence_number": a.nextSeq(),
			"output_index": item.outputIdx, "item": a.toOutputItem(item),
		}))
	}
	return events
}

func (a *ChatToResponsesAdapter) toOutputItem(item *respOutputItem) models.OutputItem {
	switch item.kind {
	case respItemFuncCall:
		return models.OutputItem{
			Type: "function_call", ID: item.id, Status: "completed",
			CallID: item.callID, Name: item.name, Arguments: item.args,
		}
	default:
		status := "completed"
		if item.incomplete {
			status = "incomplete"
		}
		return models.OutputItem{
			Type: "message", ID: item.id, Status: status, Role: "assistant",
			Content: []models.OutputContentPart{{Type: "output_text", Text: item.text}},
		}
	}
}

// Finish derives the terminal status per spec priority order and emits
// any still-pending item-close events followed by exactly one of
// response.completed | response.failed | response.incomplete carrying the
// fully materialized response object. The caller is responsible for
// persisting the returned object via ResponseStateStore.
func (a *ChatToResponsesAdapter) Finish(sawDone bool, completedAt int64) ([]SSEEvent, *models.ResponseObject) {
	if a.terminalEmitted {
		return nil, nil
	}
	a.terminalEmitted = true
	a.sawDone = sawDone
	events := a.closeItemsForFinish(lastFinishReason(a.finishReasons))

	obj := a.inProgressObject()
	obj.CompletedAt = completedAt
	obj.Output = a.materializedOutput()
	if a.inputTokens > 0 || a.outputTokens > 0 {
		obj.Usage = &models.ResponsesUsage{
			InputTokens: a.inputTokens, OutputTokens: a.outputTokens, TotalTokens: a.inputTokens + a.outputTokens,
		}
	}

	eventType, status := a.terminalStatus()
	obj.Status = status
	switch status {
	case "incomplete":
		obj.IncompleteDetails = &models.IncompleteDetails{Reason: "max_output_tokens"}
	case "failed":
		if a.finishReasons["content_filter"] {
			obj.Error = &models.ResponsesError{Type: "model_error", Code: "content_filter"}
		} else {
			obj.Error = &models.ResponsesError{Type: "server_error", Code: "stream_ended_unexpectedly"}
		}
	}

	events = append(events, marshalEvent(eventType, map[string]any{
		"type": eventType, "sequence_number": a.nextSeq(), "response": obj,
	}))
	return events, obj
}

func (a *ChatToResponsesAdapter) terminalStatus() (eventType, status string) {
	switch {
	case a.finishReasons["length"]:
		return "response.incomplete", "incomplete"
	case a.finishReasons["content_filter"]:
		return "response.failed", "failed"
	case a.sawDone:
		return "response.completed", "completed"
	case len(a.finishReasons) > 0:
		return "response.completed", "completed"
	default:
		return "response.failed", "failed"
	}
}

func (a *ChatToResponsesAdapter) materializedOutput() []models.OutputItem {
	out := make([]models.OutputItem, 0, len(a.items))
	for _, item := range a.items {
		if !item.done {
			item.done = true
		}
		out = append(out, a.toOutputItem(item))
	}
	return out
}

func lastFinishReason(seen map[string]bool) string {
	for _, r := range []string{"length", "content_filter", "tool_calls", "stop"} {
		if seen[r] {
			return r
		}
	}
	for r := range seen {
		return r
	}
	return ""
}
