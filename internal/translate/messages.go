package translate

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// SSEEvent is one event this package emits downstream: a type tag and
// an already-marshaled JSON payload.
type SSEEvent struct {
	Type string
	Data []byte
}

// Bytes renders the event in "event: <type>\ndata: <json>\n\n" framing.
func (e SSEEvent) Bytes() []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, e.Data))
}

func marshalEvent(typ string, payload any) SSEEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	return SSEEvent{Type: typ, Data: data}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	const hex = "0123456789abcdef"
	out := make([]byte, n*2)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0x0f]
	}
	return string(out)
}

type msgBlockKind string

const (
	blockText    msgBlockKind = "text"
	blockToolUse msgBlockKind = "tool_use"
)

type msgContentBlock struct {
	kind     msgBlockKind
	text     strings.Builder
	toolID   string
	toolName string
	toolArgs strings.Builder
}

// ChatToMessagesAdapter converts one OpenAI-compatible chat completion
// SSE stream into an Anthropic Messages-compatible SSE stream.
type ChatToMessagesAdapter struct {
	messageID string
	model     string

	blocks          []*msgContentBlock
	openTextIndex   int
	toolIndexToBlk  map[int]int
	messageStarted  bool
	sawDone         bool
	finishReason    string
	inputTokens     int
	outputTokens    int
	terminalEmitted bool
}

// NewChatToMessagesAdapter creates an adapter for one stream. messageID
// should be a synthesized Anthropic-shaped id (e.g. "msg_<hex>").
func NewChatToMessagesAdapter(messageID, model string) *ChatToMessagesAdapter {
	return &ChatToMessagesAdapter{
		messageID:      messageID,
		model:          model,
		openTextIndex:  -1,
		toolIndexToBlk: map[int]int{},
	}
}

// HandleData processes one upstream SSE data payload (already stripped
// of the DoneSentinel handling, which the caller does by calling Finish
// instead). It returns zero or more downstream events to forward.
func (a *ChatToMessagesAdapter) HandleData(data string) []SSEEvent {
	var chunk models.ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}

	var events []SSEEvent
	if !a.messageStarted && len(chunk.Choices) > 0 {
		ch := chunk.Choices[0]
		if ch.Delta.Role != "" || len(ch.Delta.Content) > 0 || len(ch.Delta.ToolCalls) > 0 {
			events = append(events, a.emitMessageStart())
		}
	}

	for _, ch := range chunk.Choices {
		events = append(events, a.handleDelta(ch.Delta)...)
		if ch.FinishReason != nil {
			a.finishReason = *ch.FinishReason
		}
	}
	if chunk.Usage != nil {
		a.inputTokens = chunk.Usage.PromptTokens
		a.outputTokens = chunk.Usage.CompletionTokens
	}
	return events
}

func (a *ChatToMessagesAdapter) emitMessageStart() SSEEvent {
	a.messageStarted = true
	return marshalEvent("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            a.messageID,
			"type":          "message",
			"role":          "assistant",
			"content":       []any{},
			"model":         a.model,
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	})
}

func (a *ChatToMessagesAdapter) handleDelta(delta models.ChunkDelta) []SSEEvent {
	var events []SSEEvent

	for _, tc := range delta.ToolCalls {
		events = append(events, a.handleToolCallDelta(tc)...)
	}

	for _, text := range models.ContentText(delta.Content) {
		if a.openTextIndex < 0 {
			idx := len(a.blocks)
			blk := &msgContentBlock{kind: blockText}
			a.blocks = append(a.blocks, blk)
			a.openTextIndex = idx
			events = append(events, marshalEvent("content_block_start", map[string]any{
				"type":          "content_block_start",
				"index":         idx,
				"content_block": map[string]any{"type": "text", "text": ""},
			}))
		}
		a.blocks[a.openTextIndex].text.WriteString(text)
		events = append(events, marshalEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": a.openTextIndex,
			"delta": map[string]any{"type": "text_delta", "text": text},
		}))
	}

	return events
}

func (a *ChatToMessagesAdapter) handleToolCallDelta(tc models.ToolCallDelta) []SSEEvent {
	var events []SSEEvent

	idx, known := a.toolIndexToBlk[tc.Index]
	if !known {
		if a.openTextIndex >= 0 {
			events = append(events, a.closeTextBlock())
		}
		idx = len(a.blocks)
		id := tc.ID
		if id == "" {
			id = "toolu_" + randomHex(12)
		}
		blk := &msgContentBlock{kind: blockToolUse, toolID: id, toolName: tc.Function.Name}
		a.blocks = append(a.blocks, blk)
		a.toolIndexToBlk[tc.Index] = idx
		events = append(events, marshalEvent("content_block_start", map[string]any{
			"type":  "content_block_start",
			"index": idx,
			"content_block": map[string]any{
				"type": "tool_use", "id": id, "name": tc.Function.Name, "input": map[string]any{},
			},
		}))
	}

	blk := a.blocks[idx]
	if tc.Function.Name != "" && blk.toolName == "" {
		blk.toolName = tc.Function.Name
	}
	if tc.Function.Arguments != "" {
		blk.toolArgs.WriteString(tc.Function.Arguments)
		events = append(events, marshalEvent("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": idx,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Function.Arguments},
		}))
	}
	return events
}

func (a *ChatToMessagesAdapter) closeTextBlock() SSEEvent {
	idx := a.openTextIndex
	a.openTextIndex = -1
	return marshalEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
}

// Finish closes any open block and emits the terminal message_delta and
// message_stop sequence. Calls after the first return nil; sawDone indicates
// whether the upstream sent the [DONE] sentinel (informational only —
// this adapter, unlike the Responses adapter, does not vary its
// terminal event on that signal).
func (a *ChatToMessagesAdapter) Finish(sawDone bool) []SSEEvent {
	if a.terminalEmitted {
		return nil
	}
	a.terminalEmitted = true
	a.sawDone = sawDone

	var events []SSEEvent
	if !a.messageStarted {
		events = append(events, a.emitMessageStart())
	}
	if a.openTextIndex >= 0 {
		events = append(events, a.closeTextBlock())
	}
	for idx, blk := range a.blocks {
		if blk.kind != blockToolUse {
			continue
		}
		events = append(events, marshalEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": idx}))
	}

	events = append(events, marshalEvent("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": MapStopReason(a.finishReason), "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": a.outputTokens},
	}))
	events = append(events, marshalEvent("message_stop", map[string]any{"type": "message_stop"}))
	return events
}
