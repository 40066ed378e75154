package translate

// MapStopReason translates an OpenAI-dialect finish_reason into the
// Anthropic Messages stop_reason vocabulary. Reasons this proxy doesn't
// recognize pass through unchanged.
func MapStopReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "refusal"
	default:
		return finishReason
	}
}
