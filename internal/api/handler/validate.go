package handler

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/user/llm-gateway-proxy/internal/backenderr"
)

// parseJSONObject rejects anything that isn't a JSON object, per spec.md
// §4.10's "reject bodies that aren't JSON objects" rule. It returns the
// parsed gjson.Result so validators can cheaply probe individual fields
// without decoding the whole body into a Go struct.
func parseJSONObject(body []byte) (gjson.Result, *backenderr.ValidationError) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, backenderr.NewValidationError("invalid_json", "request body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, backenderr.NewValidationError("invalid_json_shape", "request body must be a JSON object")
	}
	return root, nil
}

func requireModel(root gjson.Result) *backenderr.ValidationError {
	model := root.Get("model")
	if !model.Exists() || model.Type != gjson.String || model.String() == "" {
		return backenderr.NewValidationError("missing_model", "model is required")
	}
	return nil
}

func requireMessages(root gjson.Result) *backenderr.ValidationError {
	messages := root.Get("messages")
	if !messages.Exists() || !messages.IsArray() || len(messages.Array()) == 0 {
		return backenderr.NewValidationError("missing_messages", "messages must be a non-empty array")
	}
	return nil
}

func validateEmbeddingsInput(root gjson.Result) *backenderr.ValidationError {
	input := root.Get("input")
	if !input.Exists() {
		return backenderr.NewValidationError("missing_input", "input is required")
	}
	if input.Type == gjson.String {
		return nil
	}
	if input.IsArray() {
		for _, el := range input.Array() {
			if el.Type != gjson.String {
				return backenderr.NewValidationError("invalid_input_type", "input array must contain only strings")
			}
		}
		return nil
	}
	return backenderr.NewValidationError("invalid_input_type", "input must be a string or an array of strings")
}

func validateRerankRequest(root gjson.Result) *backenderr.ValidationError {
	query := root.Get("query")
	if !query.Exists() || query.Type != gjson.String || strings.TrimSpace(query.String()) == "" {
		return backenderr.NewValidationError("missing_query", "query is required and must be non-empty after trimming")
	}
	documents := root.Get("documents")
	if !documents.Exists() || !documents.IsArray() || len(documents.Array()) == 0 {
		return backenderr.NewValidationError("missing_documents", "documents must be a non-empty array")
	}
	for _, el := range documents.Array() {
		if el.Type != gjson.String {
			return backenderr.NewValidationError("invalid_documents", "documents must be an array of strings")
		}
	}
	if topN := root.Get("top_n"); topN.Exists() {
		if topN.Type != gjson.Number || topN.Num != float64(int64(topN.Num)) || topN.Int() <= 0 {
			return backenderr.NewValidationError("invalid_top_n", "top_n must be a positive integer")
		}
	}
	return nil
}
