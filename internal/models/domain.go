// Package models defines the domain models for the LLM gateway proxy.
package models

import "time"

// Backend is an immutable configured upstream endpoint identified by a
// logical model name.
type Backend struct {
	Name              string `json:"name"`
	BaseURL           string `json:"base_url"`
	APIKey            string `json:"-"`
	TimeoutSeconds    int    `json:"request_timeout,omitempty"`
	TargetModel       string `json:"target_model,omitempty"`
	SupportsReasoning bool   `json:"supports_reasoning"`
}

// ResolvedTargetModel returns the upstream model id the request should be
// rewritten to: an explicit TargetModel wins, otherwise the logical model
// name with a leading "openai/" provider prefix stripped.
func (b *Backend) ResolvedTargetModel() string {
	if b.TargetModel != "" {
		return b.TargetModel
	}
	const prefix = "openai/"
	if len(b.Name) > len(prefix) && b.Name[:len(prefix)] == prefix {
		return b.Name[len(prefix):]
	}
	return b.Name
}

// Outcome is the terminal disposition of a finalized RequestLog.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// BackendAttempt records one attempt against one backend.
type BackendAttempt struct {
	BackendName     string      `json:"backend_name"`
	AttemptNumber   int         `json:"attempt_number"`
	URL             string      `json:"url"`
	Status          int         `json:"status,omitempty"`
	ResponseHeaders [][2]string `json:"response_headers,omitempty"`
	BodyOrChunks    int         `json:"body_or_chunk_count,omitempty"`
}

// RequestLogEntry is the row shape persisted for a finalized request.
type RequestLogEntry struct {
	RequestID        string
	Method           string
	Path             string
	Query            string
	ModelName        string
	IsStream         bool
	Route            []string
	Attempts         []BackendAttempt
	Outcome          Outcome
	ErrorMessage     string
	StreamChunks     int
	FullResponse     string
	StopReason       string
	IsToolCall       bool
	ConversationTurn int
	DurationMs       float64
	UsagePrompt      int
	UsageCompletion  int
	CreatedAt        time.Time
}

// RequestLog is a row read back from the durable store.
type RequestLog struct {
	ID int64
	RequestLogEntry
}
