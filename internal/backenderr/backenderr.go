// Package backenderr defines the typed errors Dispatch maps to HTTP
// responses, following the teacher's UpstreamError pattern: a small
// struct carrying exactly what the handler needs to render a response,
// rather than a bare fmt.Errorf string it would have to parse back apart.
package backenderr

import "fmt"

// ValidationError is a client-input error (§7 taxonomy class 1): a
// malformed body, missing required field, or wrong field type. Code is
// the machine-readable error code spec.md's error format carries
// (e.g. "invalid_json", "missing_model").
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}
