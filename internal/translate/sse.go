// Package translate adapts an OpenAI-compatible chat completion SSE
// stream into the Anthropic Messages and Open Responses SSE dialects
// (spec.md §4.7, §4.8).
package translate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Event is one parsed Server-Sent Event: an optional type (from an
// "event:" field line) and its data payload, joined across multiple
// "data:" lines per the SSE spec.
type Event struct {
	Type string
	Data string
}

// DoneSentinel is the OpenAI chat-completions end-of-stream marker.
const DoneSentinel = "[DONE]"

// Scanner reads one SSE event at a time from an upstream byte stream,
// tolerant of chunk boundaries falling mid-line or mid-event: it blocks
// on the underlying reader (via bufio.Reader.ReadString) until a full
// line is available, the same pattern the non-translating forwarder
// uses to read raw chunks.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps r for event-at-a-time SSE scanning.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next returns the next complete event, or io.EOF once the stream ends
// with nothing buffered. A dangling event at end of stream (no trailing
// blank line) is still returned; the following call yields io.EOF.
func (s *Scanner) Next() (*Event, error) {
	var ev Event
	var data []string
	haveContent := false

	for {
		line, err := s.r.ReadString('\n')
		if len(line) > 0 {
			trimmed := strings.TrimRight(line, "\r\n")
			switch {
			case trimmed == "":
				if haveContent {
					ev.Data = strings.Join(data, "\n")
					return &ev, nil
				}
				// blank line with nothing buffered: keep scanning
			case strings.HasPrefix(trimmed, ":"):
				// comment line, ignored
			case strings.HasPrefix(trimmed, "event:"):
				ev.Type = strings.TrimSpace(strings.TrimPrefix(trimmed, "event:"))
				haveContent = true
			case strings.HasPrefix(trimmed, "data:"):
				field := strings.TrimPrefix(trimmed, "data:")
				field = strings.TrimPrefix(field, " ")
				data = append(data, field)
				haveContent = true
			default:
				// id:, retry:, or unrecognized field — ignored
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if haveContent {
					ev.Data = strings.Join(data, "\n")
					return &ev, nil
				}
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read sse stream: %w", err)
		}
	}
}
