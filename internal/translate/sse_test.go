package translate

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteAtATimeReader dribbles out the underlying bytes one at a time, to
// exercise the Scanner's tolerance of chunk boundaries falling mid-line.
type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestScanner_SimpleEvent(t *testing.T) {
	s := NewScanner(strings.NewReader("event: message_start\ndata: {\"a\":1}\n\n"))
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "message_start", ev.Type)
	assert.Equal(t, `{"a":1}`, ev.Data)
}

func TestScanner_MultiLineData(t *testing.T) {
	s := NewScanner(strings.NewReader("data: line1\ndata: line2\n\n"))
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", ev.Data)
}

func TestScanner_CommentLinesIgnored(t *testing.T) {
	s := NewScanner(strings.NewReader(": keep-alive\ndata: x\n\n"))
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", ev.Data)
}

func TestScanner_DoneSentinel(t *testing.T) {
	s := NewScanner(strings.NewReader("data: [DONE]\n\n"))
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, DoneSentinel, ev.Data)
}

func TestScanner_MultipleEventsSequential(t *testing.T) {
	s := NewScanner(strings.NewReader("data: first\n\ndata: second\n\n"))

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", first.Data)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "second", second.Data)
}

func TestScanner_EOFAtStreamEnd(t *testing.T) {
	s := NewScanner(strings.NewReader("data: only\n\n"))

	_, err := s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestScanner_DanglingEventWithoutTrailingBlankLineIsReturned(t *testing.T) {
	s := NewScanner(strings.NewReader("data: dangling"))
	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "dangling", ev.Data)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestScanner_TolerantOfPartialChunkBoundaries(t *testing.T) {
	raw := "event: content_block_delta\ndata: {\"delta\":\"a\"}\n\ndata: [DONE]\n\n"
	s := NewScanner(&byteAtATimeReader{data: []byte(raw)})

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", first.Type)
	assert.Equal(t, `{"delta":"a"}`, first.Data)

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, DoneSentinel, second.Data)
}
