package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/llm-gateway-proxy/internal/headerutil"
	"github.com/user/llm-gateway-proxy/internal/recorder"
	"github.com/user/llm-gateway-proxy/internal/router"
	"github.com/user/llm-gateway-proxy/internal/translate"
)

// chanReader adapts a router.Chunk channel to an io.Reader, so the
// translate.Scanner used for cross-protocol streaming can read forwarded
// upstream bytes the same way it would from a live HTTP response body.
type chanReader struct {
	ch  <-chan router.Chunk
	buf []byte
	err error
}

func (r *chanReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, ok := <-r.ch
		if !ok {
			r.err = io.EOF
			continue
		}
		if chunk.Err != nil {
			r.err = chunk.Err
			continue
		}
		r.buf = chunk.Data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// writeProxyHeaders copies a reply's filtered upstream headers onto the
// response, plus the ambient X-Proxy-* observability headers.
func writeProxyHeaders(c *gin.Context, headers []headerutil.Pair, requestID, model, backend string, latency time.Duration) {
	for _, p := range headers {
		c.Header(p.Name, p.Value)
	}
	c.Header("X-Proxy-Request-Id", requestID)
	c.Header("X-Proxy-Model", model)
	if backend != "" {
		c.Header("X-Proxy-Backend", backend)
	}
	c.Header("X-Proxy-Latency-Ms", strconv.FormatInt(latency.Milliseconds(), 10))
}

// writeBuffered writes a non-streaming reply verbatim as the HTTP
// response, adding the ambient X-Proxy-* headers only on success — an
// upstream-originated error body is passed through with filtered headers
// alone, per spec.md §7.
func writeBuffered(c *gin.Context, reply *router.Reply, rec *recorder.Recorder, model string, started time.Time) {
	if reply.StatusCode < 400 {
		writeProxyHeaders(c, reply.Headers, rec.RequestID(), model, rec.LastBackend(), time.Since(started))
	} else {
		for _, p := range reply.Headers {
			c.Header(p.Name, p.Value)
		}
	}
	c.Data(reply.StatusCode, "application/json", reply.Body)
}

// streamSSE relays reply.Stream to the client byte for byte: the
// pass-through path used by /v1/chat/completions, which needs no
// cross-protocol translation since every backend already speaks this
// dialect.
func streamSSE(c *gin.Context, reply *router.Reply, rec *recorder.Recorder, model string, started time.Time) {
	writeProxyHeaders(c, reply.Headers, rec.RequestID(), model, rec.LastBackend(), time.Since(started))
	c.Status(reply.StatusCode)
	flusher, _ := c.Writer.(http.Flusher)
	for chunk := range reply.Stream {
		if chunk.Err != nil {
			return
		}
		_, _ = c.Writer.Write(chunk.Data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one translated event and flushes immediately,
// matching the zero-buffering requirement the raw pass-through path gets
// from the Router for free.
func writeSSEEvent(c *gin.Context, flusher http.Flusher, ev translate.SSEEvent) {
	_, _ = c.Writer.Write(ev.Bytes())
	if flusher != nil {
		flusher.Flush()
	}
}
