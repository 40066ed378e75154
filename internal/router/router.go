// Package router implements the backend-selecting forwarder described in
// spec.md §4.3/§4.4: build an ordered route from the registry, retry each
// backend with bounded exponential backoff, fail over to the next backend
// on a retryable outcome, and stream or buffer the terminal reply.
package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/backendstats"
	"github.com/user/llm-gateway-proxy/internal/headerutil"
	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/internal/payload"
	"github.com/user/llm-gateway-proxy/internal/recorder"
	"github.com/user/llm-gateway-proxy/internal/registry"
)

// DefaultTimeout is applied to a buffered (non-streaming) backend attempt
// when the backend declares no timeout of its own. Streaming attempts run
// without a client-side timeout, whether or not the backend declares one.
const DefaultTimeout = 30 * time.Second

const (
	retryBackoffBase = 250 * time.Millisecond
	retryBackoffCap  = 2 * time.Second
)

var retryableStatus = map[int]bool{
	408: true, 409: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// Chunk is one forwarded piece of a streaming reply.
type Chunk struct {
	Data []byte
	Err  error
}

// Reply is the outcome of Forward: either a buffered body (Stream nil) or
// a live channel of chunks (Stream non-nil, Body nil).
type Reply struct {
	StatusCode int
	Headers    []headerutil.Pair
	Body       []byte
	Stream     <-chan Chunk
}

// ForwardRequest carries one client request through the router.
type ForwardRequest struct {
	Model           string
	Path            string
	Query           string
	Headers         []headerutil.Pair
	Body            []byte
	IsStream        bool
	Recorder        *recorder.Recorder
	DisconnectProbe func() bool
}

// Router selects a route via the registry and forwards the request,
// retrying and failing over per backend.
type Router struct {
	registry       *registry.Registry
	client         *http.Client
	streamClient   *http.Client
	logger         *zap.Logger
	numRetries     int
	defaultTimeout time.Duration
	stats          *backendstats.Tracker
}

// New creates a Router. numRetries is clamped to at least 1; defaultTimeout
// falls back to DefaultTimeout when <= 0. stats may be nil, in which case
// no connection/outcome counters are kept.
func New(reg *registry.Registry, numRetries int, defaultTimeout time.Duration, logger *zap.Logger, stats *backendstats.Tracker) *Router {
	if numRetries < 1 {
		numRetries = 1
	}
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Router{
		registry:       reg,
		logger:         logger,
		numRetries:     numRetries,
		defaultTimeout: defaultTimeout,
		stats:          stats,
		client: &http.Client{
			Transport: &http.Transport{MaxIdleConns: 100, MaxIdleConnsPerHost: 20, IdleConnTimeout: 90 * time.Second},
		},
		streamClient: &http.Client{
			Timeout:   0,
			Transport: &http.Transport{MaxIdleConns: 100, MaxIdleConnsPerHost: 20, IdleConnTimeout: 90 * time.Second},
		},
	}
}

// Forward resolves req.Model to a route and attempts each backend in
// order, retrying transient failures and escalating to the next backend
// when a backend is exhausted, per spec.md §4.3.
func (rt *Router) Forward(ctx context.Context, req ForwardRequest) (*Reply, error) {
	route, err := rt.registry.BuildRoute(req.Model)
	if err != nil {
		req.Recorder.RecordError(err.Error())
		req.Recorder.Finalize(models.OutcomeError)
		return nil, err
	}

	names := make([]string, len(route))
	for i, b := range route {
		names[i] = b.Name
	}
	req.Recorder.RecordRoute(names)

	var lastReply *Reply
	var lastErr error

	for _, backend := range route {
		// err == nil means reply is final (success or a non-retryable
		// status) and should go straight to the client; err != nil means
		// the backend was retried to exhaustion and the next backend
		// should be tried, remembering the last retryable outcome.
		reply, err := rt.drainBackend(ctx, backend, req)
		if err == nil {
			// A stream reply's recorder is finalized by forwardStream,
			// once its goroutine reaches a terminal chunk; only a
			// buffered reply's outcome is decided here.
			if reply.Stream == nil {
				if reply.StatusCode >= 400 {
					req.Recorder.Finalize(models.OutcomeError)
				} else {
					req.Recorder.Finalize(models.OutcomeSuccess)
				}
			}
			return reply, nil
		}
		lastErr = err
		if reply != nil {
			lastReply = reply
		}
	}

	if lastReply != nil {
		req.Recorder.Finalize(models.OutcomeError)
		return lastReply, nil
	}

	req.Recorder.RecordError(fmt.Sprintf("all backends exhausted: %v", lastErr))
	req.Recorder.Finalize(models.OutcomeError)
	return &Reply{
		StatusCode: http.StatusBadGateway,
		Body:       synthesizeBadGatewayBody(lastErr),
	}, nil
}

func synthesizeBadGatewayBody(lastErr error) []byte {
	msg := "all backends failed"
	if lastErr != nil {
		msg = fmt.Sprintf("all backends failed: %s", lastErr.Error())
	}
	body, err := json.Marshal(map[string]any{"detail": msg})
	if err != nil {
		return []byte(`{"detail":"all backends failed"}`)
	}
	return body
}

// drainBackend retries one backend up to rt.numRetries times. err == nil
// means reply is final (success or a non-retryable status) and should be
// returned to the client as-is; err != nil means every attempt against
// this backend was retryable and exhausted, and the caller should move to
// the next backend, optionally keeping reply as the last-seen outcome.
func (rt *Router) drainBackend(ctx context.Context, backend *models.Backend, req ForwardRequest) (*Reply, error) {
	var lastReply *Reply
	var lastErr error

	for attempt := 1; attempt <= rt.numRetries; attempt++ {
		target, err := buildURL(backend.BaseURL, req.Path, req.Query)
		if err != nil {
			return nil, fmt.Errorf("build url: %w", err)
		}
		req.Recorder.RecordBackendAttempt(backend.Name, attempt, target)

		reply, retryable, err := rt.attempt(ctx, backend, target, req)
		if err != nil {
			lastErr = err
			if rt.logger != nil {
				rt.logger.Warn("backend attempt failed",
					zap.String("backend", backend.Name), zap.Int("attempt", attempt), zap.Error(err))
			}
			if attempt < rt.numRetries {
				rt.sleepBackoff(ctx, attempt)
				continue
			}
			return nil, lastErr
		}

		req.Recorder.RecordBackendResponse(backend.Name, reply.StatusCode, reply.Headers, replySize(reply))

		if retryable {
			lastReply = reply
			lastErr = fmt.Errorf("retryable status %d from %s", reply.StatusCode, backend.Name)
			if attempt < rt.numRetries {
				rt.sleepBackoff(ctx, attempt)
				continue
			}
			return lastReply, lastErr
		}

		// Non-retryable terminal outcome (success or a final error status).
		return reply, nil
	}

	return lastReply, lastErr
}

func (rt *Router) sleepBackoff(ctx context.Context, attempt int) {
	delay := time.Duration(float64(retryBackoffBase) * math.Pow(2, float64(attempt-1)))
	if delay > retryBackoffCap {
		delay = retryBackoffCap
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// attempt performs one HTTP round trip against backend. retryable is only
// meaningful when err is nil.
func (rt *Router) attempt(ctx context.Context, backend *models.Backend, target string, req ForwardRequest) (*Reply, bool, error) {
	timeout := rt.defaultTimeout
	if backend.TimeoutSeconds > 0 {
		timeout = time.Duration(backend.TimeoutSeconds) * time.Second
	}

	outBody := payload.Rewrite(req.Body, backend)
	outHeaders := headerutil.ToUpstream(req.Headers, backend.APIKey)

	if req.IsStream {
		return rt.attemptStream(ctx, target, outHeaders, outBody, req)
	}

	if rt.stats != nil {
		rt.stats.AttemptStarted(backend.Name)
	}
	started := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := newUpstreamRequest(attemptCtx, target, outHeaders, outBody)
	if err != nil {
		rt.finishStats(backend.Name, err, started)
		return nil, false, err
	}
	resp, err := rt.client.Do(httpReq)
	if err != nil {
		rt.finishStats(backend.Name, err, started)
		return nil, false, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		rt.finishStats(backend.Name, err, started)
		return nil, false, fmt.Errorf("read upstream body: %w", err)
	}

	reply := &Reply{
		StatusCode: resp.StatusCode,
		Headers:    headerutil.FromUpstream(fromHTTPHeader(resp.Header)),
		Body:       body,
	}
	if retryableStatus[resp.StatusCode] {
		rt.finishStats(backend.Name, fmt.Errorf("status %d", resp.StatusCode), started)
	} else {
		rt.finishStats(backend.Name, nil, started)
	}
	return reply, retryableStatus[resp.StatusCode], nil
}

func (rt *Router) finishStats(backendName string, err error, started time.Time) {
	if rt.stats == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	rt.stats.AttemptFinished(backendName, msg, float64(time.Since(started).Milliseconds()))
}

// attemptStream opens a streaming request. On a retryable or error status
// it drains and classifies per spec.md §4.4 without ever handing a chunk
// channel to the caller; only a genuinely successful connection returns a
// live Reply.Stream.
func (rt *Router) attemptStream(ctx context.Context, target string, headers []headerutil.Pair, body []byte, req ForwardRequest) (*Reply, bool, error) {
	httpReq, err := newUpstreamRequest(ctx, target, headers, body)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := rt.streamClient.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("upstream stream request: %w", err)
	}

	if retryableStatus[resp.StatusCode] {
		drained, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return &Reply{StatusCode: resp.StatusCode, Headers: headerutil.FromUpstream(fromHTTPHeader(resp.Header)), Body: drained}, true, nil
	}
	if resp.StatusCode >= 400 {
		drained, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return &Reply{StatusCode: resp.StatusCode, Headers: headerutil.FromUpstream(fromHTTPHeader(resp.Header)), Body: drained}, false, nil
	}

	respHeaders := headerutil.FromUpstream(fromHTTPHeader(resp.Header))
	respHeaders = ensureContentType(respHeaders, "text/event-stream")
	req.Recorder.RecordStreamHeaders(resp.StatusCode, respHeaders)

	chunks := make(chan Chunk, 32)
	go rt.forwardStream(ctx, resp, req, chunks)

	return &Reply{StatusCode: resp.StatusCode, Headers: respHeaders, Stream: chunks}, false, nil
}

// forwardStream copies raw bytes from resp.Body to chunks, polling the
// disconnect probe between chunks, and finalizes the recorder exactly
// once on every exit path.
func (rt *Router) forwardStream(ctx context.Context, resp *http.Response, req ForwardRequest, chunks chan<- Chunk) {
	defer close(chunks)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		if req.DisconnectProbe != nil && req.DisconnectProbe() {
			chunks <- Chunk{Err: context.Canceled}
			req.Recorder.Finalize(models.OutcomeCancelled)
			return
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			req.Recorder.RecordStreamChunk(line, extractContentDelta(line))
			chunks <- Chunk{Data: line}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				req.Recorder.Finalize(models.OutcomeSuccess)
				return
			}
			chunks <- Chunk{Err: err}
			req.Recorder.RecordError(err.Error())
			req.Recorder.Finalize(models.OutcomeError)
			return
		}
		select {
		case <-ctx.Done():
			chunks <- Chunk{Err: ctx.Err()}
			req.Recorder.Finalize(models.OutcomeCancelled)
			return
		default:
		}
	}
}

// extractContentDelta best-effort decodes an OpenAI-chat-dialect SSE data
// line for recorder archival. Any other shape (or a non-data line) yields
// the empty string; it never affects what's forwarded to the client.
func extractContentDelta(line []byte) string {
	trimmed := bytes.TrimRight(line, "\r\n")
	const prefix = "data: "
	if !bytes.HasPrefix(trimmed, []byte(prefix)) {
		return ""
	}
	payload := bytes.TrimPrefix(trimmed, []byte(prefix))
	if len(payload) == 0 || string(payload) == "[DONE]" {
		return ""
	}
	var chunk models.ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return ""
	}
	var out strings.Builder
	for _, ch := range chunk.Choices {
		for _, text := range models.ContentText(ch.Delta.Content) {
			out.WriteString(text)
		}
	}
	return out.String()
}

// buildURL joins a backend's base URL with the request path, collapsing a
// duplicated "/v1" prefix when both the base and the path carry one.
func buildURL(baseURL, path, query string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend base_url: %w", err)
	}
	p := path
	hasV1 := func(s string) bool { return s == "/v1" || strings.HasPrefix(s, "/v1/") }
	if hasV1(u.Path) && hasV1(p) {
		p = strings.TrimPrefix(p, "/v1")
	}
	full := base + p
	if query != "" {
		full += "?" + query
	}
	return full, nil
}

func newUpstreamRequest(ctx context.Context, target string, headers []headerutil.Pair, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	for _, p := range headers {
		httpReq.Header.Add(p.Name, p.Value)
	}
	return httpReq, nil
}

func fromHTTPHeader(h http.Header) []headerutil.Pair {
	var out []headerutil.Pair
	for name, values := range h {
		for _, v := range values {
			out = append(out, headerutil.Pair{Name: name, Value: v})
		}
	}
	return out
}

func ensureContentType(headers []headerutil.Pair, value string) []headerutil.Pair {
	for i, p := range headers {
		if strings.EqualFold(p.Name, "Content-Type") {
			headers[i].Value = value
			return headers
		}
	}
	return append(headers, headerutil.Pair{Name: "Content-Type", Value: value})
}

func replySize(r *Reply) int {
	if r == nil {
		return 0
	}
	return len(r.Body)
}

