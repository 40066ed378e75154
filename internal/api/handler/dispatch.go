package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/backenderr"
	"github.com/user/llm-gateway-proxy/internal/headerutil"
	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/internal/recorder"
	"github.com/user/llm-gateway-proxy/internal/registry"
	"github.com/user/llm-gateway-proxy/internal/router"
	"github.com/user/llm-gateway-proxy/internal/statestore"
	"github.com/user/llm-gateway-proxy/internal/translate"
)

// Dispatch holds every dependency the proxied endpoints need to validate,
// forward, translate, and record one request. It never retries itself —
// that's the Router's job — and never builds a route; it only resolves
// what dialect to forward as and what dialect to translate the reply to.
type Dispatch struct {
	Router   *router.Router
	Registry *registry.Registry
	States   *statestore.Store
	LogDir   string
	LogStore recorder.Store
	Logger   *zap.Logger
}

func requestHeaders(c *gin.Context) []headerutil.Pair {
	var out []headerutil.Pair
	for name, values := range c.Request.Header {
		for _, v := range values {
			out = append(out, headerutil.Pair{Name: name, Value: v})
		}
	}
	return out
}

func disconnectProbe(c *gin.Context) func() bool {
	ctx := c.Request.Context()
	return func() bool { return ctx.Err() != nil }
}

func (d *Dispatch) readBody(c *gin.Context) ([]byte, *backenderr.ValidationError) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, backenderr.NewValidationError("invalid_json", "failed to read request body")
	}
	return body, nil
}

// routeError renders the Go-level error Router.Forward can return: a
// failed route build (registry.ErrModelNotFound). Every other terminal
// outcome — success, a terminal upstream error, or the synthesized
// all-backends-failed 502 — already arrives as a *router.Reply, not an
// error, and is handled by the caller directly.
func (d *Dispatch) routeError(c *gin.Context, err error) {
	if errors.Is(err, registry.ErrModelNotFound) {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("model_not_found", err.Error()))
		return
	}
	errorResponse(c, http.StatusInternalServerError, err.Error())
}

// ChatCompletions implements POST /v1/chat/completions. Every configured
// backend already speaks this dialect, so the validated body is
// forwarded verbatim — no request or response translation.
func (d *Dispatch) ChatCompletions(c *gin.Context) {
	body, verr := d.readBody(c)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	root, verr := parseJSONObject(body)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := requireModel(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := requireMessages(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}

	model := root.Get("model").String()
	isStream := root.Get("stream").Bool()
	rec := recorder.New(d.LogDir, d.LogStore, d.Logger)
	rec.RecordRequest(c.Request.Method, "/v1/chat/completions", c.Request.URL.RawQuery, requestHeaders(c), body, model, isStream)

	started := time.Now()
	reply, err := d.Router.Forward(c.Request.Context(), router.ForwardRequest{
		Model: model, Path: "/v1/chat/completions", Query: c.Request.URL.RawQuery,
		Headers: requestHeaders(c), Body: body, IsStream: isStream,
		Recorder: rec, DisconnectProbe: disconnectProbe(c),
	})
	if err != nil {
		d.routeError(c, err)
		return
	}

	if reply.Stream != nil {
		streamSSE(c, reply, rec, model, started)
		return
	}
	writeBuffered(c, reply, rec, model, started)
}

// Messages implements POST /v1/messages: validate the Anthropic-shaped
// body, translate it into a chat completion request, forward it, and
// translate the reply back into the Messages dialect.
func (d *Dispatch) Messages(c *gin.Context) {
	body, verr := d.readBody(c)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	root, verr := parseJSONObject(body)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := requireModel(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := requireMessages(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}

	var req models.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("invalid_json_shape", "could not parse Anthropic request: "+err.Error()))
		return
	}

	chatBody, err := translate.AnthropicRequestToChat(&req)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to translate request: "+err.Error())
		return
	}

	rec := recorder.New(d.LogDir, d.LogStore, d.Logger)
	rec.RecordRequest(c.Request.Method, "/v1/messages", c.Request.URL.RawQuery, requestHeaders(c), body, req.Model, req.Stream)

	started := time.Now()
	reply, err := d.Router.Forward(c.Request.Context(), router.ForwardRequest{
		Model: req.Model, Path: "/v1/chat/completions", Query: c.Request.URL.RawQuery,
		Headers: requestHeaders(c), Body: chatBody, IsStream: req.Stream,
		Recorder: rec, DisconnectProbe: disconnectProbe(c),
	})
	if err != nil {
		d.routeError(c, err)
		return
	}

	if reply.StatusCode >= 400 {
		writeBuffered(c, reply, rec, req.Model, started)
		return
	}

	if reply.Stream != nil {
		d.relayMessagesStream(c, reply, rec, req.Model, started)
		return
	}

	out, err := translate.ChatResponseToMessages(reply.Body, "msg_"+uuid.New().String())
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "failed to translate upstream response: "+err.Error())
		return
	}
	writeProxyHeaders(c, reply.Headers, rec.RequestID(), req.Model, rec.LastBackend(), time.Since(started))
	c.Data(http.StatusOK, "application/json", out)
}

func (d *Dispatch) relayMessagesStream(c *gin.Context, reply *router.Reply, rec *recorder.Recorder, model string, started time.Time) {
	writeProxyHeaders(c, reply.Headers, rec.RequestID(), model, rec.LastBackend(), time.Since(started))
	c.Status(reply.StatusCode)
	flusher, _ := c.Writer.(http.Flusher)

	adapter := translate.NewChatToMessagesAdapter("msg_"+uuid.New().String(), model)
	scanner := translate.NewScanner(&chanReader{ch: reply.Stream})
	sawDone := false

	for {
		ev, err := scanner.Next()
		if err != nil {
			break
		}
		if ev.Data == translate.DoneSentinel {
			sawDone = true
			break
		}
		for _, out := range adapter.HandleData(ev.Data) {
			writeSSEEvent(c, flusher, out)
		}
	}
	for _, out := range adapter.Finish(sawDone) {
		writeSSEEvent(c, flusher, out)
	}
}

// Responses implements POST /v1/responses: validate, resolve any
// previous_response_id chain into chat messages alongside the new input,
// forward as a chat completion, and translate the reply into a
// materialized Responses object (or its streaming event sequence),
// persisting the result via ResponseStateStore.
func (d *Dispatch) Responses(c *gin.Context) {
	body, verr := d.readBody(c)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	root, verr := parseJSONObject(body)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := requireModel(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}

	var req models.ResponsesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error",
			backenderr.NewValidationError("invalid_json_shape", "could not parse Responses request: "+err.Error()))
		return
	}

	ctx := c.Request.Context()
	messages := d.buildResponsesMessages(ctx, &req)
	chatBody, err := json.Marshal(responsesToChatBody(&req, messages))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to build upstream request: "+err.Error())
		return
	}

	rec := recorder.New(d.LogDir, d.LogStore, d.Logger)
	rec.RecordRequest(c.Request.Method, "/v1/responses", c.Request.URL.RawQuery, requestHeaders(c), body, req.Model, req.Stream)

	started := time.Now()
	reply, err := d.Router.Forward(ctx, router.ForwardRequest{
		Model: req.Model, Path: "/v1/chat/completions", Query: c.Request.URL.RawQuery,
		Headers: requestHeaders(c), Body: chatBody, IsStream: req.Stream,
		Recorder: rec, DisconnectProbe: disconnectProbe(c),
	})
	if err != nil {
		d.routeError(c, err)
		return
	}

	if reply.StatusCode >= 400 {
		writeBuffered(c, reply, rec, req.Model, started)
		return
	}

	responseID := "resp_" + uuid.New().String()
	createdAt := started.Unix()

	if reply.Stream != nil {
		d.relayResponsesStream(c, reply, rec, responseID, createdAt, &req, started)
		return
	}

	obj, err := translate.ChatResponseToResponses(reply.Body, responseID, req.Model, createdAt, time.Now().Unix(), &req)
	if err != nil {
		errorResponse(c, http.StatusBadGateway, "failed to translate upstream response: "+err.Error())
		return
	}
	if d.States != nil {
		d.States.Put(obj, req.Input.AsItems())
	}
	writeProxyHeaders(c, reply.Headers, rec.RequestID(), req.Model, rec.LastBackend(), time.Since(started))
	c.JSON(http.StatusOK, obj)
}

func (d *Dispatch) relayResponsesStream(c *gin.Context, reply *router.Reply, rec *recorder.Recorder, responseID string, createdAt int64, req *models.ResponsesRequest, started time.Time) {
	writeProxyHeaders(c, reply.Headers, rec.RequestID(), req.Model, rec.LastBackend(), time.Since(started))
	c.Status(reply.StatusCode)
	flusher, _ := c.Writer.(http.Flusher)

	adapter := translate.NewChatToResponsesAdapter(responseID, req.Model, createdAt, req)
	for _, ev := range adapter.Start() {
		writeSSEEvent(c, flusher, ev)
	}

	scanner := translate.NewScanner(&chanReader{ch: reply.Stream})
	sawDone := false
	for {
		ev, err := scanner.Next()
		if err != nil {
			break
		}
		if ev.Data == translate.DoneSentinel {
			sawDone = true
			break
		}
		for _, out := range adapter.HandleData(ev.Data) {
			writeSSEEvent(c, flusher, out)
		}
	}

	events, obj := adapter.Finish(sawDone, time.Now().Unix())
	for _, ev := range events {
		writeSSEEvent(c, flusher, ev)
	}
	if obj != nil && d.States != nil {
		d.States.Put(obj, req.Input.AsItems())
	}
}

// buildResponsesMessages flattens any previous_response_id history chain
// (logged but not fatal on a broken chain, per spec.md §6) followed by
// the current request's own input items into chat messages.
func (d *Dispatch) buildResponsesMessages(ctx context.Context, req *models.ResponsesRequest) []map[string]any {
	var messages []map[string]any
	if req.PreviousResponseID != nil && d.States != nil {
		turns, err := d.States.History(ctx, *req.PreviousResponseID, 0)
		if err != nil && d.Logger != nil {
			d.Logger.Warn("failed to load response history",
				zap.String("previous_response_id", *req.PreviousResponseID), zap.Error(err))
		}
		for _, turn := range turns {
			for _, item := range turn.InputItems {
				messages = append(messages, translate.InputItemToChatMessage(item))
			}
			for _, out := range turn.Output {
				messages = append(messages, translate.OutputItemToChatMessage(out))
			}
		}
	}
	for _, item := range req.Input.AsItems() {
		messages = append(messages, translate.InputItemToChatMessage(item))
	}
	return messages
}

func responsesToChatBody(req *models.ResponsesRequest, messages []map[string]any) map[string]any {
	body := map[string]any{
		"model": req.Model, "messages": messages, "stream": req.Stream,
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxOutputTokens != nil {
		body["max_tokens"] = *req.MaxOutputTokens
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	if len(req.ToolChoice) > 0 {
		body["tool_choice"] = req.ToolChoice
	}
	return body
}

// Embeddings implements POST /v1/embeddings: a pure passthrough, since
// the request is already in the dialect every backend speaks.
func (d *Dispatch) Embeddings(c *gin.Context) {
	d.passthrough(c, "/v1/embeddings", func(root gjson.Result) *backenderr.ValidationError {
		if verr := requireModel(root); verr != nil {
			return verr
		}
		return validateEmbeddingsInput(root)
	})
}

// Rerank implements POST /v1/rerank: a pure passthrough.
func (d *Dispatch) Rerank(c *gin.Context) {
	d.passthrough(c, "/v1/rerank", func(root gjson.Result) *backenderr.ValidationError {
		if verr := requireModel(root); verr != nil {
			return verr
		}
		return validateRerankRequest(root)
	})
}

func (d *Dispatch) passthrough(c *gin.Context, path string, validate func(gjson.Result) *backenderr.ValidationError) {
	body, verr := d.readBody(c)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	root, verr := parseJSONObject(body)
	if verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}
	if verr := validate(root); verr != nil {
		validationErrorResponse(c, http.StatusBadRequest, "invalid_request_error", verr)
		return
	}

	model := root.Get("model").String()
	rec := recorder.New(d.LogDir, d.LogStore, d.Logger)
	rec.RecordRequest(c.Request.Method, path, c.Request.URL.RawQuery, requestHeaders(c), body, model, false)

	started := time.Now()
	reply, err := d.Router.Forward(c.Request.Context(), router.ForwardRequest{
		Model: model, Path: path, Query: c.Request.URL.RawQuery,
		Headers: requestHeaders(c), Body: body, IsStream: false,
		Recorder: rec, DisconnectProbe: disconnectProbe(c),
	})
	if err != nil {
		d.routeError(c, err)
		return
	}
	writeBuffered(c, reply, rec, model, started)
}

// ListModels implements GET /v1/models.
func (d *Dispatch) ListModels(c *gin.Context) {
	names := d.Registry.ListNames()
	data := make([]gin.H, 0, len(names))
	for _, name := range names {
		data = append(data, gin.H{"id": name, "object": "model", "owned_by": "llm-gateway-proxy"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
