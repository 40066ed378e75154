// Package recorder implements the per-request append-only log buffer
// described in spec.md §4.6: every typed record method appends to an
// in-memory buffer until finalize schedules a background flush to disk
// (and, if configured, a durable log store).
package recorder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/headerutil"
	"github.com/user/llm-gateway-proxy/internal/models"
)

// Store persists a finalized RequestLogEntry. Implementations may batch
// (Insert then returns once the entry is queued) or write synchronously.
// A failed Insert is logged and otherwise ignored — the file flush is the
// log of record.
type Store interface {
	Insert(ctx context.Context, entry *models.RequestLogEntry) error
}

// pending tracks in-flight background flush tasks so shutdown can await
// them. Process-global by design: flush tasks outlive the Recorder that
// scheduled them and the request that owned it.
var pending sync.WaitGroup

// Await blocks until every scheduled flush task has completed. Intended
// for use during graceful shutdown.
func Await() {
	pending.Wait()
}

// Recorder accumulates one request's log records. Safe for use only by
// its owning request goroutine until Finalize is called; afterwards the
// background flush task owns the buffer exclusively.
type Recorder struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	entry      models.RequestLogEntry
	logDir     string
	store      Store
	logger     *zap.Logger
	finalized  bool
	streamText strings.Builder
}

// New creates a Recorder for a fresh request.
func New(logDir string, store Store, logger *zap.Logger) *Recorder {
	r := &Recorder{
		logDir: logDir,
		store:  store,
		logger: logger,
	}
	r.entry.RequestID = uuid.New().String()
	r.entry.CreatedAt = time.Now().UTC()
	return r
}

// RequestID returns the synthetic id assigned at construction.
func (r *Recorder) RequestID() string {
	return r.entry.RequestID
}

// LastBackend returns the name of the most recently attempted backend, or
// "" if none has been recorded yet. Dispatch uses this to populate the
// X-Proxy-Backend response header.
func (r *Recorder) LastBackend() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entry.Attempts) == 0 {
		return ""
	}
	return r.entry.Attempts[len(r.entry.Attempts)-1].BackendName
}

func (r *Recorder) writeLine(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	fmt.Fprintf(&r.buf, format+"\n", args...)
}

// RecordRequest logs the inbound request shape.
func (r *Recorder) RecordRequest(method, path, query string, headers []headerutil.Pair, body []byte, model string, isStream bool) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return
	}
	r.entry.Method = method
	r.entry.Path = path
	r.entry.Query = query
	r.entry.ModelName = model
	r.entry.IsStream = isStream
	r.mu.Unlock()

	masked := headerutil.MaskForLog(headers)
	var hb strings.Builder
	for _, p := range masked {
		fmt.Fprintf(&hb, "%s=%s; ", p.Name, p.Value)
	}
	r.writeLine("REQUEST method=%s path=%s query=%s model=%s stream=%t headers=%s body=%s",
		method, path, query, model, isStream, hb.String(), string(body))
}

// RecordRoute logs the ordered backend names chosen for this request.
func (r *Recorder) RecordRoute(names []string) {
	r.mu.Lock()
	if !r.finalized {
		r.entry.Route = append([]string(nil), names...)
	}
	r.mu.Unlock()
	r.writeLine("ROUTE backends=%s", strings.Join(names, ","))
}

// RecordBackendAttempt logs a single attempt against one backend before
// the response is known.
func (r *Recorder) RecordBackendAttempt(backendName string, attemptNumber int, url string) {
	r.mu.Lock()
	if !r.finalized {
		r.entry.Attempts = append(r.entry.Attempts, models.BackendAttempt{
			BackendName:   backendName,
			AttemptNumber: attemptNumber,
			URL:           url,
		})
	}
	r.mu.Unlock()
	r.writeLine("ATTEMPT backend=%s n=%d url=%s", backendName, attemptNumber, url)
}

// RecordBackendResponse logs the outcome of the most recent attempt.
func (r *Recorder) RecordBackendResponse(backendName string, status int, headers []headerutil.Pair, bodyOrChunks int) {
	r.mu.Lock()
	if !r.finalized && len(r.entry.Attempts) > 0 {
		last := &r.entry.Attempts[len(r.entry.Attempts)-1]
		if last.BackendName == backendName {
			last.Status = status
			last.BodyOrChunks = bodyOrChunks
		}
	}
	r.mu.Unlock()
	r.writeLine("RESPONSE backend=%s status=%d chunks_or_bytes=%d", backendName, status, bodyOrChunks)
}

// RecordStreamHeaders logs the filtered response headers for a streaming reply.
func (r *Recorder) RecordStreamHeaders(status int, headers []headerutil.Pair) {
	r.writeLine("STREAM_HEADERS status=%d count=%d", status, len(headers))
}

// RecordStreamChunk logs one forwarded SSE chunk. If it decodes to a
// `content` delta, the text is appended to the archived full response.
func (r *Recorder) RecordStreamChunk(chunk []byte, contentDelta string) {
	r.mu.Lock()
	if !r.finalized {
		r.entry.StreamChunks++
		if contentDelta != "" {
			r.streamText.WriteString(contentDelta)
			r.entry.FullResponse = r.streamText.String()
		}
	}
	r.mu.Unlock()
}

// RecordError logs a free-form error message.
func (r *Recorder) RecordError(msg string) {
	r.mu.Lock()
	if !r.finalized {
		r.entry.ErrorMessage = msg
	}
	r.mu.Unlock()
	r.writeLine("ERROR %s", msg)
}

// Finalize marks the recorder done exactly once and schedules a
// background flush. Subsequent calls, and all record methods called
// afterwards, are no-ops.
func (r *Recorder) Finalize(outcome models.Outcome) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return
	}
	r.finalized = true
	r.entry.Outcome = outcome
	r.entry.DurationMs = float64(time.Since(r.entry.CreatedAt).Milliseconds())
	fmt.Fprintf(&r.buf, "FINALIZE outcome=%s\n", outcome)
	entry := r.entry
	data := append([]byte(nil), r.buf.Bytes()...)
	r.mu.Unlock()

	pending.Add(1)
	go r.flush(entry, data)
}

func (r *Recorder) flush(entry models.RequestLogEntry, data []byte) {
	defer pending.Done()

	if r.logDir != "" {
		if err := writeAtomic(r.logDir, logFileName(entry), data); err != nil && r.logger != nil {
			r.logger.Error("failed to flush request log file", zap.String("request_id", entry.RequestID), zap.Error(err))
		}
	}

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.Insert(ctx, &entry); err != nil && r.logger != nil {
			r.logger.Error("failed to persist request log", zap.String("request_id", entry.RequestID), zap.Error(err))
		}
	}
}

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// logFileName builds "<UTC-timestamp>-<short-uuid>_<sanitized-model>.log".
func logFileName(entry models.RequestLogEntry) string {
	ts := entry.CreatedAt.Format("20060102T150405.000000Z")
	short := strings.SplitN(entry.RequestID, "-", 2)[0]
	model := sanitizeRe.ReplaceAllString(entry.ModelName, "_")
	model = strings.Trim(model, "_")
	if len(model) > 48 {
		model = model[:48]
	}
	if model == "" {
		model = "unknown"
	}
	return fmt.Sprintf("%s-%s_%s.log", ts, short, model)
}

// writeAtomic writes data to dir/name via write-to-temp-then-rename.
func writeAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}
