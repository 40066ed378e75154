package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/llm-gateway-proxy/internal/headerutil"
	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/internal/repository"
	"github.com/user/llm-gateway-proxy/tests/testutil"
)

func TestRecorder_FinalizeWritesFile(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil, zap.NewNop())

	r.RecordRequest("POST", "/v1/chat/completions", "", []headerutil.Pair{{Name: "Authorization", Value: "Bearer sk-test-secret"}}, []byte(`{"model":"gpt-4"}`), "gpt-4", false)
	r.RecordRoute([]string{"gpt-4", "gpt-4-fallback"})
	r.RecordBackendAttempt("gpt-4", 1, "https://api.example.com/v1/chat/completions")
	r.RecordBackendResponse("gpt-4", 200, nil, 512)
	r.Finalize(models.OutcomeSuccess)

	Await()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "_gpt-4.log")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "REQUEST")
	assert.Contains(t, string(data), "FINALIZE outcome=success")
	assert.NotContains(t, string(data), "sk-test-secret")
}

func TestRecorder_FinalizeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, nil, zap.NewNop())

	r.RecordRequest("POST", "/v1/chat/completions", "", nil, nil, "gpt-4", false)
	r.Finalize(models.OutcomeSuccess)
	r.Finalize(models.OutcomeError)
	r.RecordError("should not apply")

	Await()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "outcome=success")
	assert.NotContains(t, string(data), "should not apply")
}

func TestRecorder_PersistsToStore(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewRequestLogRepository(db)
	dir := t.TempDir()

	r := New(dir, repo, zap.NewNop())
	r.RecordRequest("POST", "/v1/messages", "", nil, []byte(`{}`), "claude-3", true)
	r.RecordRoute([]string{"claude-3"})
	r.Finalize(models.OutcomeSuccess)

	Await()

	log, err := repo.GetByRequestID(context.Background(), r.RequestID())
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, "claude-3", log.ModelName)
	assert.True(t, log.IsStream)
	assert.Equal(t, models.OutcomeSuccess, log.Outcome)
}

func TestLogFileName_SanitizesModel(t *testing.T) {
	entry := models.RequestLogEntry{ModelName: "anthropic/claude-3.5 sonnet!!"}
	name := logFileName(entry)
	assert.Contains(t, name, "_anthropic_claude-3_5_sonnet.log")
}

func TestLogFileName_EmptyModel(t *testing.T) {
	name := logFileName(models.RequestLogEntry{})
	assert.Contains(t, name, "_unknown.log")
}
