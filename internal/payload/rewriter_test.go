package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/user/llm-gateway-proxy/internal/models"
)

func TestRewrite_AppliesExplicitTargetModel(t *testing.T) {
	backend := &models.Backend{Name: "claude-sonnet", TargetModel: "claude-3-5-sonnet-latest"}
	raw := []byte(`{"model":"claude-sonnet","messages":[]}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, "claude-3-5-sonnet-latest", gjson.GetBytes(out, "model").String())
	assert.True(t, gjson.GetBytes(out, "messages").Exists())
}

func TestRewrite_StripsOpenAIPrefixWhenNoExplicitTarget(t *testing.T) {
	backend := &models.Backend{Name: "openai/gpt-4o"}
	raw := []byte(`{"model":"anything","messages":[]}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, "gpt-4o", gjson.GetBytes(out, "model").String())
}

func TestRewrite_InjectsThinkingWhenSupportsReasoningAndAbsent(t *testing.T) {
	backend := &models.Backend{Name: "claude-sonnet", SupportsReasoning: true}
	raw := []byte(`{"model":"claude-sonnet"}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, "enabled", gjson.GetBytes(out, "thinking.type").String())
}

func TestRewrite_DoesNotOverrideExistingThinkingBlock(t *testing.T) {
	backend := &models.Backend{Name: "claude-sonnet", SupportsReasoning: true}
	raw := []byte(`{"model":"claude-sonnet","thinking":{"type":"disabled","budget_tokens":100}}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, "disabled", gjson.GetBytes(out, "thinking.type").String())
	assert.Equal(t, int64(100), gjson.GetBytes(out, "thinking.budget_tokens").Int())
}

func TestRewrite_PreservesUnrelatedKeys(t *testing.T) {
	backend := &models.Backend{Name: "openai/gpt-4o"}
	raw := []byte(`{"model":"anything","messages":[{"role":"user","content":"hi"}],"temperature":0.5}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, 0.5, gjson.GetBytes(out, "temperature").Float())
	assert.Equal(t, "user", gjson.GetBytes(out, "messages.0.role").String())
	assert.Equal(t, "hi", gjson.GetBytes(out, "messages.0.content").String())
}

func TestRewrite_NoOpWhenNothingToChange(t *testing.T) {
	backend := &models.Backend{Name: "claude-sonnet"}
	raw := []byte(`{"model":"claude-sonnet"}`)

	out := Rewrite(raw, backend)

	assert.JSONEq(t, string(raw), string(out))
}

func TestRewrite_ForwardsOriginalBytesVerbatimWhenModelAlreadyMatches(t *testing.T) {
	// No target_model, no reasoning, and the client already sent the
	// backend's own name: Rewrite must not re-serialize at all.
	backend := &models.Backend{Name: "alpha"}
	raw := []byte(`{"model":"alpha","messages":[{"role":"user","content":"hi"}],"temperature":0.7}`)

	out := Rewrite(raw, backend)

	assert.Equal(t, raw, out)
}

func TestRewrite_IsIdempotent(t *testing.T) {
	backend := &models.Backend{Name: "claude-sonnet", TargetModel: "claude-3-5-sonnet-latest", SupportsReasoning: true}
	raw := []byte(`{"model":"claude-sonnet","messages":[]}`)

	once := Rewrite(raw, backend)
	twice := Rewrite(once, backend)

	require.NotNil(t, once)
	assert.JSONEq(t, string(once), string(twice))
}
