package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/tests/testutil"
)

func TestResponseStateRepository_PutAndGet(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewResponseStateRepository(db)
	ctx := context.Background()

	prev := "resp_prev"
	rec := &models.ResponseStateRecord{
		ID:                 "resp_123",
		PreviousResponseID: &prev,
		Model:              "gpt-4",
		Status:             "completed",
		InputItems:         []json.RawMessage{json.RawMessage(`{"role":"user","content":"hi"}`)},
		Response: &models.ResponseObject{
			ID:     "resp_123",
			Object: "response",
			Status: "completed",
			Model:  "gpt-4",
		},
		CreatedAt: 1700000000,
	}
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "resp_123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "resp_123", got.ID)
	require.NotNil(t, got.PreviousResponseID)
	assert.Equal(t, "resp_prev", *got.PreviousResponseID)
	assert.Equal(t, "completed", got.Status)
	assert.Len(t, got.InputItems, 1)
	assert.Equal(t, "completed", got.Response.Status)
}

func TestResponseStateRepository_GetMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewResponseStateRepository(db)

	got, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResponseStateRepository_PutUpdatesStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewResponseStateRepository(db)
	ctx := context.Background()

	rec := &models.ResponseStateRecord{
		ID:        "resp_abc",
		Model:     "gpt-4",
		Status:    "in_progress",
		Response:  &models.ResponseObject{ID: "resp_abc", Status: "in_progress"},
		CreatedAt: 1,
	}
	require.NoError(t, repo.Put(ctx, rec))

	rec.Status = "completed"
	rec.Response.Status = "completed"
	require.NoError(t, repo.Put(ctx, rec))

	got, err := repo.Get(ctx, "resp_abc")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
}
