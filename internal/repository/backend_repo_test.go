package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
	"github.com/user/llm-gateway-proxy/tests/testutil"
)

func TestBackendRepository_UpsertAndList(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBackendRepository(db)
	ctx := context.Background()

	b := &models.Backend{Name: "gpt-4", BaseURL: "https://api.example.com", APIKey: "sk-test", TimeoutSeconds: 30}
	require.NoError(t, repo.Upsert(ctx, b))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "gpt-4", list[0].Name)
	assert.Equal(t, 30, list[0].TimeoutSeconds)
}

func TestBackendRepository_UpsertReplaces(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBackendRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Backend{Name: "gpt-4", BaseURL: "https://a.example.com", APIKey: "k1"}))
	require.NoError(t, repo.Upsert(ctx, &models.Backend{Name: "gpt-4", BaseURL: "https://b.example.com", APIKey: "k2"}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://b.example.com", list[0].BaseURL)
}

func TestBackendRepository_Delete(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewBackendRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.Backend{Name: "gpt-4", BaseURL: "https://a.example.com", APIKey: "k1"}))
	require.NoError(t, repo.Delete(ctx, "gpt-4"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
