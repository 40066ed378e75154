package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/llm-gateway-proxy/internal/models"
)

func TestBuildRoute_PrimaryPlusFallbacks(t *testing.T) {
	r := New(nil)
	r.LoadDefaults([]*models.Backend{
		{Name: "gpt-4", BaseURL: "https://a"},
		{Name: "gpt-4-fallback", BaseURL: "https://b"},
		{Name: "gpt-4-fallback-2", BaseURL: "https://c"},
	}, map[string][]string{
		"gpt-4": {"gpt-4-fallback", "gpt-4-fallback-2"},
	})

	route, err := r.BuildRoute("gpt-4")
	require.NoError(t, err)
	require.Len(t, route, 3)
	assert.Equal(t, "gpt-4", route[0].Name)
	assert.Equal(t, "gpt-4-fallback", route[1].Name)
	assert.Equal(t, "gpt-4-fallback-2", route[2].Name)
}

func TestBuildRoute_DropsUndefinedFallbacksAndDuplicates(t *testing.T) {
	r := New(nil)
	r.LoadDefaults([]*models.Backend{
		{Name: "gpt-4", BaseURL: "https://a"},
		{Name: "gpt-4-fallback", BaseURL: "https://b"},
	}, map[string][]string{
		"gpt-4": {"gpt-4-fallback", "ghost-model", "gpt-4", "gpt-4-fallback"},
	})

	route, err := r.BuildRoute("gpt-4")
	require.NoError(t, err)
	require.Len(t, route, 2)
	assert.Equal(t, "gpt-4", route[0].Name)
	assert.Equal(t, "gpt-4-fallback", route[1].Name)
}

func TestBuildRoute_ModelNotFound(t *testing.T) {
	r := New(nil)
	_, err := r.BuildRoute("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestRegister_RejectsShadowingDefault(t *testing.T) {
	r := New(nil)
	r.LoadDefaults([]*models.Backend{{Name: "gpt-4", BaseURL: "https://a"}}, nil)

	_, err := r.Register(context.Background(), &models.Backend{Name: "gpt-4", BaseURL: "https://evil"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShadowsDefault))
}

func TestRegister_AddsAndReplaces(t *testing.T) {
	r := New(nil)

	res, err := r.Register(context.Background(), &models.Backend{Name: "custom", BaseURL: "https://a"}, nil)
	require.NoError(t, err)
	assert.False(t, res.Replaced)

	res, err = r.Register(context.Background(), &models.Backend{Name: "custom", BaseURL: "https://b"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Replaced)

	assert.Equal(t, "https://b", r.Lookup("custom").BaseURL)
}

func TestListNames_DefaultsFirstThenAdded(t *testing.T) {
	r := New(nil)
	r.LoadDefaults([]*models.Backend{{Name: "d1", BaseURL: "https://a"}, {Name: "d2", BaseURL: "https://b"}}, nil)
	_, err := r.Register(context.Background(), &models.Backend{Name: "added1", BaseURL: "https://c"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"d1", "d2", "added1"}, r.ListNames())
}

type fakeStore struct {
	upserts []*models.Backend
}

func (f *fakeStore) Upsert(_ context.Context, b *models.Backend) error {
	f.upserts = append(f.upserts, b)
	return nil
}

func TestRegister_PersistsToStore(t *testing.T) {
	store := &fakeStore{}
	r := New(store)

	_, err := r.Register(context.Background(), &models.Backend{Name: "custom", BaseURL: "https://a"}, nil)
	require.NoError(t, err)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "custom", store.upserts[0].Name)
}
