package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
)

func TestOpenAIGenerateSuccess(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"url":"https://cdn.example.com/img.png"}]}`))
	}))
	defer server.Close()

	adapter := NewOpenAI("test-key", nil)
	adapter.baseURL = server.URL

	result, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "a red bicycle",
		AspectRatio: domain.AspectRatioWide,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/img.png", result.ImageURL)
	assert.Equal(t, "dall-e-3", result.ModelUsed, "empty model should select the default")
	assert.InDelta(t, 0.04, result.CostEstimate, 1e-9)

	// The wide aspect ratio maps to the landscape size the API accepts.
	assert.Equal(t, "1792x1024", gotBody["size"])
	assert.Equal(t, float64(1), gotBody["n"])
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your prompt was rejected"}}`))
	}))
	defer server.Close()

	adapter := NewOpenAI("test-key", nil)
	adapter.baseURL = server.URL

	_, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "something",
		AspectRatio: domain.AspectRatioSquare,
	})
	require.Error(t, err)

	var provErr *generation.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "openai", provErr.Provider)
	assert.Contains(t, provErr.Message, "rejected")
}

func TestOpenAIGenerateEmptyResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	adapter := NewOpenAI("test-key", nil)
	adapter.baseURL = server.URL

	_, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "something",
		AspectRatio: domain.AspectRatioSquare,
	})

	var provErr *generation.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Message, "no image")
}

func TestOpenAIIsConfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, NewOpenAI("", nil).IsConfigured())
	assert.True(t, NewOpenAI("sk-something", nil).IsConfigured())
}
