package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
)

func TestReplicateGenerateCreateThenPoll(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost:
			assert.Equal(t, "/v1/models/black-forest-labs/flux-schnell/predictions", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"p1","status":"starting","urls":{"get":"%s/v1/predictions/p1"}}`, server.URL)

		case polls.Add(1) == 1:
			fmt.Fprintf(w, `{"id":"p1","status":"processing","urls":{"get":"%s/v1/predictions/p1"}}`, server.URL)

		default:
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["https://replicate.delivery/img.png"]}`))
		}
	}))
	defer server.Close()

	adapter := NewReplicate("test-token", nil)
	adapter.baseURL = server.URL
	adapter.pollInterval = time.Millisecond

	result, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "a lighthouse at dusk",
		AspectRatio: domain.AspectRatioSquare,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://replicate.delivery/img.png", result.ImageURL)
	assert.Equal(t, "black-forest-labs/flux-schnell", result.ModelUsed)
	assert.InDelta(t, 0.003, result.CostEstimate, 1e-9)
	assert.GreaterOrEqual(t, polls.Load(), int32(2), "should poll until the prediction is terminal")
}

func TestReplicateGenerateFailedPrediction(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p2","status":"failed","error":"NSFW content detected"}`))
	}))
	defer server.Close()

	adapter := NewReplicate("test-token", nil)
	adapter.baseURL = server.URL
	adapter.pollInterval = time.Millisecond

	_, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "something",
		AspectRatio: domain.AspectRatioSquare,
	})

	var provErr *generation.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "replicate", provErr.Provider)
	assert.Contains(t, provErr.Message, "NSFW")
}

func TestReplicateGenerateContextCancelledWhilePolling(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
		}
		fmt.Fprintf(w, `{"id":"p3","status":"processing","urls":{"get":"%s/v1/predictions/p3"}}`, server.URL)
	}))
	defer server.Close()

	adapter := NewReplicate("test-token", nil)
	adapter.baseURL = server.URL
	adapter.pollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	_, err := adapter.Generate(ctx, generation.GenerateParams{
		Prompt:      "something",
		AspectRatio: domain.AspectRatioSquare,
	})

	var provErr *generation.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReplicateNonFluxModelUsesDimensions(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p4","status":"succeeded","output":"https://replicate.delivery/sdxl.png"}`))
	}))
	defer server.Close()

	adapter := NewReplicate("test-token", nil)
	adapter.baseURL = server.URL

	result, err := adapter.Generate(context.Background(), generation.GenerateParams{
		Prompt:      "something",
		Model:       "stability-ai/sdxl",
		AspectRatio: domain.AspectRatioSquare,
		Width:       768,
		Height:      768,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/models/stability-ai/sdxl/predictions", gotPath)
	// Single-string output shape is also accepted.
	assert.Equal(t, "https://replicate.delivery/sdxl.png", result.ImageURL)
}
