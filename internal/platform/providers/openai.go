package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
)

const (
	openaiName         = "openai"
	openaiDefaultModel = "dall-e-3"
	openaiBaseURL      = "https://api.openai.com"
)

// openaiCosts estimates the per-image cost in USD by model.
var openaiCosts = map[string]float64{
	"dall-e-3": 0.04,
	"dall-e-2": 0.02,
}

// openaiSizes maps aspect ratios to the discrete sizes the images API
// accepts. Ratios without a native size render square.
var openaiSizes = map[domain.AspectRatio]string{
	domain.AspectRatioSquare: "1024x1024",
	domain.AspectRatioWide:   "1792x1024",
	domain.AspectRatioTall:   "1024x1792",
}

// OpenAI is the generation.Provider adapter for the OpenAI images API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAI creates an OpenAI adapter. An empty API key yields an
// unconfigured adapter that the registry will exclude.
func NewOpenAI(apiKey string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		apiKey:     apiKey,
		baseURL:    openaiBaseURL,
		httpClient: http.DefaultClient,
		logger:     logger.With(slog.String("provider", openaiName)),
	}
}

// Ensure OpenAI implements generation.Provider
var _ generation.Provider = (*OpenAI)(nil)

// Name implements generation.Provider.Name
func (p *OpenAI) Name() string {
	return openaiName
}

// IsConfigured implements generation.Provider.IsConfigured
func (p *OpenAI) IsConfigured() bool {
	return p.apiKey != ""
}

// AvailableModels implements generation.Provider.AvailableModels
func (p *OpenAI) AvailableModels() []generation.ModelInfo {
	return []generation.ModelInfo{
		{ID: "dall-e-3", Name: "DALL-E 3", Description: "Latest model, high quality"},
		{ID: "dall-e-2", Name: "DALL-E 2", Description: "Faster, lower cost"},
	}
}

// openaiRequest is the images API request body.
type openaiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

// openaiResponse is the subset of the images API response we consume.
type openaiResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements generation.Provider.Generate
// It performs exactly one call to the images API and returns the hosted
// image URL on success.
func (p *OpenAI) Generate(ctx context.Context, params generation.GenerateParams) (*generation.Result, error) {
	model := params.Model
	if model == "" {
		model = openaiDefaultModel
	}

	size, ok := openaiSizes[params.AspectRatio]
	if !ok {
		size = openaiSizes[domain.AspectRatioSquare]
	}

	body, err := json.Marshal(openaiRequest{
		Model:          model,
		Prompt:         params.Prompt,
		N:              1,
		Size:           size,
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, generation.NewProviderError(openaiName, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/v1/images/generations",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, generation.NewProviderError(openaiName, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	p.logger.DebugContext(ctx, "calling OpenAI images API",
		slog.String("model", model),
		slog.String("size", size))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, generation.NewProviderError(openaiName, "request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Error("failed to close response body", slog.String("error", err.Error()))
		}
	}()

	var decoded openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, generation.NewProviderError(openaiName, "malformed response payload", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("API returned status %d", resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		return nil, generation.NewProviderError(openaiName, msg, nil)
	}

	if len(decoded.Data) == 0 || decoded.Data[0].URL == "" {
		return nil, generation.NewProviderError(openaiName, "no image in response", nil)
	}

	return &generation.Result{
		ImageURL:     decoded.Data[0].URL,
		ModelUsed:    model,
		CostEstimate: openaiCosts[model],
	}, nil
}
