package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/imagegen-api/internal/generation"
	"google.golang.org/genai"
)

const (
	geminiName         = "gemini"
	geminiDefaultModel = "imagen-3.0-generate-002"
)

// geminiCosts estimates the per-image cost in USD by model.
var geminiCosts = map[string]float64{
	"imagen-3.0-generate-002":      0.02,
	"imagen-3.0-fast-generate-001": 0.01,
}

// Gemini is the generation.Provider adapter for Google's Imagen models,
// reached through the genai client. Imagen returns inline image bytes
// rather than a hosted URL.
type Gemini struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini adapter. An empty API key yields an
// unconfigured adapter that the registry will exclude; the client is only
// initialized when a key is present.
func NewGemini(ctx context.Context, apiKey string, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("provider", geminiName))

	if apiKey == "" {
		return &Gemini{logger: logger}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		logger: logger,
	}, nil
}

// Ensure Gemini implements generation.Provider
var _ generation.Provider = (*Gemini)(nil)

// Name implements generation.Provider.Name
func (p *Gemini) Name() string {
	return geminiName
}

// IsConfigured implements generation.Provider.IsConfigured
func (p *Gemini) IsConfigured() bool {
	return p.client != nil
}

// AvailableModels implements generation.Provider.AvailableModels
func (p *Gemini) AvailableModels() []generation.ModelInfo {
	return []generation.ModelInfo{
		{ID: "imagen-3.0-generate-002", Name: "Imagen 3", Description: "High quality Google model"},
		{ID: "imagen-3.0-fast-generate-001", Name: "Imagen 3 Fast", Description: "Faster generation"},
	}
}

// Generate implements generation.Provider.Generate
// It performs exactly one GenerateImages call and returns the inline image
// bytes from the first generated image.
func (p *Gemini) Generate(ctx context.Context, params generation.GenerateParams) (*generation.Result, error) {
	if p.client == nil {
		return nil, generation.NewProviderError(geminiName, "adapter is not configured", nil)
	}

	model := params.Model
	if model == "" {
		model = geminiDefaultModel
	}

	p.logger.DebugContext(ctx, "calling Imagen API", slog.String("model", model))

	resp, err := p.client.Models.GenerateImages(ctx, model, params.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    string(params.AspectRatio),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, generation.NewProviderError(geminiName, "image generation failed", err)
	}

	if len(resp.GeneratedImages) == 0 ||
		resp.GeneratedImages[0].Image == nil ||
		len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		return nil, generation.NewProviderError(geminiName, "no image in response", nil)
	}

	return &generation.Result{
		ImageData:    resp.GeneratedImages[0].Image.ImageBytes,
		ModelUsed:    model,
		CostEstimate: geminiCosts[model],
	}, nil
}
