package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/imagegen-api/internal/generation"
)

const (
	replicateName         = "replicate"
	replicateDefaultModel = "black-forest-labs/flux-schnell"
	replicateBaseURL      = "https://api.replicate.com"

	// replicatePollInterval is the delay between prediction status polls.
	replicatePollInterval = 2 * time.Second
)

// replicateCosts estimates the per-image cost in USD by model.
var replicateCosts = map[string]float64{
	"black-forest-labs/flux-schnell": 0.003,
	"black-forest-labs/flux-1.1-pro": 0.055,
	"stability-ai/sdxl":              0.004,
}

// Replicate is the generation.Provider adapter for the Replicate
// predictions API. A generation is a small fixed sequence: create the
// prediction, then poll its status until it reaches a terminal state.
type Replicate struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewReplicate creates a Replicate adapter. An empty token yields an
// unconfigured adapter that the registry will exclude.
func NewReplicate(token string, logger *slog.Logger) *Replicate {
	if logger == nil {
		logger = slog.Default()
	}

	return &Replicate{
		token:        token,
		baseURL:      replicateBaseURL,
		httpClient:   http.DefaultClient,
		pollInterval: replicatePollInterval,
		logger:       logger.With(slog.String("provider", replicateName)),
	}
}

// Ensure Replicate implements generation.Provider
var _ generation.Provider = (*Replicate)(nil)

// Name implements generation.Provider.Name
func (p *Replicate) Name() string {
	return replicateName
}

// IsConfigured implements generation.Provider.IsConfigured
func (p *Replicate) IsConfigured() bool {
	return p.token != ""
}

// AvailableModels implements generation.Provider.AvailableModels
func (p *Replicate) AvailableModels() []generation.ModelInfo {
	return []generation.ModelInfo{
		{ID: "black-forest-labs/flux-schnell", Name: "Flux Schnell", Description: "Fast, high quality"},
		{ID: "black-forest-labs/flux-1.1-pro", Name: "Flux 1.1 Pro", Description: "Best quality, slower"},
		{ID: "stability-ai/sdxl", Name: "SDXL", Description: "Stable Diffusion XL"},
	}
}

// replicatePrediction is the subset of the predictions API response we
// consume, shared by the create and poll calls.
type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
	Detail string `json:"detail"`
}

// Generate implements generation.Provider.Generate
// It creates a prediction for the model and polls until the prediction
// succeeds or fails, honoring context cancellation between polls.
func (p *Replicate) Generate(ctx context.Context, params generation.GenerateParams) (*generation.Result, error) {
	model := params.Model
	if model == "" {
		model = replicateDefaultModel
	}

	// Flux models take an aspect ratio; older models take pixel dimensions.
	var input map[string]any
	if strings.Contains(model, "flux") {
		input = map[string]any{
			"prompt":         params.Prompt,
			"num_outputs":    1,
			"aspect_ratio":   string(params.AspectRatio),
			"output_format":  "png",
			"output_quality": 90,
		}
	} else {
		width, height := params.Width, params.Height
		if width == 0 || height == 0 {
			width, height = 1024, 1024
		}
		input = map[string]any{
			"prompt":      params.Prompt,
			"width":       width,
			"height":      height,
			"num_outputs": 1,
		}
	}

	pred, err := p.createPrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}

	for !isReplicateTerminal(pred.Status) {
		select {
		case <-ctx.Done():
			return nil, generation.NewProviderError(replicateName, "prediction timed out", ctx.Err())
		case <-time.After(p.pollInterval):
		}

		pred, err = p.getPrediction(ctx, pred.URLs.Get)
		if err != nil {
			return nil, err
		}
	}

	if pred.Status != "succeeded" {
		msg := pred.Error
		if msg == "" {
			msg = fmt.Sprintf("prediction ended with status %q", pred.Status)
		}
		return nil, generation.NewProviderError(replicateName, msg, nil)
	}

	imageURL, err := firstOutputURL(pred.Output)
	if err != nil {
		return nil, generation.NewProviderError(replicateName, "no image in prediction output", err)
	}

	return &generation.Result{
		ImageURL:     imageURL,
		ModelUsed:    model,
		CostEstimate: replicateCosts[model],
	}, nil
}

// createPrediction starts a prediction for the given official model.
func (p *Replicate) createPrediction(
	ctx context.Context,
	model string,
	input map[string]any,
) (*replicatePrediction, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, generation.NewProviderError(replicateName, "failed to encode request", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s/predictions", p.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, generation.NewProviderError(replicateName, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	p.logger.DebugContext(ctx, "creating Replicate prediction", slog.String("model", model))

	return p.doPredictionRequest(req, http.StatusCreated)
}

// getPrediction polls the prediction's status URL.
func (p *Replicate) getPrediction(ctx context.Context, getURL string) (*replicatePrediction, error) {
	if getURL == "" {
		return nil, generation.NewProviderError(replicateName, "prediction carries no poll URL", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, generation.NewProviderError(replicateName, "failed to build poll request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	return p.doPredictionRequest(req, http.StatusOK)
}

// doPredictionRequest executes the request and decodes a prediction,
// mapping any non-success response to a ProviderError.
func (p *Replicate) doPredictionRequest(
	req *http.Request,
	wantStatus int,
) (*replicatePrediction, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, generation.NewProviderError(replicateName, "request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Error("failed to close response body", slog.String("error", err.Error()))
		}
	}()

	var pred replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, generation.NewProviderError(replicateName, "malformed response payload", err)
	}

	if resp.StatusCode != wantStatus {
		msg := pred.Detail
		if msg == "" {
			msg = fmt.Sprintf("API returned status %d", resp.StatusCode)
		}
		return nil, generation.NewProviderError(replicateName, msg, nil)
	}

	return &pred, nil
}

// isReplicateTerminal reports whether a prediction status is final.
func isReplicateTerminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

// firstOutputURL extracts the image URL from a prediction output, which is
// either a JSON array of URLs or a single URL string depending on the model.
func firstOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", fmt.Errorf("empty output")
	}

	var urls []string
	if err := json.Unmarshal(output, &urls); err == nil {
		if len(urls) == 0 || urls[0] == "" {
			return "", fmt.Errorf("empty output list")
		}
		return urls[0], nil
	}

	var single string
	if err := json.Unmarshal(output, &single); err != nil {
		return "", fmt.Errorf("unrecognized output shape: %w", err)
	}
	if single == "" {
		return "", fmt.Errorf("empty output")
	}
	return single, nil
}
