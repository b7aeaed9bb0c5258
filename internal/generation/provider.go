package generation

import (
	"context"

	"github.com/phrazzld/imagegen-api/internal/domain"
)

// ModelInfo describes one model from a provider's static catalog.
// Used by discovery endpoints only; it never influences orchestration.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GenerateParams carries the normalized inputs for a single provider attempt.
type GenerateParams struct {
	Prompt      string
	Model       string // empty means the provider's default model
	AspectRatio domain.AspectRatio
	Width       int
	Height      int
}

// Result is the common outcome shape every adapter normalizes into.
// Exactly one of ImageURL or ImageData is populated: ImageURL when the
// provider hosts the output remotely, ImageData when it returns inline
// bytes. ModelUsed is the model that actually ran, which may be the
// provider's default rather than the requested one.
type Result struct {
	ImageURL     string
	ImageData    []byte
	ModelUsed    string
	CostEstimate float64
}

// Provider is the capability interface implemented once per external
// image-generation service. Adapters translate GenerateParams into a
// provider-specific call and map every non-success response, timeout, or
// malformed payload to a *ProviderError — never a partial result.
//
// Generate may incur real monetary cost on the provider side even when the
// caller's subsequent persistence fails, so it must be treated as
// non-idempotent and never retried blindly.
type Provider interface {
	// Name returns the provider identifier, e.g. "replicate" or "openai".
	Name() string

	// IsConfigured reports whether the credentials required to call the
	// service are present. Unconfigured providers are excluded from
	// candidate lists without raising an error.
	IsConfigured() bool

	// AvailableModels returns the provider's static model catalog in
	// display order.
	AvailableModels() []ModelInfo

	// Generate performs exactly one network call (or a small fixed
	// sequence, e.g. request + poll) and returns the normalized result.
	// The context bounds the attempt; adapters must honor cancellation.
	Generate(ctx context.Context, params GenerateParams) (*Result, error)
}
