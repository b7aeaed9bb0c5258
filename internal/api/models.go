package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

// UserResponse defines the payload returned by the current-user endpoint.
type UserResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateImageRequest defines the payload for the image generation
// endpoint. Provider and Model are optional; Failover defaults to true when
// omitted.
type GenerateImageRequest struct {
	Prompt      string `json:"prompt"       validate:"required,max=2000"`
	Provider    string `json:"provider"     validate:"omitempty,oneof=replicate openai gemini"`
	Model       string `json:"model"        validate:"omitempty,max=200"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4"`
	Width       int    `json:"width"        validate:"omitempty,gt=0,lte=4096"`
	Height      int    `json:"height"       validate:"omitempty,gt=0,lte=4096"`
	Failover    *bool  `json:"failover"`
}

// GenerationResponse is the API shape of one generation ledger row.
type GenerationResponse struct {
	ID           uuid.UUID `json:"id"`
	Prompt       string    `json:"prompt"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Status       string    `json:"status"`
	AspectRatio  string    `json:"aspect_ratio"`
	ImageURL     string    `json:"image_url,omitempty"`
	CostEstimate float64   `json:"cost_estimate"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FailoverFrom string    `json:"failover_from,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewGenerationResponse converts a domain generation to its API shape.
func NewGenerationResponse(gen *domain.Generation) GenerationResponse {
	return GenerationResponse{
		ID:           gen.ID,
		Prompt:       gen.Prompt,
		Provider:     gen.Provider,
		Model:        gen.Model,
		Status:       string(gen.Status),
		AspectRatio:  string(gen.AspectRatio),
		ImageURL:     gen.ImageURL,
		CostEstimate: gen.CostEstimate,
		DurationMs:   gen.DurationMs,
		ErrorMessage: gen.ErrorMessage,
		FailoverFrom: gen.FailoverFrom,
		CreatedAt:    gen.CreatedAt,
	}
}

// GenerationListResponse pages a user's generation history.
type GenerationListResponse struct {
	Items  []GenerationResponse `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ProviderResponse describes one configured provider for discovery.
type ProviderResponse struct {
	Name   string                 `json:"name"`
	Models []generation.ModelInfo `json:"models"`
}

// ProvidersResponse lists configured providers in preference order.
type ProvidersResponse struct {
	Providers []ProviderResponse `json:"providers"`
}

// UsageResponse reports quota consumption and lifetime totals.
type UsageResponse struct {
	DailyUsed      int     `json:"daily_used"`
	DailyLimit     int     `json:"daily_limit"`
	MonthlyUsed    int     `json:"monthly_used"`
	MonthlyLimit   int     `json:"monthly_limit"`
	CompletedCount int     `json:"completed_count"`
	TotalCost      float64 `json:"total_cost"`
}
