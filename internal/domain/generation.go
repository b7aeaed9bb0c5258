package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus represents the lifecycle state of a generation attempt.
type GenerationStatus string

// Possible generation status values. A generation is created as processing
// and moves to exactly one terminal status: completed, failed, or deleted.
const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
	GenerationStatusDeleted    GenerationStatus = "deleted"
)

// AspectRatio is one of the fixed set of supported output shapes.
type AspectRatio string

// Supported aspect ratios. Values outside this set fall back to square.
const (
	AspectRatioSquare    AspectRatio = "1:1"
	AspectRatioWide      AspectRatio = "16:9"
	AspectRatioTall      AspectRatio = "9:16"
	AspectRatioLandscape AspectRatio = "4:3"
	AspectRatioPortrait  AspectRatio = "3:4"
)

// Common validation errors for Generation
var (
	ErrEmptyGenerationID     = errors.New("generation ID cannot be empty")
	ErrEmptyGenerationUserID = errors.New("generation user ID cannot be empty")
	ErrEmptyPrompt           = errors.New("generation prompt cannot be empty")
	ErrEmptyProvider         = errors.New("generation provider cannot be empty")
	ErrInvalidStatus         = errors.New("invalid generation status")
	ErrNegativeCost          = errors.New("generation cost estimate cannot be negative")
)

// Generation is the durable record of one end-to-end attempt to produce an
// image for a user. The orchestrator creates exactly one row per call and
// mutates it in place until it reaches a terminal status. ImageURL is set
// iff the status is completed; FailoverFrom names the provider that failed
// immediately before a successful failover attempt.
type Generation struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	Prompt       string           `json:"prompt"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Status       GenerationStatus `json:"status"`
	AspectRatio  AspectRatio      `json:"aspect_ratio"`
	Width        int              `json:"width,omitempty"`
	Height       int              `json:"height,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
	ImageID      string           `json:"image_id,omitempty"`
	CostEstimate float64          `json:"cost_estimate"`
	DurationMs   int64            `json:"duration_ms"`
	ErrorMessage string           `json:"error_message,omitempty"`
	FailoverFrom string           `json:"failover_from,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewGeneration creates a Generation in the processing state for the given
// user, prompt, and first candidate provider. Aspect ratios outside the
// supported set are normalized to square rather than rejected.
// Returns an error if validation fails.
func NewGeneration(
	userID uuid.UUID,
	prompt, provider, model string,
	aspectRatio AspectRatio,
	width, height int,
) (*Generation, error) {
	gen := &Generation{
		ID:          uuid.New(),
		UserID:      userID,
		Prompt:      prompt,
		Provider:    provider,
		Model:       model,
		Status:      GenerationStatusProcessing,
		AspectRatio: NormalizeAspectRatio(aspectRatio),
		Width:       width,
		Height:      height,
		CreatedAt:   time.Now().UTC(),
	}

	if err := gen.Validate(); err != nil {
		return nil, err
	}

	return gen, nil
}

// Validate checks if the Generation has valid data.
// Returns an error if any field fails validation.
func (g *Generation) Validate() error {
	if g.ID == uuid.Nil {
		return ErrEmptyGenerationID
	}

	if g.UserID == uuid.Nil {
		return ErrEmptyGenerationUserID
	}

	if g.Prompt == "" {
		return ErrEmptyPrompt
	}

	if g.Provider == "" {
		return ErrEmptyProvider
	}

	if !isValidGenerationStatus(g.Status) {
		return ErrInvalidStatus
	}

	if g.CostEstimate < 0 {
		return ErrNegativeCost
	}

	return nil
}

// Complete transitions the generation to the completed terminal state with
// the outcome of the successful provider attempt. failoverFrom is empty when
// the first candidate succeeded.
func (g *Generation) Complete(
	provider, model, imageID, imageURL string,
	costEstimate float64,
	durationMs int64,
	failoverFrom string,
) {
	g.Status = GenerationStatusCompleted
	g.Provider = provider
	g.Model = model
	g.ImageID = imageID
	g.ImageURL = imageURL
	g.CostEstimate = costEstimate
	g.DurationMs = durationMs
	g.FailoverFrom = failoverFrom
	g.ErrorMessage = ""
}

// Fail transitions the generation to the failed terminal state, recording
// the last provider error. A failed generation never carries an image
// reference.
func (g *Generation) Fail(message string, durationMs int64) {
	g.Status = GenerationStatusFailed
	g.ErrorMessage = message
	g.DurationMs = durationMs
	g.ImageID = ""
	g.ImageURL = ""
}

// MarkDeleted transitions the generation to the deleted terminal state.
// Only reachable via an explicit deletion request, never during generation.
func (g *Generation) MarkDeleted() {
	g.Status = GenerationStatusDeleted
}

// IsTerminal reports whether the generation has reached a state with no
// further automatic transitions.
func (g *Generation) IsTerminal() bool {
	switch g.Status {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusDeleted:
		return true
	default:
		return false
	}
}

// NormalizeAspectRatio maps unknown aspect ratio values to the square
// default. An empty value also normalizes to square.
func NormalizeAspectRatio(ar AspectRatio) AspectRatio {
	switch ar {
	case AspectRatioSquare, AspectRatioWide, AspectRatioTall,
		AspectRatioLandscape, AspectRatioPortrait:
		return ar
	default:
		return AspectRatioSquare
	}
}

// isValidGenerationStatus checks if the given status is a valid GenerationStatus.
func isValidGenerationStatus(status GenerationStatus) bool {
	switch status {
	case GenerationStatusPending, GenerationStatusProcessing,
		GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusDeleted:
		return true
	default:
		return false
	}
}
