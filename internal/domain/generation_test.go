package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewGeneration(t *testing.T) {
	t.Parallel() // Enable parallel execution
	userID := uuid.New()

	gen, err := NewGeneration(userID, "a lighthouse at dusk", "replicate", "flux-schnell", AspectRatioWide, 1344, 768)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if gen.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}

	if gen.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, gen.UserID)
	}

	if gen.Status != GenerationStatusProcessing {
		t.Errorf("Expected status %s, got %s", GenerationStatusProcessing, gen.Status)
	}

	if gen.AspectRatio != AspectRatioWide {
		t.Errorf("Expected aspect ratio %s, got %s", AspectRatioWide, gen.AspectRatio)
	}

	if gen.CreatedAt.IsZero() {
		t.Error("Expected non-zero CreatedAt time")
	}

	// Unknown aspect ratios normalize to square instead of erroring
	gen, err = NewGeneration(userID, "a lighthouse at dusk", "replicate", "flux-schnell", "21:9", 0, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if gen.AspectRatio != AspectRatioSquare {
		t.Errorf("Expected aspect ratio %s, got %s", AspectRatioSquare, gen.AspectRatio)
	}

	// Test invalid userID
	_, err = NewGeneration(uuid.Nil, "prompt", "replicate", "", AspectRatioSquare, 0, 0)
	if err != ErrEmptyGenerationUserID {
		t.Errorf("Expected error %v, got %v", ErrEmptyGenerationUserID, err)
	}

	// Test empty prompt
	_, err = NewGeneration(userID, "", "replicate", "", AspectRatioSquare, 0, 0)
	if err != ErrEmptyPrompt {
		t.Errorf("Expected error %v, got %v", ErrEmptyPrompt, err)
	}

	// Test empty provider
	_, err = NewGeneration(userID, "prompt", "", "", AspectRatioSquare, 0, 0)
	if err != ErrEmptyProvider {
		t.Errorf("Expected error %v, got %v", ErrEmptyProvider, err)
	}
}

func TestGenerationValidate(t *testing.T) {
	t.Parallel() // Enable parallel execution
	validGen := Generation{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Prompt:   "a red bicycle",
		Provider: "openai",
		Status:   GenerationStatusProcessing,
	}

	if err := validGen.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	invalidGen := validGen
	invalidGen.ID = uuid.Nil
	if err := invalidGen.Validate(); err != ErrEmptyGenerationID {
		t.Errorf("Expected error %v, got %v", ErrEmptyGenerationID, err)
	}

	invalidGen = validGen
	invalidGen.Status = "exploded"
	if err := invalidGen.Validate(); err != ErrInvalidStatus {
		t.Errorf("Expected error %v, got %v", ErrInvalidStatus, err)
	}

	invalidGen = validGen
	invalidGen.CostEstimate = -0.01
	if err := invalidGen.Validate(); err != ErrNegativeCost {
		t.Errorf("Expected error %v, got %v", ErrNegativeCost, err)
	}
}

func TestGenerationTransitions(t *testing.T) {
	t.Parallel() // Enable parallel execution
	gen, err := NewGeneration(uuid.New(), "prompt", "replicate", "flux-schnell", AspectRatioSquare, 0, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if gen.IsTerminal() {
		t.Error("Expected processing generation to be non-terminal")
	}

	gen.Complete("gemini", "imagen-3.0-generate-002", "ab12cd34", "/images/ab12cd34.png", 0.02, 4200, "replicate")
	if !gen.IsTerminal() {
		t.Error("Expected completed generation to be terminal")
	}
	if gen.Status != GenerationStatusCompleted {
		t.Errorf("Expected status %s, got %s", GenerationStatusCompleted, gen.Status)
	}
	if gen.FailoverFrom != "replicate" {
		t.Errorf("Expected failover_from replicate, got %q", gen.FailoverFrom)
	}
	if gen.ImageURL == "" {
		t.Error("Expected completed generation to carry an image URL")
	}

	gen.Fail("all providers exhausted", 9000)
	if gen.Status != GenerationStatusFailed {
		t.Errorf("Expected status %s, got %s", GenerationStatusFailed, gen.Status)
	}
	if gen.ImageURL != "" || gen.ImageID != "" {
		t.Error("Expected failed generation to carry no image reference")
	}

	gen.MarkDeleted()
	if gen.Status != GenerationStatusDeleted {
		t.Errorf("Expected status %s, got %s", GenerationStatusDeleted, gen.Status)
	}
}
