package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagegen-api/internal/domain"
)

// GenerationFilter narrows list and count queries over a user's generations.
// Zero values mean "no filter" for the corresponding field.
type GenerationFilter struct {
	Provider string
	Status   domain.GenerationStatus
}

// UsageTotals aggregates a user's completed generations for usage reporting.
type UsageTotals struct {
	CompletedCount int
	TotalCost      float64
}

// GenerationStore defines the interface for the durable generation ledger.
// The orchestrator exclusively owns status transitions: every write to a
// row after creation originates from the single call that created it.
type GenerationStore interface {
	// Create persists a new generation row.
	// It handles domain validation internally.
	Create(ctx context.Context, gen *domain.Generation) error

	// Update saves changes to an existing generation.
	// Returns ErrGenerationNotFound if the generation does not exist.
	Update(ctx context.Context, gen *domain.Generation) error

	// GetByID retrieves a generation by its unique ID.
	// Returns ErrGenerationNotFound if the generation does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Generation, error)

	// CountNonFailedSince counts the user's generations created at or after
	// the given instant whose status is not failed. The count reflects all
	// committed rows at read time; it must never undercount, though two
	// concurrent rate checks may both read before either writer commits.
	CountNonFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// CountByUser counts the user's generations matching the filter.
	CountByUser(ctx context.Context, userID uuid.UUID, filter GenerationFilter) (int, error)

	// ListByUser returns the user's generations matching the filter,
	// ordered by creation time descending, paginated by limit and offset.
	// Returns an empty slice when nothing matches.
	ListByUser(
		ctx context.Context,
		userID uuid.UUID,
		filter GenerationFilter,
		limit, offset int,
	) ([]*domain.Generation, error)

	// UsageTotals returns the count and summed cost estimate of the user's
	// completed generations.
	UsageTotals(ctx context.Context, userID uuid.UUID) (*UsageTotals, error)

	// WithTx returns a new GenerationStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) GenerationStore
}
