package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/platform/logger"
	"github.com/phrazzld/imagegen-api/internal/store"
)

// PostgresGenerationStore implements the store.GenerationStore interface
// using a PostgreSQL database as the storage backend.
type PostgresGenerationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresGenerationStore creates a new PostgreSQL implementation of the
// GenerationStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresGenerationStore(db store.DBTX, log *slog.Logger) *PostgresGenerationStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	return &PostgresGenerationStore{
		db:     db,
		logger: log.With(slog.String("component", "generation_store")),
	}
}

// Ensure PostgresGenerationStore implements store.GenerationStore interface
var _ store.GenerationStore = (*PostgresGenerationStore)(nil)

// WithTx implements store.GenerationStore.WithTx
func (s *PostgresGenerationStore) WithTx(tx *sql.Tx) store.GenerationStore {
	return &PostgresGenerationStore{
		db:     tx,
		logger: s.logger,
	}
}

// generationColumns is the column list shared by every SELECT in this store.
const generationColumns = `
	id, user_id, prompt, provider, model, status, aspect_ratio,
	width, height, image_url, image_id, cost_estimate, duration_ms,
	error_message, failover_from, created_at
`

// Create implements store.GenerationStore.Create
// It persists a new generation row, handling domain validation.
// Returns store.ErrInvalidEntity if the user ID doesn't exist.
func (s *PostgresGenerationStore) Create(ctx context.Context, gen *domain.Generation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := gen.Validate(); err != nil {
		log.Warn("generation validation failed during create",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()))
		return err
	}

	query := `
		INSERT INTO generations (
			id, user_id, prompt, provider, model, status, aspect_ratio,
			width, height, image_url, image_id, cost_estimate, duration_ms,
			error_message, failover_from, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		gen.ID,
		gen.UserID,
		gen.Prompt,
		gen.Provider,
		gen.Model,
		gen.Status,
		gen.AspectRatio,
		gen.Width,
		gen.Height,
		nullString(gen.ImageURL),
		nullString(gen.ImageID),
		gen.CostEstimate,
		gen.DurationMs,
		nullString(gen.ErrorMessage),
		nullString(gen.FailoverFrom),
		gen.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()),
			slog.String("user_id", gen.UserID.String()))
		return MapError(err)
	}

	log.Info("generation created",
		slog.String("generation_id", gen.ID.String()),
		slog.String("user_id", gen.UserID.String()),
		slog.String("provider", gen.Provider))
	return nil
}

// Update implements store.GenerationStore.Update
// It saves the mutable fields of an existing generation row.
// Returns store.ErrGenerationNotFound if the generation does not exist.
func (s *PostgresGenerationStore) Update(ctx context.Context, gen *domain.Generation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := gen.Validate(); err != nil {
		log.Warn("generation validation failed during update",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()))
		return err
	}

	query := `
		UPDATE generations
		SET provider = $1, model = $2, status = $3, image_url = $4,
			image_id = $5, cost_estimate = $6, duration_ms = $7,
			error_message = $8, failover_from = $9
		WHERE id = $10
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		gen.Provider,
		gen.Model,
		gen.Status,
		nullString(gen.ImageURL),
		nullString(gen.ImageID),
		gen.CostEstimate,
		gen.DurationMs,
		nullString(gen.ErrorMessage),
		nullString(gen.FailoverFrom),
		gen.ID,
	)
	if err != nil {
		log.Error("failed to update generation",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("error", err.Error()),
			slog.String("generation_id", gen.ID.String()))
		return err
	}

	if rowsAffected == 0 {
		log.Debug("generation not found for update",
			slog.String("generation_id", gen.ID.String()))
		return store.ErrGenerationNotFound
	}

	log.Info("generation updated",
		slog.String("generation_id", gen.ID.String()),
		slog.String("status", string(gen.Status)))
	return nil
}

// GetByID implements store.GenerationStore.GetByID
// Returns store.ErrGenerationNotFound if the generation does not exist.
func (s *PostgresGenerationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Generation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1`

	gen, err := scanGeneration(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			log.Debug("generation not found", slog.String("generation_id", id.String()))
			return nil, store.ErrGenerationNotFound
		}
		log.Error("failed to get generation by ID",
			slog.String("error", err.Error()),
			slog.String("generation_id", id.String()))
		return nil, MapError(err)
	}

	return gen, nil
}

// CountNonFailedSince implements store.GenerationStore.CountNonFailedSince
// The count reads committed rows only; see the interface contract for the
// accepted check-then-act race at quota boundaries.
func (s *PostgresGenerationStore) CountNonFailedSince(
	ctx context.Context,
	userID uuid.UUID,
	since time.Time,
) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*)
		FROM generations
		WHERE user_id = $1
		  AND created_at >= $2
		  AND status <> $3
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, since, domain.GenerationStatusFailed).Scan(&count)
	if err != nil {
		log.Error("failed to count generations",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, MapError(err)
	}

	return count, nil
}

// CountByUser implements store.GenerationStore.CountByUser
func (s *PostgresGenerationStore) CountByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.GenerationFilter,
) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*)
		FROM generations
		WHERE user_id = $1
		  AND ($2 = '' OR provider = $2)
		  AND ($3 = '' OR status = $3)
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, filter.Provider, string(filter.Status)).Scan(&count)
	if err != nil {
		log.Error("failed to count generations by filter",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return 0, MapError(err)
	}

	return count, nil
}

// ListByUser implements store.GenerationStore.ListByUser
// Results are ordered by creation time descending.
func (s *PostgresGenerationStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	filter store.GenerationFilter,
	limit, offset int,
) ([]*domain.Generation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		limit = 20 // Default page size
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + generationColumns + `
		FROM generations
		WHERE user_id = $1
		  AND ($2 = '' OR provider = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := s.db.QueryContext(ctx, query, userID, filter.Provider, string(filter.Status), limit, offset)
	if err != nil {
		log.Error("failed to list generations",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	generations := []*domain.Generation{}
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			log.Error("failed to scan generation row",
				slog.String("error", err.Error()))
			return nil, err
		}
		generations = append(generations, gen)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows",
			slog.String("error", err.Error()))
		return nil, err
	}

	return generations, nil
}

// UsageTotals implements store.GenerationStore.UsageTotals
func (s *PostgresGenerationStore) UsageTotals(
	ctx context.Context,
	userID uuid.UUID,
) (*store.UsageTotals, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*), COALESCE(SUM(cost_estimate), 0)
		FROM generations
		WHERE user_id = $1 AND status = $2
	`

	totals := &store.UsageTotals{}
	err := s.db.QueryRowContext(ctx, query, userID, domain.GenerationStatusCompleted).
		Scan(&totals.CompletedCount, &totals.TotalCost)
	if err != nil {
		log.Error("failed to compute usage totals",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}

	return totals, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanGeneration scans one generation row, converting NULLable columns back
// to their empty-string zero values.
func scanGeneration(row rowScanner) (*domain.Generation, error) {
	var gen domain.Generation
	var status, aspectRatio string
	var imageURL, imageID, errorMessage, failoverFrom sql.NullString

	err := row.Scan(
		&gen.ID,
		&gen.UserID,
		&gen.Prompt,
		&gen.Provider,
		&gen.Model,
		&status,
		&aspectRatio,
		&gen.Width,
		&gen.Height,
		&imageURL,
		&imageID,
		&gen.CostEstimate,
		&gen.DurationMs,
		&errorMessage,
		&failoverFrom,
		&gen.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	gen.Status = domain.GenerationStatus(status)
	gen.AspectRatio = domain.AspectRatio(aspectRatio)
	gen.ImageURL = imageURL.String
	gen.ImageID = imageID.String
	gen.ErrorMessage = errorMessage.String
	gen.FailoverFrom = failoverFrom.String

	return &gen, nil
}

// nullString converts an empty string to NULL so the database-level
// invariants (image_url set iff completed, failover_from set iff a failover
// occurred) stay queryable.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
