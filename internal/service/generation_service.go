// Package service contains the application services that coordinate domain
// entities, stores, and external providers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/imagegen-api/internal/config"
	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
	"github.com/phrazzld/imagegen-api/internal/platform/filestore"
	"github.com/phrazzld/imagegen-api/internal/platform/logger"
	"github.com/phrazzld/imagegen-api/internal/service/ratelimit"
	"github.com/phrazzld/imagegen-api/internal/store"
)

// maxImageDownloadBytes caps how much we read when localizing a
// provider-hosted image. Generated PNGs are single-digit megabytes.
const maxImageDownloadBytes = 32 << 20

// GenerateRequest carries the validated inputs for one generation call.
// An empty Provider means "use the preference order"; an empty Model means
// the selected provider's default. The model override applies only to the
// first attempted provider, because model identifiers are provider-specific.
type GenerateRequest struct {
	Prompt      string
	Provider    string
	Model       string
	AspectRatio domain.AspectRatio
	Width       int
	Height      int
	Failover    bool
}

// ListParams narrows and pages a generation history query.
type ListParams struct {
	Provider string
	Status   domain.GenerationStatus
	Limit    int
	Offset   int
}

// UsageSummary reports a user's quota consumption alongside lifetime
// completed-generation totals.
type UsageSummary struct {
	Quota  ratelimit.Status
	Totals store.UsageTotals
}

// imageFetcher localizes a provider-hosted image URL. Split out so tests
// can exercise the orchestrator without a network.
type imageFetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// txRunner executes fn against a transactional view of the generation
// store. The default implementation wraps store.RunInTransaction; tests
// substitute one that skips the database.
type txRunner func(ctx context.Context, fn func(gens store.GenerationStore) error) error

// GenerationService orchestrates the full lifecycle of a generation call:
// quota check, provider selection, sequential failover attempts, image
// localization, and ledger bookkeeping. Every call that passes the quota
// and configuration gates produces exactly one ledger row, which ends in a
// terminal status before the call returns.
type GenerationService struct {
	registry        *generation.Registry
	generationStore store.GenerationStore
	limiter         *ratelimit.Limiter
	fileStore       *filestore.FileStore
	httpClient      imageFetcher
	attemptTimeout  time.Duration
	logger          *slog.Logger
	timeFunc        func() time.Time
	runTx           txRunner
}

// NewGenerationService creates the orchestrator. db backs the delete flow's
// transaction; httpClient fetches provider-hosted images and may be nil to
// use a default client.
func NewGenerationService(
	registry *generation.Registry,
	generationStore store.GenerationStore,
	limiter *ratelimit.Limiter,
	fileStore *filestore.FileStore,
	db *sql.DB,
	cfg config.ProvidersConfig,
	httpClient *http.Client,
	log *slog.Logger,
) *GenerationService {
	if registry == nil {
		panic("registry cannot be nil")
	}
	if generationStore == nil {
		panic("generationStore cannot be nil")
	}
	if limiter == nil {
		panic("limiter cannot be nil")
	}
	if fileStore == nil {
		panic("fileStore cannot be nil")
	}

	if log == nil {
		log = slog.Default()
	}

	var fetcher imageFetcher = httpClient
	if httpClient == nil {
		fetcher = &http.Client{Timeout: 60 * time.Second}
	}

	s := &GenerationService{
		registry:        registry,
		generationStore: generationStore,
		limiter:         limiter,
		fileStore:       fileStore,
		httpClient:      fetcher,
		attemptTimeout:  time.Duration(cfg.AttemptTimeoutSeconds) * time.Second,
		logger:          log.With(slog.String("component", "generation_service")),
		timeFunc:        time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(gens store.GenerationStore) error) error {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return fn(generationStore.WithTx(tx))
		})
	}

	return s
}

// Generate runs one end-to-end generation for the user.
//
// The quota check and candidate-list construction happen before any row is
// written, so a quota rejection or configuration error leaves no trace in
// the ledger. Once a processing row exists, the call always drives it to a
// terminal status: completed on the first successful attempt, failed when
// every candidate fails or the image cannot be localized.
func (s *GenerationService) Generate(
	ctx context.Context,
	userID uuid.UUID,
	req GenerateRequest,
) (*domain.Generation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.limiter.Check(ctx, userID); err != nil {
		return nil, err
	}

	candidates, err := s.registry.Candidates(req.Provider, req.Failover)
	if err != nil {
		log.Warn("no usable provider for generation request",
			slog.String("user_id", userID.String()),
			slog.String("requested_provider", req.Provider),
			slog.String("error", err.Error()))
		return nil, err
	}

	gen, err := domain.NewGeneration(
		userID,
		req.Prompt,
		candidates[0].Name(),
		req.Model,
		req.AspectRatio,
		req.Width,
		req.Height,
	)
	if err != nil {
		return nil, err
	}

	if err := s.generationStore.Create(ctx, gen); err != nil {
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}

	var lastErr error
	var prevProvider string
	var attempts int
	var lastElapsed int64
	for i, p := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			break
		}

		params := generation.GenerateParams{
			Prompt:      gen.Prompt,
			AspectRatio: gen.AspectRatio,
			Width:       gen.Width,
			Height:      gen.Height,
		}
		// Model identifiers are provider-specific, so the override only
		// makes sense for the provider the caller had in mind.
		if i == 0 {
			params.Model = req.Model
		}

		attempts++
		started := s.timeFunc()
		attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
		result, attemptErr := p.Generate(attemptCtx, params)
		cancel()
		// Duration covers this attempt's provider call only, not earlier
		// failed attempts and not the image download.
		elapsed := s.timeFunc().Sub(started).Milliseconds()
		lastElapsed = elapsed

		if attemptErr != nil {
			log.Warn("provider attempt failed",
				slog.String("generation_id", gen.ID.String()),
				slog.String("provider", p.Name()),
				slog.Int("attempt", i+1),
				slog.String("error", attemptErr.Error()))
			lastErr = attemptErr
			prevProvider = p.Name()
			continue
		}

		imageID, imageRef, storeErr := s.localizeImage(ctx, result)
		if storeErr != nil {
			// The provider produced an image we could not keep. Retrying
			// another provider would bill the user again for a local
			// failure, so the call fails here.
			s.finalizeFailure(ctx, gen, storeErr, elapsed)
			return nil, fmt.Errorf("failed to store generated image: %w", storeErr)
		}

		failoverFrom := ""
		if i > 0 {
			failoverFrom = prevProvider
		}

		gen.Complete(
			p.Name(),
			result.ModelUsed,
			imageID,
			imageRef,
			result.CostEstimate,
			elapsed,
			failoverFrom,
		)
		if err := s.generationStore.Update(ctx, gen); err != nil {
			return nil, fmt.Errorf("failed to record completed generation: %w", err)
		}

		log.Info("generation completed",
			slog.String("generation_id", gen.ID.String()),
			slog.String("user_id", userID.String()),
			slog.String("provider", gen.Provider),
			slog.String("model", gen.Model),
			slog.String("failover_from", failoverFrom),
			slog.Int64("duration_ms", elapsed))

		return gen, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no provider attempt was made")
	}

	s.finalizeFailure(ctx, gen, lastErr, lastElapsed)

	return nil, &generation.ProvidersExhaustedError{
		Attempted: attempts,
		LastErr:   lastErr,
	}
}

// finalizeFailure drives the row to the failed terminal state. A failure to
// persist the failure is logged but not surfaced; the caller already has
// the original error.
func (s *GenerationService) finalizeFailure(
	ctx context.Context,
	gen *domain.Generation,
	cause error,
	elapsedMs int64,
) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	gen.Fail(cause.Error(), elapsedMs)
	if err := s.generationStore.Update(ctx, gen); err != nil {
		log.Error("failed to record generation failure",
			slog.String("generation_id", gen.ID.String()),
			slog.String("error", err.Error()),
			slog.String("cause", cause.Error()))
	}
}

// localizeImage persists the attempt's output in the blob store, fetching
// it first when the provider hosts it remotely.
func (s *GenerationService) localizeImage(
	ctx context.Context,
	result *generation.Result,
) (imageID, imageRef string, err error) {
	data := result.ImageData
	if len(data) == 0 {
		if result.ImageURL == "" {
			return "", "", errors.New("provider returned neither image bytes nor an image URL")
		}
		data, err = s.fetchImage(ctx, result.ImageURL)
		if err != nil {
			return "", "", err
		}
	}

	return s.fileStore.Save(ctx, data)
}

// fetchImage downloads a provider-hosted image. Provider URLs are
// short-lived, so this happens immediately after the attempt succeeds.
func (s *GenerationService) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	return data, nil
}

// GetGeneration returns one of the user's generations. Rows belonging to
// other users and deleted rows surface as store.ErrGenerationNotFound so
// the API never confirms their existence.
func (s *GenerationService) GetGeneration(
	ctx context.Context,
	userID, id uuid.UUID,
) (*domain.Generation, error) {
	gen, err := s.generationStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if gen.UserID != userID || gen.Status == domain.GenerationStatusDeleted {
		return nil, store.ErrGenerationNotFound
	}

	return gen, nil
}

// ListGenerations returns a page of the user's generation history, newest
// first, together with the total count matching the filter.
func (s *GenerationService) ListGenerations(
	ctx context.Context,
	userID uuid.UUID,
	params ListParams,
) ([]*domain.Generation, int, error) {
	filter := store.GenerationFilter{
		Provider: params.Provider,
		Status:   params.Status,
	}

	total, err := s.generationStore.CountByUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, err
	}

	gens, err := s.generationStore.ListByUser(ctx, userID, filter, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, err
	}

	return gens, total, nil
}

// DeleteGeneration soft-deletes one of the user's generations and removes
// the stored image. The ledger row survives as status deleted so quota
// accounting keeps counting it. The row transition commits before the blob
// removal; an orphaned file is preferable to a row that references a
// missing one.
func (s *GenerationService) DeleteGeneration(ctx context.Context, userID, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var imageID string
	err := s.runTx(ctx, func(gens store.GenerationStore) error {
		gen, err := gens.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if gen.UserID != userID || gen.Status == domain.GenerationStatusDeleted {
			return store.ErrGenerationNotFound
		}

		imageID = gen.ImageID
		gen.MarkDeleted()
		return gens.Update(ctx, gen)
	})
	if err != nil {
		return err
	}

	if err := s.fileStore.Remove(ctx, imageID); err != nil {
		log.Warn("failed to remove image for deleted generation",
			slog.String("generation_id", id.String()),
			slog.String("image_id", imageID),
			slog.String("error", err.Error()))
	}

	log.Info("generation deleted",
		slog.String("generation_id", id.String()),
		slog.String("user_id", userID.String()))

	return nil
}

// UsageSummary returns the user's current quota consumption and lifetime
// completed totals.
func (s *GenerationService) UsageSummary(ctx context.Context, userID uuid.UUID) (*UsageSummary, error) {
	quota, err := s.limiter.Status(ctx, userID)
	if err != nil {
		return nil, err
	}

	totals, err := s.generationStore.UsageTotals(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UsageSummary{
		Quota:  *quota,
		Totals: *totals,
	}, nil
}
