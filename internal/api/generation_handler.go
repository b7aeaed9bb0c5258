package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/imagegen-api/internal/api/shared"
	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
	"github.com/phrazzld/imagegen-api/internal/service"
)

// Paging defaults for the history endpoint.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GenerationService is the orchestration surface the handler depends on.
// Implemented by service.GenerationService.
type GenerationService interface {
	Generate(ctx context.Context, userID uuid.UUID, req service.GenerateRequest) (*domain.Generation, error)
	GetGeneration(ctx context.Context, userID, id uuid.UUID) (*domain.Generation, error)
	ListGenerations(
		ctx context.Context,
		userID uuid.UUID,
		params service.ListParams,
	) ([]*domain.Generation, int, error)
	DeleteGeneration(ctx context.Context, userID, id uuid.UUID) error
	UsageSummary(ctx context.Context, userID uuid.UUID) (*service.UsageSummary, error)
}

// GenerationHandler handles image generation API requests.
type GenerationHandler struct {
	generationService GenerationService
	registry          *generation.Registry
	validator         *validator.Validate
}

// NewGenerationHandler creates a new GenerationHandler with the given
// dependencies.
func NewGenerationHandler(
	generationService GenerationService,
	registry *generation.Registry,
) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		registry:          registry,
		validator:         validator.New(),
	}
}

// Generate handles the POST /generations endpoint. The call is synchronous:
// the response carries the terminal generation row.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GenerateImageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	failover := true
	if req.Failover != nil {
		failover = *req.Failover
	}

	gen, err := h.generationService.Generate(r.Context(), userID, service.GenerateRequest{
		Prompt:      req.Prompt,
		Provider:    req.Provider,
		Model:       req.Model,
		AspectRatio: domain.AspectRatio(req.AspectRatio),
		Width:       req.Width,
		Height:      req.Height,
		Failover:    failover,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewGenerationResponse(gen))
}

// GetGeneration handles the GET /generations/{id} endpoint.
func (h *GenerationHandler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	userID, genID, ok := requireUserAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	gen, err := h.generationService.GetGeneration(r.Context(), userID, genID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewGenerationResponse(gen))
}

// ListGenerations handles the GET /generations endpoint. Supports provider,
// status, limit, and offset query parameters.
func (h *GenerationHandler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	params := service.ListParams{
		Provider: r.URL.Query().Get("provider"),
		Status:   domain.GenerationStatus(r.URL.Query().Get("status")),
		Limit:    defaultHistoryLimit,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		params.Limit = limit
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid offset parameter")
			return
		}
		params.Offset = offset
	}

	gens, total, err := h.generationService.ListGenerations(r.Context(), userID, params)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list generations")
		return
	}

	items := make([]GenerationResponse, 0, len(gens))
	for _, gen := range gens {
		items = append(items, NewGenerationResponse(gen))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, GenerationListResponse{
		Items:  items,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// DeleteGeneration handles the DELETE /generations/{id} endpoint.
func (h *GenerationHandler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	userID, genID, ok := requireUserAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.generationService.DeleteGeneration(r.Context(), userID, genID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListProviders handles the GET /providers endpoint, listing the configured
// providers and their model catalogs in preference order.
func (h *GenerationHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers := make([]ProviderResponse, 0)
	for _, name := range h.registry.Names() {
		p, ok := h.registry.Get(name)
		if !ok {
			continue
		}
		providers = append(providers, ProviderResponse{
			Name:   p.Name(),
			Models: p.AvailableModels(),
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ProvidersResponse{Providers: providers})
}

// GetUsage handles the GET /usage endpoint.
func (h *GenerationHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	summary, err := h.generationService.UsageSummary(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load usage summary")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, UsageResponse{
		DailyUsed:      summary.Quota.DailyUsed,
		DailyLimit:     summary.Quota.DailyLimit,
		MonthlyUsed:    summary.Quota.MonthlyUsed,
		MonthlyLimit:   summary.Quota.MonthlyLimit,
		CompletedCount: summary.Totals.CompletedCount,
		TotalCost:      summary.Totals.TotalCost,
	})
}
