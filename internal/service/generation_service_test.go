package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imagegen-api/internal/config"
	"github.com/phrazzld/imagegen-api/internal/domain"
	"github.com/phrazzld/imagegen-api/internal/generation"
	"github.com/phrazzld/imagegen-api/internal/platform/filestore"
	"github.com/phrazzld/imagegen-api/internal/service/ratelimit"
	"github.com/phrazzld/imagegen-api/internal/store"
)

// memGenerationStore is an in-memory store.GenerationStore for orchestrator
// tests. It keeps full row history so tests can assert exactly what was
// written.
type memGenerationStore struct {
	rows map[uuid.UUID]*domain.Generation
}

func newMemGenerationStore() *memGenerationStore {
	return &memGenerationStore{rows: make(map[uuid.UUID]*domain.Generation)}
}

func (m *memGenerationStore) Create(_ context.Context, gen *domain.Generation) error {
	if err := gen.Validate(); err != nil {
		return err
	}
	copied := *gen
	m.rows[gen.ID] = &copied
	return nil
}

func (m *memGenerationStore) Update(_ context.Context, gen *domain.Generation) error {
	if _, ok := m.rows[gen.ID]; !ok {
		return store.ErrGenerationNotFound
	}
	copied := *gen
	m.rows[gen.ID] = &copied
	return nil
}

func (m *memGenerationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Generation, error) {
	gen, ok := m.rows[id]
	if !ok {
		return nil, store.ErrGenerationNotFound
	}
	copied := *gen
	return &copied, nil
}

func (m *memGenerationStore) CountNonFailedSince(
	_ context.Context,
	userID uuid.UUID,
	since time.Time,
) (int, error) {
	count := 0
	for _, gen := range m.rows {
		if gen.UserID == userID &&
			gen.Status != domain.GenerationStatusFailed &&
			!gen.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memGenerationStore) CountByUser(
	_ context.Context,
	userID uuid.UUID,
	filter store.GenerationFilter,
) (int, error) {
	return len(m.matching(userID, filter)), nil
}

func (m *memGenerationStore) ListByUser(
	_ context.Context,
	userID uuid.UUID,
	filter store.GenerationFilter,
	limit, offset int,
) ([]*domain.Generation, error) {
	gens := m.matching(userID, filter)
	sort.Slice(gens, func(i, j int) bool {
		return gens[i].CreatedAt.After(gens[j].CreatedAt)
	})
	if offset >= len(gens) {
		return nil, nil
	}
	gens = gens[offset:]
	if limit > 0 && limit < len(gens) {
		gens = gens[:limit]
	}
	return gens, nil
}

func (m *memGenerationStore) UsageTotals(
	_ context.Context,
	userID uuid.UUID,
) (*store.UsageTotals, error) {
	totals := &store.UsageTotals{}
	for _, gen := range m.rows {
		if gen.UserID == userID && gen.Status == domain.GenerationStatusCompleted {
			totals.CompletedCount++
			totals.TotalCost += gen.CostEstimate
		}
	}
	return totals, nil
}

func (m *memGenerationStore) WithTx(_ *sql.Tx) store.GenerationStore { return m }

func (m *memGenerationStore) matching(
	userID uuid.UUID,
	filter store.GenerationFilter,
) []*domain.Generation {
	var gens []*domain.Generation
	for _, gen := range m.rows {
		if gen.UserID != userID {
			continue
		}
		if filter.Provider != "" && gen.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && gen.Status != filter.Status {
			continue
		}
		copied := *gen
		gens = append(gens, &copied)
	}
	return gens
}

// stubProvider is a scriptable generation.Provider. onGenerate, when set,
// runs at the start of every Generate call; tests use it to advance a fake
// clock.
type stubProvider struct {
	name       string
	result     *generation.Result
	err        error
	gotParams  []generation.GenerateParams
	onGenerate func()
}

func (p *stubProvider) Name() string                            { return p.name }
func (p *stubProvider) IsConfigured() bool                      { return true }
func (p *stubProvider) AvailableModels() []generation.ModelInfo { return nil }

func (p *stubProvider) Generate(
	ctx context.Context,
	params generation.GenerateParams,
) (*generation.Result, error) {
	p.gotParams = append(p.gotParams, params)
	if p.onGenerate != nil {
		p.onGenerate()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type serviceFixture struct {
	svc   *GenerationService
	store *memGenerationStore
	dir   string
}

func newServiceFixture(
	t *testing.T,
	limits config.LimitsConfig,
	order []string,
	providers ...generation.Provider,
) *serviceFixture {
	t.Helper()

	memStore := newMemGenerationStore()
	limiter := ratelimit.NewLimiter(memStore, limits, nil)
	registry := generation.NewRegistry(order, providers...)

	dir := t.TempDir()
	files, err := filestore.New(dir, "/images", nil)
	require.NoError(t, err)

	svc := NewGenerationService(
		registry,
		memStore,
		limiter,
		files,
		nil,
		config.ProvidersConfig{AttemptTimeoutSeconds: 5},
		nil,
		nil,
	)
	svc.runTx = func(ctx context.Context, fn func(gens store.GenerationStore) error) error {
		return fn(memStore)
	}

	return &serviceFixture{svc: svc, store: memStore, dir: dir}
}

func defaultLimits() config.LimitsConfig {
	return config.LimitsConfig{DailyGenerations: 50, MonthlyGenerations: 500}
}

func TestGenerateFailoverToSecondProvider(t *testing.T) {
	t.Parallel()

	first := &stubProvider{
		name: "replicate",
		err:  generation.NewProviderError("replicate", "rate limited", nil),
	}
	second := &stubProvider{
		name: "openai",
		result: &generation.Result{
			ImageData:    []byte("fake-png-bytes"),
			ModelUsed:    "dall-e-3",
			CostEstimate: 0.04,
		},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate", "openai"}, first, second)

	userID := uuid.New()
	gen, err := f.svc.Generate(context.Background(), userID, GenerateRequest{
		Prompt:      "a lighthouse at dusk",
		AspectRatio: domain.AspectRatioWide,
		Failover:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.GenerationStatusCompleted, gen.Status)
	assert.Equal(t, "openai", gen.Provider)
	assert.Equal(t, "dall-e-3", gen.Model)
	assert.Equal(t, "replicate", gen.FailoverFrom)
	assert.Equal(t, 0.04, gen.CostEstimate)
	assert.NotEmpty(t, gen.ImageID)
	assert.Equal(t, "/images/"+gen.ImageID+".png", gen.ImageURL)

	// Exactly one ledger row, and the stored row matches the returned one.
	require.Len(t, f.store.rows, 1)
	stored, err := f.store.GetByID(context.Background(), gen.ID)
	require.NoError(t, err)
	assert.Equal(t, gen.Status, stored.Status)
	assert.Equal(t, gen.FailoverFrom, stored.FailoverFrom)

	// The image landed on disk.
	data, err := os.ReadFile(filepath.Join(f.dir, gen.ImageID+".png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-png-bytes"), data)
}

func TestGenerateModelOverrideOnlyFirstAttempt(t *testing.T) {
	t.Parallel()

	first := &stubProvider{
		name: "openai",
		err:  generation.NewProviderError("openai", "server error", nil),
	}
	second := &stubProvider{
		name: "replicate",
		result: &generation.Result{
			ImageData:    []byte("x"),
			ModelUsed:    "black-forest-labs/flux-schnell",
			CostEstimate: 0.003,
		},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"openai", "replicate"}, first, second)

	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a red bicycle",
		Provider: "openai",
		Model:    "dall-e-2",
		Failover: true,
	})
	require.NoError(t, err)

	require.Len(t, first.gotParams, 1)
	assert.Equal(t, "dall-e-2", first.gotParams[0].Model,
		"explicit model should reach the named provider")
	require.Len(t, second.gotParams, 1)
	assert.Empty(t, second.gotParams[0].Model,
		"failover attempts must use the provider default model")
}

func TestGenerateNoProvidersConfigured(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, defaultLimits(), nil)

	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "anything",
		Failover: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrNoProviderConfigured)

	assert.Empty(t, f.store.rows, "configuration errors must not create ledger rows")
}

func TestGenerateQuotaExceeded(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	limits := config.LimitsConfig{DailyGenerations: 2, MonthlyGenerations: 500}
	f := newServiceFixture(t, limits, []string{"replicate"}, provider)

	userID := uuid.New()
	for i := 0; i < 2; i++ {
		_, err := f.svc.Generate(context.Background(), userID, GenerateRequest{
			Prompt:   "warm-up",
			Failover: true,
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Generate(context.Background(), userID, GenerateRequest{
		Prompt:   "one too many",
		Failover: true,
	})
	require.Error(t, err)

	var quotaErr *ratelimit.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, ratelimit.ScopeDaily, quotaErr.Scope)
	assert.Equal(t, 2, quotaErr.Used)
	assert.Equal(t, 2, quotaErr.Limit)

	assert.Len(t, f.store.rows, 2, "rejected calls must not create ledger rows")
}

func TestGenerateAllProvidersFail(t *testing.T) {
	t.Parallel()

	lastErr := generation.NewProviderError("openai", "content policy violation", nil)
	first := &stubProvider{
		name: "replicate",
		err:  generation.NewProviderError("replicate", "timed out", nil),
	}
	second := &stubProvider{name: "openai", err: lastErr}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate", "openai"}, first, second)

	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a forbidden thing",
		Failover: true,
	})
	require.Error(t, err)

	var exhausted *generation.ProvidersExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempted)
	assert.ErrorIs(t, exhausted.LastErr, lastErr)

	require.Len(t, f.store.rows, 1)
	for _, row := range f.store.rows {
		assert.Equal(t, domain.GenerationStatusFailed, row.Status)
		assert.Contains(t, row.ErrorMessage, "content policy violation")
		assert.Empty(t, row.ImageURL)
		assert.Empty(t, row.ImageID)
	}
}

func TestGenerateDurationCoversOnlySuccessfulAttempt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	first := &stubProvider{
		name:       "replicate",
		err:        generation.NewProviderError("replicate", "timed out", nil),
		onGenerate: func() { now = now.Add(10 * time.Second) },
	}
	second := &stubProvider{
		name: "openai",
		result: &generation.Result{
			ImageData:    []byte("x"),
			ModelUsed:    "dall-e-3",
			CostEstimate: 0.04,
		},
		onGenerate: func() { now = now.Add(2 * time.Second) },
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate", "openai"}, first, second)
	f.svc.timeFunc = func() time.Time { return now }

	gen, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a lighthouse at dusk",
		Failover: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2000), gen.DurationMs,
		"duration must cover the successful provider call only, not earlier failed attempts")
}

func TestGenerateCancelledBeforeAttempt(t *testing.T) {
	t.Parallel()

	first := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, first)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Generate(ctx, uuid.New(), GenerateRequest{
		Prompt:   "a lighthouse at dusk",
		Failover: true,
	})
	require.Error(t, err)

	var exhausted *generation.ProvidersExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 0, exhausted.Attempted,
		"no provider was invoked, so none should be reported as attempted")
	assert.Empty(t, first.gotParams)

	require.Len(t, f.store.rows, 1)
	for _, row := range f.store.rows {
		assert.Equal(t, domain.GenerationStatusFailed, row.Status)
	}
}

func TestGenerateNoFailoverSingleFailure(t *testing.T) {
	t.Parallel()

	first := &stubProvider{
		name: "openai",
		err:  generation.NewProviderError("openai", "server error", nil),
	}
	second := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate", "openai"}, first, second)

	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a blue door",
		Provider: "openai",
		Failover: false,
	})
	require.Error(t, err)

	var exhausted *generation.ProvidersExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempted)

	assert.Empty(t, second.gotParams, "failover disabled must not reach other providers")

	require.Len(t, f.store.rows, 1)
	for _, row := range f.store.rows {
		assert.Equal(t, domain.GenerationStatusFailed, row.Status)
		assert.Empty(t, row.FailoverFrom)
	}
}

func TestGenerateDownloadsRemoteImage(t *testing.T) {
	t.Parallel()

	imageBytes := []byte("remote-image-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(imageBytes)
	}))
	defer server.Close()

	provider := &stubProvider{
		name: "replicate",
		result: &generation.Result{
			ImageURL:     server.URL + "/output.png",
			ModelUsed:    "black-forest-labs/flux-schnell",
			CostEstimate: 0.003,
		},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	gen, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a lighthouse",
		Failover: true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dir, gen.ImageID+".png"))
	require.NoError(t, err)
	assert.Equal(t, imageBytes, data)
	assert.Equal(t, "/images/"+gen.ImageID+".png", gen.ImageURL,
		"stored reference should be local, not the provider URL")
}

func TestGenerateDownloadFailureFailsRow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	provider := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageURL: server.URL + "/expired.png", ModelUsed: "sdxl"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{
		Prompt:   "a lighthouse",
		Failover: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store generated image")

	require.Len(t, f.store.rows, 1)
	for _, row := range f.store.rows {
		assert.Equal(t, domain.GenerationStatusFailed, row.Status)
	}
}

func TestGetGenerationOwnership(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	owner := uuid.New()
	gen, err := f.svc.Generate(context.Background(), owner, GenerateRequest{
		Prompt:   "a lighthouse",
		Failover: true,
	})
	require.NoError(t, err)

	got, err := f.svc.GetGeneration(context.Background(), owner, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, gen.ID, got.ID)

	_, err = f.svc.GetGeneration(context.Background(), uuid.New(), gen.ID)
	assert.ErrorIs(t, err, store.ErrGenerationNotFound,
		"another user's row must look like it does not exist")
}

func TestDeleteGeneration(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	owner := uuid.New()
	gen, err := f.svc.Generate(context.Background(), owner, GenerateRequest{
		Prompt:   "a lighthouse",
		Failover: true,
	})
	require.NoError(t, err)

	imagePath := filepath.Join(f.dir, gen.ImageID+".png")
	_, err = os.Stat(imagePath)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteGeneration(context.Background(), owner, gen.ID))

	// Row survives as deleted; the blob is gone.
	row := f.store.rows[gen.ID]
	require.NotNil(t, row)
	assert.Equal(t, domain.GenerationStatusDeleted, row.Status)
	_, err = os.Stat(imagePath)
	assert.True(t, os.IsNotExist(err))

	// Deleted rows stay invisible and cannot be deleted twice.
	_, err = f.svc.GetGeneration(context.Background(), owner, gen.ID)
	assert.ErrorIs(t, err, store.ErrGenerationNotFound)
	err = f.svc.DeleteGeneration(context.Background(), owner, gen.ID)
	assert.ErrorIs(t, err, store.ErrGenerationNotFound)
}

func TestDeleteGenerationWrongUser(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:   "replicate",
		result: &generation.Result{ImageData: []byte("x"), ModelUsed: "flux-schnell"},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	owner := uuid.New()
	gen, err := f.svc.Generate(context.Background(), owner, GenerateRequest{
		Prompt:   "a lighthouse",
		Failover: true,
	})
	require.NoError(t, err)

	err = f.svc.DeleteGeneration(context.Background(), uuid.New(), gen.ID)
	assert.ErrorIs(t, err, store.ErrGenerationNotFound)

	row := f.store.rows[gen.ID]
	assert.Equal(t, domain.GenerationStatusCompleted, row.Status)
}

func TestListGenerationsAndUsage(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name: "replicate",
		result: &generation.Result{
			ImageData:    []byte("x"),
			ModelUsed:    "flux-schnell",
			CostEstimate: 0.003,
		},
	}
	f := newServiceFixture(t, defaultLimits(), []string{"replicate"}, provider)

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Generate(context.Background(), userID, GenerateRequest{
			Prompt:   "a lighthouse",
			Failover: true,
		})
		require.NoError(t, err)
	}

	gens, total, err := f.svc.ListGenerations(context.Background(), userID, ListParams{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, gens, 2)

	summary, err := f.svc.UsageSummary(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Totals.CompletedCount)
	assert.InDelta(t, 0.009, summary.Totals.TotalCost, 1e-9)
	assert.Equal(t, 3, summary.Quota.DailyUsed)
	assert.Equal(t, 50, summary.Quota.DailyLimit)
}
