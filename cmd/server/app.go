package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/imagegen-api/internal/config"
	"github.com/phrazzld/imagegen-api/internal/generation"
	"github.com/phrazzld/imagegen-api/internal/platform/filestore"
	"github.com/phrazzld/imagegen-api/internal/platform/logger"
	"github.com/phrazzld/imagegen-api/internal/platform/postgres"
	"github.com/phrazzld/imagegen-api/internal/platform/providers"
	"github.com/phrazzld/imagegen-api/internal/service"
	"github.com/phrazzld/imagegen-api/internal/service/auth"
	"github.com/phrazzld/imagegen-api/internal/service/ratelimit"
	"github.com/phrazzld/imagegen-api/internal/store"
)

// application holds the initialized dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	userStore        store.UserStore
	generationStore  store.GenerationStore
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier

	registry          *generation.Registry
	fileStore         *filestore.FileStore
	generationService *service.GenerationService
}

// newApplication loads configuration and wires every component: logging,
// database and migrations, provider registry, blob store, and services.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(db); err != nil {
		return nil, err
	}
	appLogger.Info("Database migrations applied")

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	registry, err := buildProviderRegistry(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}
	appLogger.Info("Provider registry initialized", "providers", registry.Names())

	fileStore, err := filestore.New(cfg.Storage.Path, cfg.Storage.BaseURL, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}

	generationStore := postgres.NewPostgresGenerationStore(db, appLogger)
	userStore := postgres.NewPostgresUserStore(db, appLogger, cfg.Auth.BcryptCost)
	limiter := ratelimit.NewLimiter(generationStore, cfg.Limits, appLogger)

	generationService := service.NewGenerationService(
		registry,
		generationStore,
		limiter,
		fileStore,
		db,
		cfg.Providers,
		nil,
		appLogger,
	)

	return &application{
		config:            cfg,
		logger:            appLogger,
		db:                db,
		userStore:         userStore,
		generationStore:   generationStore,
		jwtService:        jwtService,
		passwordVerifier:  auth.NewBcryptVerifier(),
		registry:          registry,
		fileStore:         fileStore,
		generationService: generationService,
	}, nil
}

// buildProviderRegistry constructs the adapters for every provider with a
// configured credential. Adapters with missing credentials are created but
// excluded by the registry, so an empty credential never fails startup.
func buildProviderRegistry(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
) (*generation.Registry, error) {
	gemini, err := providers.NewGemini(ctx, cfg.Providers.GeminiAPIKey, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini provider: %w", err)
	}

	return generation.NewRegistry(
		generation.DefaultPreferenceOrder,
		providers.NewReplicate(cfg.Providers.ReplicateAPIToken, log),
		gemini,
		providers.NewOpenAI(cfg.Providers.OpenAIAPIKey, log),
	), nil
}

// cleanup releases resources on shutdown.
func (app *application) cleanup() {
	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
