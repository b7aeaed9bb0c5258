package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/imagegen-api/internal/api"
	apiMiddleware "github.com/phrazzld/imagegen-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.userStore, app.jwtService, app.passwordVerifier)
	generationHandler := api.NewGenerationHandler(app.generationService, app.registry)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		// Authentication endpoints (public)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		// Provider discovery is public; it exposes no per-user data.
		r.Get("/providers", generationHandler.ListProviders)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/auth/me", authHandler.Me)

			r.Post("/generations", generationHandler.Generate)
			r.Get("/generations", generationHandler.ListGenerations)
			r.Get("/generations/{id}", generationHandler.GetGeneration)
			r.Delete("/generations/{id}", generationHandler.DeleteGeneration)

			r.Get("/usage", generationHandler.GetUsage)
		})
	})

	// Generated images are served statically from the blob store directory.
	fileServer := http.StripPrefix(
		app.config.Storage.BaseURL+"/",
		http.FileServer(http.Dir(app.fileStore.Dir())),
	)
	r.Get(app.config.Storage.BaseURL+"/*", fileServer.ServeHTTP)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
