package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new chi router with all orchestrator endpoints
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	// middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// basic cors
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE", "PUT"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Operator-ID"},
	}))

	// health check
	r.Get("/health", handler.Health)

	// api v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// account onboarding
		r.Get("/accounts/onboarding", handler.OnboardingState)
		r.Post("/accounts/onboarding", handler.BeginOnboarding)
		r.Post("/accounts/onboarding/input", handler.SubmitOnboarding)

		// accounts
		r.Get("/accounts", handler.ListAccounts)
		r.Delete("/accounts/{index}", handler.RemoveAccount)

		// source channels
		r.Get("/channels", handler.ListSourceChannels)
		r.Post("/channels", handler.AddSourceChannel)
		r.Delete("/channels/{index}", handler.RemoveSourceChannel)

		// message pool
		r.Get("/messages", handler.ListMessages)
		r.Post("/messages", handler.AddMessage)
		r.Delete("/messages/{index}", handler.RemoveMessage)

		// timer policy
		r.Get("/timer", handler.Timer)
		r.Put("/timer", handler.UpdateTimer)

		// broadcasting
		r.Get("/broadcast", handler.BroadcastStatus)
		r.Post("/broadcast", handler.StartBroadcast)
		r.Delete("/broadcast", handler.StopBroadcast)

		// discovered targets
		r.Get("/targets", handler.ListTargets)

		// privileged operators
		r.Get("/operators", handler.ListOperators)
		r.Post("/operators", handler.AddOperator)
		r.Delete("/operators/{id}", handler.RemoveOperator)
	})

	return r
}
