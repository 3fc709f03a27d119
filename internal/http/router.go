package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"kerbside/internal/config"
	"kerbside/internal/identity"
)

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, service *identity.Service, google *identity.GoogleAuthenticator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	authHandler := NewAuthHandler(service, logger)

	if google != nil {
		oauthHandler := NewOAuthHandler(google, service, cfg.FrontendURL, cfg.Environment, logger)
		r.Route("/api/auth/google", func(r chi.Router) {
			r.Get("/", oauthHandler.InitiateGoogle)
			r.Get("/callback", oauthHandler.CallbackGoogle)
		})
	} else {
		logger.Warn("google oauth not configured; browser flow disabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/check-email", authHandler.CheckEmail)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/oauth", authHandler.OAuth)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(newBearerAuthMiddleware(service, logger))
			r.Get("/me", authHandler.Me)
		})
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
