package router

import (
	"time"

	"payauth-service/internal/handler"
	"payauth-service/internal/middleware"
	"payauth-service/internal/usecase"
	"payauth-service/pkg/cache"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Auth        *handler.AuthHandler
	Credentials *handler.CredentialHandler
	Payments    *handler.PaymentHandler
	Health      *handler.HealthHandler
	Sessions    *usecase.SessionUsecase
	Cache       *cache.Cache
	Logger      *zap.Logger
}

func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", d.Health.Health)

	loginLimit := middleware.RateLimit(d.Cache, d.Logger, 10, time.Minute)
	proofLimit := middleware.RateLimit(d.Cache, d.Logger, 15, time.Minute)
	auth := middleware.RequireAuth(d.Sessions)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(loginLimit).Post("/auth/signup", d.Auth.Signup)
		r.With(loginLimit).Post("/auth/login", d.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Get("/auth/me", d.Auth.Me)
			r.Post("/auth/confirm-password", d.Auth.ConfirmPassword)
			r.Post("/auth/change-password", d.Auth.ChangePassword)
			r.Post("/auth/pin", d.Auth.SetPIN)
			r.Get("/auth/sessions", d.Auth.ListSessions)
			r.Post("/auth/logout", d.Auth.Logout)
			r.Post("/auth/logout-all", d.Auth.LogoutAll)
			r.Delete("/auth/account", d.Auth.DeleteAccount)

			r.Route("/credentials", func(r chi.Router) {
				r.Post("/", d.Credentials.Register)
				r.Get("/", d.Credentials.List)
				r.Patch("/{credentialID}/active", d.Credentials.SetActive)
				r.Patch("/{credentialID}/label", d.Credentials.Relabel)
				r.Delete("/{credentialID}", d.Credentials.Remove)
			})

			r.Route("/authorizations", func(r chi.Router) {
				r.Post("/", d.Payments.RequestAuthorization)
				r.Get("/{attemptID}", d.Payments.GetAttempt)
				r.Post("/{attemptID}/challenge", d.Payments.IssueChallenge)
				r.With(proofLimit).Post("/{attemptID}/proof", d.Payments.SubmitProof)
				r.Post("/{attemptID}/cancel", d.Payments.CancelAttempt)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", d.Payments.Commit)
				r.Post("/topup", d.Payments.TopUp)
				r.Get("/", d.Payments.History)
				r.Get("/{transactionID}", d.Payments.GetTransaction)
			})
		})
	})

	return r
}
