/**
 * @description
 * This file defines the HTTP router for the wallet-service. It uses the chi
 * router to map endpoints to their handlers and applies the authentication,
 * role and rate-limit middleware per route group.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: router and middleware.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const moneyMovementWindow = time.Minute

// RouterConfig carries the security settings the router needs.
type RouterConfig struct {
	JWTSecret                   string
	InternalAPIKey              string
	AllowedOrigins              []string
	Limiter                     RateLimiter
	MoneyMovementLimitPerMinute int
}

// WalletRoutes sets up the router for all wallet-related endpoints.
func WalletRoutes(h *WalletHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	throttle := RateLimitMiddleware(cfg.Limiter, "money_movement", cfg.MoneyMovementLimitPerMinute, moneyMovementWindow)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.GetWalletHandler)
			r.Get("/transactions", h.GetHistoryHandler)
			r.Get("/transactions/{id}", h.GetTransactionHandler)
			r.Get("/stats", h.GetStatsHandler)

			r.With(throttle).Post("/deposits", h.DepositHandler)
			r.With(throttle).Post("/withdrawals", h.WithdrawHandler)
			r.With(throttle).Post("/transfers", h.TransferHandler)
		})

		r.Route("/admin/transactions/{id}", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.AdminGetTransactionHandler)
			r.Post("/confirm-deposit", h.ConfirmDepositHandler)
			r.Post("/confirm-withdraw", h.ConfirmWithdrawHandler)
			r.Post("/cancel-withdraw", h.CancelWithdrawHandler)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(cfg.InternalAPIKey))
		r.Post("/internal/wallets", h.CreateWalletHandler)
	})

	return r
}
