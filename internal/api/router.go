/**
 * @description
 * This file sets up the HTTP router for the settlement-service using chi.
 * It defines the API routes, applies global middleware, and mounts the
 * authenticated settlement endpoints behind the JWT auth middleware.
 *
 * @dependencies
 * - net/http: Standard Go library.
 * - github.com/go-chi/chi/v5: The router library.
 * - internal/api: Contains the handlers and middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the chi router for the service.
func NewRouter(handlers *SettlementHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/transfer", handlers.TransferHandler)
		r.Get("/balance", handlers.BalanceHandler)
		r.Get("/history", handlers.HistoryHandler)
		r.Get("/notifications", handlers.NotificationsHandler)

		r.Route("/escrows", func(r chi.Router) {
			r.Get("/pending", handlers.ListPendingEscrowsHandler)
			r.Post("/{escrowID}/release", handlers.ReleaseEscrowHandler)
			r.Post("/{escrowID}/refund", handlers.RefundEscrowHandler)
			r.Post("/{escrowID}/dispute", handlers.DisputeEscrowHandler)
		})
	})

	return r
}
