/**
 * @description
 * This file sets up the HTTP router for the credit service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CreditRoutes creates and returns a new router for the credit service.
func CreditRoutes(h *CreditHandlers, jwksURL string, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Fulfillment endpoints, reachable by any authenticated caller.
		r.Post("/provisions", h.ProvisionHandler)
		r.Post("/redemptions", h.RedeemHandler)

		// Account and pool reads
		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/accounts/owner/{ownerType}/{ownerID}", h.GetAccountByOwnerHandler)
		r.Get("/accounts/{accountID}/transactions", h.ListTransactionsHandler)
		r.Get("/pools/{poolID}", h.PoolStatusHandler)

		// Admin-only money movement and inventory management.
		r.Group(func(r chi.Router) {
			r.Use(RequireRole("admin", "platform_admin"))

			r.Post("/allocations", h.AllocateHandler)
			r.Post("/accounts/{accountID}/purchases", h.PurchaseCreditHandler)
			r.Patch("/accounts/{accountID}", h.UpdateAccountSettingsHandler)
			r.Post("/pools", h.CreatePoolHandler)
			r.Post("/pools/{poolID}/import", h.ImportInventoryHandler)
		})
	})

	return r
}
